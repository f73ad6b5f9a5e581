package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParsePeriod parses a fixed-rate period.
//
// Supported forms:
//   - Go duration: "55m", "2h30m"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Descriptor: "@every 10m"
//
// An optional "interval:" or "every:" prefix is accepted. Calendar cron
// expressions ("*/5 * * * *", "@daily") are rejected: jobs run at a fixed
// rate, not at wall-clock times.
func ParsePeriod(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("period required")
	}
	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			low = strings.ToLower(s)
			break
		}
	}

	if strings.HasPrefix(low, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("invalid descriptor %q: %w", raw, err)
		}
		cd, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("calendar schedule %q is not supported (use @every <duration>)", raw)
		}
		return cd.Delay, nil
	}
	if strings.ContainsAny(s, " \t") {
		return 0, fmt.Errorf("calendar schedule %q is not supported (use a duration like '55m')", raw)
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("period must be > 0")
		}
		return d, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q (use HH:MM like '02:30' or a duration like '55m')", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("period must be > 0")
	}
	return d, nil
}
