package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// LookupLevel maps a level name (case-insensitive, surrounding blanks ignored)
// to a zerolog level.
func LookupLevel(s string) (Level, bool) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	return lvl, ok
}

// ParseLevel is LookupLevel with a fallback for unknown or empty names.
func ParseLevel(s string, def Level) Level {
	if lvl, ok := LookupLevel(s); ok {
		return lvl
	}
	return def
}
