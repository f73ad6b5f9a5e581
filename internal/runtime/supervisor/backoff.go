package supervisor

import (
	"context"
	"math/rand"
	"time"
)

// Backoff is a doubling delay with up to 50% jitter, capped at Max.
// It is not safe for concurrent use.
type Backoff struct {
	Min, Max time.Duration

	cur time.Duration
}

func NewBackoff(min, max time.Duration) *Backoff {
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max, cur: min}
}

func (b *Backoff) Reset() { b.cur = b.Min }

// Next returns the delay to use now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.Min
	}
	d := b.cur
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int63n(half + 1))
	}
	b.cur = min(b.cur*2, b.Max)
	return d
}

// Sleep waits Next() and reports false if ctx ended first.
func (b *Backoff) Sleep(ctx context.Context) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
