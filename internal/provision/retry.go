package provision

import (
	"context"
	"time"
)

// RetryPolicy is a fixed-interval, bounded-count retry. No backoff, no
// jitter: the backend consistency windows this covers are short and flat.
// Tests inject zero-interval policies.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

// sleep waits one interval, or returns early when ctx is done.
func (p RetryPolicy) sleep(ctx context.Context) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
