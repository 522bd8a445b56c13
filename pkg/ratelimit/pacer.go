package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer blocks callers until they may issue their next request.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay spaces requests at least delay apart, across all goroutines
// sharing the pacer.
type FixedDelay struct {
	delay time.Duration
	next  time.Time
	mu    sync.Mutex
	now   func() time.Time
}

// NewFixedDelay creates a pacer. A non-positive delay never blocks.
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{
		delay: delay,
		now:   time.Now,
	}
}

// Wait reserves the next slot and sleeps until it arrives.
func (f *FixedDelay) Wait(ctx context.Context) error {
	if f.delay <= 0 {
		return ctx.Err()
	}

	f.mu.Lock()
	now := f.now()
	slot := now
	if f.next.After(now) {
		slot = f.next
	}
	f.next = slot.Add(f.delay)
	f.mu.Unlock()

	return Sleep(ctx, slot.Sub(now))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
