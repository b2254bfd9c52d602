package httpclient

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces outbound calls to a remote system by a minimum delay.
type Pacer struct {
	mu       sync.Mutex
	minDelay time.Duration
	next     time.Time
}

// NewPacer creates a pacer; a zero minDelay never waits
func NewPacer(minDelay time.Duration) *Pacer {
	return &Pacer{minDelay: minDelay}
}

// Wait blocks until the next call slot, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.minDelay <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.minDelay)
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
