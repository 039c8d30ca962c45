// Package clock owns every timer the dashboard runs. Callers get a Token back
// from Every/After and stop the timer with Cancel, so no timer outlives its owner.
package clock

import (
	"context"
	"sync"
	"time"
)

// Token identifies a scheduled timer. The zero Token is never issued.
type Token uint64

// Scheduler runs callbacks on a fixed cadence or once after a delay.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Token
	After(delay time.Duration, fn func()) Token
	Cancel(t Token) bool
}

// Real is a wall-clock Scheduler; each timer runs on its own goroutine.
type Real struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	next   Token
	timers map[Token]context.CancelFunc
	wg     sync.WaitGroup
}

// NewReal returns a scheduler whose timers all stop when ctx is done or Stop is called.
func NewReal(ctx context.Context) *Real {
	ctx, cancel := context.WithCancel(ctx)
	return &Real{ctx: ctx, cancel: cancel, timers: make(map[Token]context.CancelFunc)}
}

func (r *Real) Now() time.Time { return time.Now() }

func (r *Real) Every(interval time.Duration, fn func()) Token {
	if interval <= 0 {
		panic("clock: non-positive interval for Every")
	}
	ctx, tok := r.register()
	r.wg.Go(func() {
		defer r.forget(tok)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	})
	return tok
}

func (r *Real) After(delay time.Duration, fn func()) Token {
	ctx, tok := r.register()
	r.wg.Go(func() {
		defer r.forget(tok)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			fn()
		}
	})
	return tok
}

func (r *Real) Cancel(t Token) bool {
	r.mu.Lock()
	cancel, ok := r.timers[t]
	delete(r.timers, t)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Stop cancels every timer and waits for running callbacks to return.
func (r *Real) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Real) register() (context.Context, Token) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.timers[r.next] = cancel
	return ctx, r.next
}

func (r *Real) forget(t Token) {
	r.mu.Lock()
	cancel, ok := r.timers[t]
	delete(r.timers, t)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
