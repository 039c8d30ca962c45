package clock

import (
	"sync"
	"time"
)

type vtimer struct {
	due      time.Time
	interval time.Duration
	fn       func()
}

// Virtual is a manually advanced Scheduler. Callbacks run synchronously inside
// Advance, in due order, with ties broken by scheduling order.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	next   Token
	timers map[Token]*vtimer
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start, timers: make(map[Token]*vtimer)}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Every(interval time.Duration, fn func()) Token {
	if interval <= 0 {
		panic("clock: non-positive interval for Every")
	}
	return v.add(interval, interval, fn)
}

func (v *Virtual) After(delay time.Duration, fn func()) Token {
	return v.add(delay, 0, fn)
}

func (v *Virtual) Cancel(t Token) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.timers[t]
	delete(v.timers, t)
	return ok
}

// Active reports how many timers are still scheduled.
func (v *Virtual) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		var (
			tok Token
			due *vtimer
		)
		for k, t := range v.timers {
			if t.due.After(target) {
				continue
			}
			if due == nil || t.due.Before(due.due) || (t.due.Equal(due.due) && k < tok) {
				tok, due = k, t
			}
		}
		if due == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = due.due
		if due.interval > 0 {
			due.due = due.due.Add(due.interval)
		} else {
			delete(v.timers, tok)
		}
		fn := due.fn
		v.mu.Unlock()

		fn()
	}
}

func (v *Virtual) add(delay, interval time.Duration, fn func()) Token {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	v.timers[v.next] = &vtimer{due: v.now.Add(delay), interval: interval, fn: fn}
	return v.next
}
