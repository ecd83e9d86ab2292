package capture

import (
	"sync"
	"time"
)

// actionGuard drops identical named actions issued faster than the
// configured interval, preventing duplicate UI-toggle storms against the
// host page.
type actionGuard struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     map[string]time.Time
}

func newActionGuard(interval time.Duration) *actionGuard {
	return &actionGuard{
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// allow reports whether the named action may run now, recording the attempt
// when it may.
func (g *actionGuard) allow(action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.last[action]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.last[action] = now
	return true
}

// debouncer coalesces change-notification bursts: only the last callback
// registered within the window runs when the window closes. With a zero
// window the callback runs inline.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	stop   bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window}
}

func (d *debouncer) trigger(fn func()) {
	if d.window <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, fn)
}

// cancel drops any pending callback and rejects future triggers.
func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
