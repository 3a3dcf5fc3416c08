package refetch

import (
	"sync"
	"time"
)

// Debouncer runs a function after a quiet period. Scheduling a new function
// atomically cancels and replaces the previous pending one, so only the most
// recently scheduled function ever fires.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule arranges for fn to run after delay, cancelling any pending run.
func (d *Debouncer) Schedule(fn func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Stop cancels any pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
