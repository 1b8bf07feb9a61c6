package driver

import (
	"sync"
	"time"
)

// DefaultQuiet is how long the page must stay unchanged before a scheduled
// pass runs.
const DefaultQuiet = 2 * time.Second

// Debouncer collapses bursts of triggers into one call of Fn after a quiet
// period. A new trigger replaces the pending one. A call that has already
// started is never cancelled.
type Debouncer struct {
	Quiet time.Duration
	Fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer(quiet time.Duration, fn func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{Quiet: quiet, Fn: fn}
}

// Trigger schedules Fn after the quiet period, cancelling any pending
// schedule.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.Quiet, func() {
		d.mu.Lock()
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		if d.Fn != nil {
			d.Fn()
		}
	})
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels a pending call and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
