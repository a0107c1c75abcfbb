package handlers

import (
	"sync"
	"time"
)

// RefreshDebouncer collapses bursts of refresh requests into one recomputation
// that runs once no new request has arrived for the configured delay.
type RefreshDebouncer struct {
	delay time.Duration
	run   func()

	mu         sync.Mutex
	generation int
	pending    bool
}

// NewRefreshDebouncer creates a debouncer that calls run after delay
func NewRefreshDebouncer(delay time.Duration, run func()) *RefreshDebouncer {
	return &RefreshDebouncer{
		delay: delay,
		run:   run,
	}
}

// Schedule queues a refresh, resetting the timer if one is already pending
func (d *RefreshDebouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Bumping the generation invalidates any older timer
	d.generation++
	d.pending = true
	gen := d.generation
	time.AfterFunc(d.delay, func() {
		d.flush(gen)
	})
}

// Pending reports whether a refresh is waiting to run
func (d *RefreshDebouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *RefreshDebouncer) flush(generation int) {
	d.mu.Lock()
	if !d.pending || d.generation != generation {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.run()
}
