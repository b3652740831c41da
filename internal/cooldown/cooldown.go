// Package cooldown suppresses repeat detections of the same plate within
// a debounce window.
package cooldown

import (
	"sync"
	"time"
)

// sweepFactor controls when stale entries are purged: anything older than
// sweepFactor times the window is dropped during an accepting Check.
const sweepFactor = 10

// Table tracks the last accepted time per plate. Safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// New creates a Table with the given debounce window.
func New(window time.Duration) *Table {
	return &Table{
		window: window,
		seen:   map[string]time.Time{},
	}
}

// Window returns the configured debounce window.
func (t *Table) Window() time.Duration { return t.window }

// Check reports whether a detection of plate at now should be suppressed.
// A plate is suppressed when it was accepted less than the window ago; a
// suppressed call does not refresh the stored timestamp. On acceptance the
// timestamp is recorded and entries older than 10x the window are swept.
func (t *Table) Check(plate string, now time.Time) (suppressed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.seen[plate]; ok && now.Sub(last) < t.window {
		return true
	}
	t.seen[plate] = now

	cutoff := now.Add(-sweepFactor * t.window)
	for p, last := range t.seen {
		if last.Before(cutoff) {
			delete(t.seen, p)
		}
	}
	return false
}

// Len returns the number of tracked plates.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
