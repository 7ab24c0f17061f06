// Package session tracks which files recent queries touched, so the update
// scheduler can prioritize content the user is actively working with.
package session

import (
	"sync"
	"time"
)

// DefaultActiveWindow is how long after its last query hit a file counts as
// part of the active session.
const DefaultActiveWindow = 30 * time.Minute

// Tracker remembers per-file query recency. All methods are safe for
// concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	lastQueried map[string]time.Time
	window      time.Duration
	now         func() time.Time
}

// NewTracker creates a tracker with the given active-session window.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultActiveWindow
	}
	return &Tracker{
		lastQueried: make(map[string]time.Time),
		window:      window,
		now:         time.Now,
	}
}

// RecordQuery marks paths as just queried.
func (t *Tracker) RecordQuery(paths ...string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		t.lastQueried[p] = now
	}
}

// LastQueried returns when path was last part of a query result, or the
// zero time if never.
func (t *Tracker) LastQueried(path string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastQueried[path]
}

// InActiveSession reports whether path was queried within the active
// window.
func (t *Tracker) InActiveSession(path string) bool {
	t.mu.RLock()
	last, ok := t.lastQueried[path]
	t.mu.RUnlock()
	return ok && t.now().Sub(last) < t.window
}

// Forget drops path's history, for files removed from the index.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastQueried, path)
}
