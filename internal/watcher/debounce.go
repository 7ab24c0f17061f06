// Package watcher turns raw filesystem notifications into debounced,
// index-ready change events.
package watcher

import (
	"sync"
	"time"
)

// EventType classifies a file change.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// Event is one debounced file change.
type Event struct {
	Path string
	Type EventType
	Time time.Time
}

// DefaultDebounceWindow coalesces editor write storms. Most editors finish
// their save dance well within two seconds.
const DefaultDebounceWindow = 2 * time.Second

// Debouncer coalesces rapid event sequences per path over a fixed window.
// A delete arriving while a create or modify is pending collapses the
// pending event to deleted; a create after a pending delete collapses to
// created, which absorbs editors that save by delete-then-recreate.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingEvent
	out     chan Event
	closed  bool
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewDebouncer creates a debouncer emitting on its Events channel.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		out:     make(chan Event, 64),
	}
}

// Events is the debounced output channel. It stays open after Close;
// consumers stop via their own context.
func (d *Debouncer) Events() <-chan Event {
	return d.out
}

// Add feeds one raw event. The path's pending event, if any, is coalesced;
// the flush timer restarts either way.
func (d *Debouncer) Add(path string, eventType EventType, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if p, ok := d.pending[path]; ok {
		p.event.Type = coalesce(p.event.Type, eventType)
		p.event.Time = at
		p.timer.Reset(d.window)
		return
	}

	p := &pendingEvent{event: Event{Path: path, Type: eventType, Time: at}}
	p.timer = time.AfterFunc(d.window, func() { d.flush(path) })
	d.pending[path] = p
}

// coalesce merges a new raw event into a pending one.
func coalesce(pending, incoming EventType) EventType {
	switch {
	case incoming == EventDeleted:
		return EventDeleted
	case pending == EventDeleted && incoming == EventCreated:
		return EventCreated
	case pending == EventCreated:
		// Still new to the index, whatever else happened since.
		return EventCreated
	default:
		return incoming
	}
}

func (d *Debouncer) flush(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
	}
	closed := d.closed
	d.mu.Unlock()

	if !ok || closed {
		return
	}
	d.out <- p.event
}

// Close stops all timers. Events still inside their window are discarded.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
}
