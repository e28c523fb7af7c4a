package monitor

import (
	"sync"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
)

// eventBuffer is a mutex-guarded fixed-capacity ring of events with
// drop-oldest semantics. Eviction is atomic with respect to concurrent
// appends: no reader ever observes more than capacity events.
type eventBuffer struct {
	mu   sync.Mutex
	buf  []event.Event
	head int // index of the oldest event
	size int
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{buf: make([]event.Event, capacity)}
}

// Append adds an event, evicting the oldest when full.
func (b *eventBuffer) Append(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.buf) {
		b.buf[(b.head+b.size)%len(b.buf)] = e
		b.size++
		return
	}
	// Full: overwrite the oldest slot and advance the head.
	b.buf[b.head] = e
	b.head = (b.head + 1) % len(b.buf)
}

// Snapshot returns a point-in-time copy of the buffered events in
// record order. The copy never aliases the live ring.
func (b *eventBuffer) Snapshot() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]event.Event, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// RemoveOlderThan drops every event whose start time precedes cutoff
// and returns how many were removed. Record order is preserved.
func (b *eventBuffer) RemoveOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Survivors are staged separately: compacting in place would
	// overwrite unread slots when the ring is wrapped.
	kept := make([]event.Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.buf[(b.head+i)%len(b.buf)]
		if !e.StartTime.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := b.size - len(kept)
	copy(b.buf, kept)
	b.head = 0
	b.size = len(kept)
	// Clear vacated slots so evicted events do not linger.
	for i := b.size; i < len(b.buf); i++ {
		b.buf[i] = event.Event{}
	}
	return removed
}

// Len returns the current number of buffered events.
func (b *eventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Oldest returns the start time of the oldest buffered event.
func (b *eventBuffer) Oldest() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return time.Time{}, false
	}
	return b.buf[b.head].StartTime, true
}
