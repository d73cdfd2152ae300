// Package logring keeps the most recent controller log entries in memory so
// that remote callers can fetch them with getLog.
//
// The ring is bounded (100 entries by default) and evicts oldest first.
// Exception detail (stack traces, panic values) never enters the ring: the
// offending entry is stored without it and followed by a synthetic warning
// so readers can see that something was stripped. Operators who need the
// full diagnostics must read the live controller logs.
//
// Thread Safety: All methods are safe for concurrent use.
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained by New(0).
const DefaultCapacity = 100

// RedactionMessage is the message of the synthetic entry appended after an
// entry whose exception detail was stripped.
const RedactionMessage = "An exception was stripped from this log, see controller logs for details"

// Entry is a single log record as seen by getLog readers.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`

	// Redacted marks an entry whose exception detail was removed on append.
	Redacted bool `json:"redacted,omitempty"`

	// Exception carries stack or panic detail on the way in. It is always
	// empty on entries returned by Entries.
	Exception string `json:"-"`
}

// Ring is a fixed-capacity, insertion-ordered log buffer.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// New creates a ring holding at most capacity entries.
// A capacity of zero or less selects DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Append stores an entry, evicting the oldest when the ring is full.
//
// If the entry carries exception detail, the stored copy has it removed and
// is marked Redacted, and a second WARN entry with RedactionMessage and the
// original timestamp is appended. Each of the two counts against capacity.
func (r *Ring) Append(e Entry) {
	stripped := e.Exception != ""
	e.Exception = ""
	e.Attrs = copyAttrs(e.Attrs)
	if stripped {
		e.Redacted = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.push(e)
	if stripped {
		r.push(Entry{
			Time:    e.Time,
			Level:   slog.LevelWarn.String(),
			Message: RedactionMessage,
		})
	}
}

// push appends under the lock and enforces capacity.
func (r *Ring) push(e Entry) {
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		// Shift rather than reslice so the backing array does not grow forever.
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:r.capacity]
	}
}

// Entries returns a snapshot of the ring, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Attrs = copyAttrs(e.Attrs)
		out[i] = e
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Capacity returns the maximum number of entries the ring retains.
func (r *Ring) Capacity() int {
	return r.capacity
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
