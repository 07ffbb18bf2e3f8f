// Package track records which categories of change a live model has seen.
//
// A [Tracker] listens to a [Source] and accumulates the reported
// categories in a [Record]. The record can only be read or cleared through
// [Invoke], which holds the tracker's lock for the duration of the call, so
// a check-and-reset cannot lose a concurrent notification. Trackers on the
// same source are independent: resetting one never hides a change from
// another.
package track

import (
	"sync"

	"github.com/signadot/docsync/debug"
)

// Record is the set of change categories seen since they were last reset.
type Record struct {
	flags Category
	// count of notifications since the tracker was created
	seen uint64
}

// Flags returns the categories seen.
func (r *Record) Flags() Category {
	return r.flags
}

// Changed reports whether any category in mask was seen.
func (r *Record) Changed(mask Category) bool {
	return r.flags.Has(mask)
}

// Reset clears the categories in mask and returns those that were set.
func (r *Record) Reset(mask Category) Category {
	res := r.flags & mask
	r.flags &^= mask
	return res
}

// Mark sets the categories c, e.g. to restore flags after a failed
// recompute.
func (r *Record) Mark(c Category) {
	r.flags |= c
}

// Seen returns the number of notifications recorded.
func (r *Record) Seen() uint64 {
	return r.seen
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMask restricts the tracker to the categories in mask. Other
// notifications are ignored.
func WithMask(mask Category) Option {
	return func(t *Tracker) {
		t.mask = mask
	}
}

// WithNotify sets a function called after each recorded notification,
// outside of the tracker's lock. It must not block.
func WithNotify(fn func(Category)) Option {
	return func(t *Tracker) {
		t.notify = fn
	}
}

// Tracker accumulates change categories from a Source.
type Tracker struct {
	mu     sync.Mutex
	rec    Record
	closed bool

	mask   Category
	notify func(Category)
	remove func()
}

// New creates a tracker listening to src.
func New(src Source, opts ...Option) *Tracker {
	t := &Tracker{mask: All}
	for _, opt := range opts {
		opt(t)
	}
	t.remove = src.AddListener(t.record)
	return t
}

func (t *Tracker) record(c Category) {
	c &= t.mask
	if c == None {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.rec.flags |= c
	t.rec.seen++
	t.mu.Unlock()
	if debug.Track() {
		debug.Logf("track: %s\n", c)
	}
	if t.notify != nil {
		t.notify(c)
	}
}

// Invoke runs fn with exclusive access to the tracker's record and returns
// its result. fn must be short; it runs under the tracker's lock.
func Invoke[R any](t *Tracker, fn func(*Record) R) R {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(&t.rec)
}

// Close unregisters the tracker from its source. Notifications racing with
// Close are dropped.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	t.remove()
}

// Closed reports whether Close was called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
