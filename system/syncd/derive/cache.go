// Package derive caches values computed from a live model.
//
// A [Cache] wraps a function of the model and the change categories that
// invalidate its result. Get recomputes only when an invalidating change
// was seen since the last successful computation. The recompute runs
// outside of the change tracker's lock, so mutations are never held up by
// it, and a mutation arriving during a recompute forces another one on the
// next Get.
package derive

import (
	"sync"

	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/track"
)

// Cache is a lazily recomputed value derived from a model.
type Cache[V any] struct {
	name    string
	tracker *track.Tracker
	fn      func() (V, error)

	// mu serializes check-and-recompute.
	mu       sync.Mutex
	val      V
	valid    bool
	computes uint64
	disposed bool
}

// New creates a cache of fn(model) invalidated by the categories in on.
func New[M track.Source, V any](name string, model M, on track.Category, fn func(M) (V, error)) *Cache[V] {
	return &Cache[V]{
		name:    name,
		tracker: track.New(model, track.WithMask(on)),
		fn:      func() (V, error) { return fn(model) },
	}
}

func (c *Cache[V]) Name() string {
	return c.name
}

// Get returns the cached value, recomputing it first if it was never
// computed or was invalidated. If the recompute fails the previous value is
// returned along with an error matching api.ErrRecompute, and the next Get
// tries again.
func (c *Cache[V]) Get() (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return c.val, api.NewError(api.ErrCodeStreamClosed, "derived value "+c.name+" disposed")
	}
	fired := track.Invoke(c.tracker, func(r *track.Record) track.Category {
		return r.Reset(track.All)
	})
	if c.valid && fired == track.None {
		return c.val, nil
	}
	v, err := c.fn()
	if err != nil {
		if fired != track.None {
			track.Invoke(c.tracker, func(r *track.Record) struct{} {
				r.Mark(fired)
				return struct{}{}
			})
		}
		return c.val, api.WrapError(api.ErrCodeRecompute, err, "derived value %s", c.name)
	}
	c.val = v
	c.valid = true
	c.computes++
	return v, nil
}

// Peek returns the cached value without recomputing it.
func (c *Cache[V]) Peek() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.valid
}

// Computes returns the number of successful computations.
func (c *Cache[V]) Computes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computes
}

// Dispose detaches the cache from its model.
func (c *Cache[V]) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
	c.tracker.Close()
}
