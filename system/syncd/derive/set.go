package derive

import (
	"errors"
	"fmt"
	"sync"
)

// Set is a group of named derived values over one model.
type Set struct {
	mu     sync.RWMutex
	names  []string
	caches map[string]*Cache[any]
}

func NewSet() *Set {
	return &Set{caches: make(map[string]*Cache[any])}
}

// Add adds c under its name.
func (s *Set) Add(c *Cache[any]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[c.Name()]; ok {
		return fmt.Errorf("duplicate derived value %q", c.Name())
	}
	s.caches[c.Name()] = c
	s.names = append(s.names, c.Name())
	return nil
}

// Names lists the values in insertion order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

func (s *Set) Get(name string) (any, error) {
	s.mu.RLock()
	c := s.caches[name]
	s.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("no derived value %q", name)
	}
	return c.Get()
}

// Values evaluates every value. Values that fail keep their previous
// result, if any; the failures are joined in the returned error.
func (s *Set) Values() (map[string]any, error) {
	s.mu.RLock()
	caches := make([]*Cache[any], 0, len(s.names))
	for _, name := range s.names {
		caches = append(caches, s.caches[name])
	}
	s.mu.RUnlock()

	res := make(map[string]any, len(caches))
	var errs []error
	for _, c := range caches {
		v, err := c.Get()
		if err != nil {
			errs = append(errs, err)
			if _, ok := c.Peek(); !ok {
				continue
			}
		}
		res[c.Name()] = v
	}
	return res, errors.Join(errs...)
}

// Dispose disposes every value.
func (s *Set) Dispose() {
	s.mu.Lock()
	caches := s.caches
	s.caches = make(map[string]*Cache[any])
	s.names = nil
	s.mu.Unlock()
	for _, c := range caches {
		c.Dispose()
	}
}
