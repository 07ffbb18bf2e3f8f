package track

import "sync"

// Source is anything reporting mutations by category, typically a live
// model. The returned function unregisters the listener.
type Source interface {
	AddListener(fn func(Category)) (remove func())
}

// Hub is a set of listeners. Models embed a Hub to implement Source.
// The zero value is ready to use.
type Hub struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]func(Category)
}

// AddListener registers fn. Removing twice is harmless.
func (h *Hub) AddListener(fn func(Category)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[uint64]func(Category))
	}
	id := h.next
	h.next++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Emit calls every listener with c. Listeners run on the caller's
// goroutine and must not block.
func (h *Hub) Emit(c Category) {
	if c == None {
		return
	}
	h.mu.RLock()
	fns := make([]func(Category), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
