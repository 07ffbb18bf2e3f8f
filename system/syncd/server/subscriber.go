package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/system/syncd/api"
)

// DefaultPushTimeout is the default bound on a single push. A subscriber
// whose sink does not accept a patch within it is dropped.
const DefaultPushTimeout = 5 * time.Second

// Subscriber is a consumer of one stream's patches. Its anchor is the id
// of the last snapshot it was brought up to.
//
// Each subscriber delivers on its own goroutine with at most one push in
// flight, so a slow sink delays only itself. A cycle that finds the
// subscriber busy leaves it be; once the push completes the subscriber
// catches up to the head on its own.
type Subscriber struct {
	ID     string
	Stream api.StreamKey

	sink Sink
	st   *stream
	log  *slog.Logger

	mu      sync.Mutex
	anchor  api.SnapshotID
	busy    bool
	recycle bool
	closed  bool

	work      chan *api.Patch
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSubscriber(st *stream, id string, anchor api.SnapshotID, sink Sink) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		ID:     id,
		Stream: st.key,
		sink:   sink,
		st:     st,
		log:    st.log.With("subscription", id),
		anchor: anchor,
		work:   make(chan *api.Patch, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Anchor returns the subscriber's current anchor.
func (s *Subscriber) Anchor() api.SnapshotID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor
}

// offer hands p to the delivery goroutine. It returns false if a push is
// already in flight or p was computed from an outdated anchor; in both cases
// the subscriber catches up after its current push.
func (s *Subscriber) offer(p *api.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.busy {
		s.recycle = true
		return false
	}
	s.busy = true
	if p.From != s.anchor {
		// the anchor moved since p was computed
		s.recycle = true
		s.work <- nil
		return false
	}
	s.work <- p
	return true
}

func (s *Subscriber) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-s.work:
			if !s.deliver(p) {
				return
			}
		}
	}
}

// deliver pushes p and then any patches the subscriber fell behind on
// while busy. A nil p only catches up. It returns false once the subscriber
// is dropped or closed.
func (s *Subscriber) deliver(p *api.Patch) bool {
	if p == nil {
		var err error
		if p, err = s.advance(s.Anchor()); err != nil {
			s.st.rejectAnchor(s, err)
			return false
		}
	}
	for p != nil {
		if !s.push(p) {
			return false
		}
		var err error
		p, err = s.advance(p.To)
		if err != nil {
			s.st.rejectAnchor(s, err)
			return false
		}
	}
	return true
}

func (s *Subscriber) push(p *api.Patch) bool {
	ctx, cancel := context.WithTimeout(s.ctx, s.st.reg.pushTimeout)
	start := time.Now()
	err := s.sink.Push(ctx, p)
	cancel()
	if err != nil {
		if s.ctx.Err() != nil {
			// closed while pushing
			return false
		}
		s.st.reg.metrics.pushFailures.Inc()
		s.st.drop(s, api.WrapError(api.ErrCodeSinkDelivery, err, "push %s -> %s", p.From, p.To))
		return false
	}
	s.st.reg.metrics.pushes.Inc()
	if debug.Push() {
		debug.Logf("push %s %s -> %s (%d ops) in %s\n", s.ID, p.From, p.To, len(p.Ops), time.Since(start))
	}
	return true
}

// advance moves the anchor to id. If a cycle passed the subscriber by
// while it was busy, it returns the patch from id to the current head;
// otherwise it marks the subscriber idle and returns nil.
func (s *Subscriber) advance(id api.SnapshotID) (*api.Patch, error) {
	s.mu.Lock()
	s.anchor = id
	s.mu.Unlock()
	for {
		s.mu.Lock()
		if s.closed || !s.recycle {
			s.busy = false
			s.mu.Unlock()
			return nil, nil
		}
		s.recycle = false
		s.mu.Unlock()
		p, err := s.st.reg.store.Changes(s.Stream, id)
		if err != nil {
			return nil, err
		}
		if !p.IsNoop() {
			return p, nil
		}
	}
}

// close ends the subscription and closes its sink with err.
func (s *Subscriber) close(err error) {
	s.end(err, false)
}

// closeDetached ends the subscription at once and closes its sink on a
// goroutine of its own, so that a sink blocking in Close holds up nobody.
func (s *Subscriber) closeDetached(err error) {
	s.end(err, true)
}

func (s *Subscriber) end(err error, detached bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		if detached {
			go s.sink.Close(err)
			return
		}
		s.sink.Close(err)
	})
}
