package server

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/track"
)

// buildRetryDelay is the pause before a cycle whose build failed is run
// again.
const buildRetryDelay = 100 * time.Millisecond

// Binding ties a stream to its live model.
type Binding struct {
	// Source reports the model's mutations.
	Source track.Source
	// Build returns the model's current representation. It must not
	// modify the model.
	Build func() (ir.Doc, error)
	// On restricts the categories that trigger a cycle. Zero means all.
	On track.Category
	// OnDispose, if set, is called once the stream is disposed.
	OnDispose func()
}

// stream is the broadcaster state of one stream. Its worker goroutine runs
// while the stream has subscribers and is the only writer of the stream's
// history.
type stream struct {
	key     api.StreamKey
	reg     *Registry
	binding Binding
	log     *slog.Logger

	mu       sync.Mutex
	subs     map[string]*Subscriber
	tracker  *track.Tracker
	stop     chan struct{}
	done     chan struct{}
	disposed bool

	// dirty holds at most one pending cycle request.
	dirty chan struct{}
	// force requests a build even if the tracker saw no change.
	force  atomic.Bool
	cycles atomic.Uint64
}

func newStream(reg *Registry, key api.StreamKey, b Binding) *stream {
	if b.On == track.None {
		b.On = track.All
	}
	return &stream{
		key:     key,
		reg:     reg,
		binding: b,
		log:     reg.log.With("stream", key.String()),
		subs:    make(map[string]*Subscriber),
		dirty:   make(chan struct{}, 1),
	}
}

// kick requests a cycle. Requests made while one is pending collapse into
// it.
func (s *stream) kick(force bool) {
	if force {
		s.force.Store(true)
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// startLocked starts the tracker and worker. s.mu must be held.
func (s *stream) startLocked() {
	if s.tracker != nil {
		return
	}
	s.tracker = track.New(s.binding.Source,
		track.WithMask(s.binding.On),
		track.WithNotify(func(track.Category) { s.kick(false) }))
	prev := s.done
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(prev, s.stop, s.done, s.tracker)
	s.log.Debug("stream worker started")
}

// stopLocked stops the tracker and worker without waiting for the worker.
// It returns a channel closed when the worker has exited.
func (s *stream) stopLocked() <-chan struct{} {
	if s.tracker == nil {
		return s.done
	}
	s.tracker.Close()
	s.tracker = nil
	close(s.stop)
	s.log.Debug("stream worker stopping")
	return s.done
}

func (s *stream) run(prev <-chan struct{}, stop <-chan struct{}, done chan<- struct{}, tr *track.Tracker) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	for {
		select {
		case <-stop:
			return
		case <-s.dirty:
		}
		// a stopping worker leaves the request to the next one
		select {
		case <-stop:
			s.kick(false)
			return
		default:
		}
		if d := s.reg.coalesce; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-stop:
				t.Stop()
				s.kick(false)
				return
			case <-t.C:
			}
			// requests made while waiting are part of this cycle
			select {
			case <-s.dirty:
			default:
			}
		}
		s.cycle(tr)
	}
}

// cycle commits the model's representation once and offers each
// subscriber the patch from its anchor. Subscribers sharing an anchor share
// the patch.
func (s *stream) cycle(tr *track.Tracker) {
	s.cycles.Add(1)
	s.reg.metrics.cycles.Inc()

	flags := track.Invoke(tr, func(r *track.Record) track.Category {
		return r.Reset(track.All)
	})
	force := s.force.Swap(false)
	if flags == track.None && !force {
		return
	}
	doc, err := s.binding.Build()
	if err != nil {
		s.reg.metrics.buildFailures.Inc()
		s.log.Error("build representation", "error", err, "retry", buildRetryDelay.String())
		// the changes just reset are still unpublished
		time.AfterFunc(buildRetryDelay, func() { s.kick(true) })
		return
	}
	head, err := s.reg.store.Commit(s.key, doc)
	if err != nil {
		s.commitFailed(err)
		return
	}
	s.log.Debug("cycle", "changes", flags.String(), "head", string(head.ID))

	patches := map[api.SnapshotID]*api.Patch{}
	for _, sub := range s.subscribers() {
		anchor := sub.Anchor()
		p, ok := patches[anchor]
		if !ok {
			p, err = s.reg.store.Changes(s.key, anchor)
			if err != nil {
				s.rejectAnchor(sub, err)
				continue
			}
			patches[anchor] = p
		}
		if p.IsNoop() {
			continue
		}
		sub.offer(p)
	}
}

func (s *stream) rejectAnchor(sub *Subscriber, err error) {
	switch {
	case errors.Is(err, api.ErrUnknownAnchor):
		s.reg.metrics.unknownAnchors.Inc()
		s.log.Info("subscriber anchor not in history", "subscription", sub.ID, "anchor", string(sub.Anchor()))
	case errors.Is(err, api.ErrTypeMismatch):
		s.log.Info("subscriber anchor of another type", "subscription", sub.ID, "error", err)
	default:
		s.log.Error("compute patch", "subscription", sub.ID, "error", err)
	}
	s.drop(sub, err)
}

// commitFailed handles a failed commit. A corrupt history ends every
// subscription of the stream; the stream recovers when disposed.
func (s *stream) commitFailed(err error) {
	if !errors.Is(err, api.ErrStreamCorrupt) {
		s.log.Error("commit", "error", err)
		return
	}
	s.log.Error("stream corrupt, dropping subscribers", "error", err)
	for _, sub := range s.subscribers() {
		s.drop(sub, err)
	}
}

func (s *stream) subscribers() []*Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]*Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		res = append(res, sub)
	}
	return res
}

func (s *stream) add(sub *Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return api.NewError(api.ErrCodeStreamClosed, "stream "+s.key.String()+" disposed")
	}
	s.subs[sub.ID] = sub
	s.reg.metrics.subscribers.Inc()
	s.startLocked()
	go sub.run()
	return nil
}

// remove removes sub and stops the worker if it was the last subscriber.
// It reports whether sub was present.
func (s *stream) remove(sub *Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[sub.ID] != sub {
		return false
	}
	delete(s.subs, sub.ID)
	s.reg.metrics.subscribers.Dec()
	if len(s.subs) == 0 {
		s.stopLocked()
	}
	return true
}

// drop removes sub because of err and closes its sink with it. It is
// called from the worker, so the sink is closed off this goroutine.
func (s *stream) drop(sub *Subscriber, err error) {
	if !s.remove(sub) {
		return
	}
	if errors.Is(err, api.ErrSinkDelivery) {
		s.log.Warn("dropping subscriber", "subscription", sub.ID, "error", err)
	}
	sub.closeDetached(err)
}

func (s *stream) lookup(id string) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

// dispose ends every subscription with err and waits for the worker to
// exit.
func (s *stream) dispose(err error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	subs := s.subs
	s.subs = make(map[string]*Subscriber)
	s.reg.metrics.subscribers.Sub(float64(len(subs)))
	done := s.stopLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close(err)
	}
	if done != nil {
		<-done
	}
	if s.binding.OnDispose != nil {
		s.binding.OnDispose()
	}
}
