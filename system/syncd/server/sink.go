package server

import (
	"context"
	"sync"

	"github.com/signadot/docsync/system/syncd/api"
)

// Sink delivers patches to one subscriber.
//
// Push is called with at most one patch in flight per subscriber. It must
// return once ctx is done. Close is called once, when the subscription ends,
// with the reason or nil if the subscriber unsubscribed; it may be called
// while a Push is in flight.
type Sink interface {
	Push(ctx context.Context, p *api.Patch) error
	Close(err error)
}

// ChanSink is a Sink delivering to a channel.
type ChanSink struct {
	C chan *api.Patch

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewChanSink returns a ChanSink with the given channel buffer.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{
		C:    make(chan *api.Patch, buffer),
		done: make(chan struct{}),
	}
}

func (s *ChanSink) Push(ctx context.Context, p *api.Patch) error {
	select {
	case <-s.done:
		return api.NewError(api.ErrCodeStreamClosed, "sink closed")
	default:
	}
	select {
	case s.C <- p:
		return nil
	case <-s.done:
		return api.NewError(api.ErrCodeStreamClosed, "sink closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChanSink) Close(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Done is closed once the sink is closed.
func (s *ChanSink) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the sink was closed, valid once Done is closed.
func (s *ChanSink) Err() error {
	<-s.done
	return s.err
}
