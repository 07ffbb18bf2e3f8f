package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/system/syncd/api"
)

// Session serves the JSON-RPC session protocol on one connection. A
// session may hold any number of subscriptions; they end with the session.
type Session struct {
	ID       string
	netConn  net.Conn
	conn     jsonrpc2.Conn
	registry *Registry
	log      *slog.Logger

	mu   sync.Mutex
	subs map[string]api.StreamKey

	// out queues notifications for writeLoop.
	out chan outgoing
}

type outgoing struct {
	method string
	params any
}

// SessionConfig contains configuration for creating a session.
type SessionConfig struct {
	Registry *Registry
	Log      *slog.Logger
	// Buffer is the number of notifications queued for the connection
	// before pushes start to wait.
	Buffer int
}

// NewSession creates a new session for the given connection.
func NewSession(id string, c net.Conn, cfg *SessionConfig) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:       id,
		netConn:  c,
		conn:     jsonrpc2.NewConn(jsonrpc2.NewStream(c)),
		registry: cfg.Registry,
		log:      log.With("session", id),
		subs:     make(map[string]api.StreamKey),
		out:      make(chan outgoing, cfg.Buffer),
	}
}

// Run serves requests until the connection is closed.
func (s *Session) Run(ctx context.Context) error {
	s.conn.Go(ctx, s.handle)
	go s.writeLoop()
	<-s.conn.Done()
	s.cleanup()
	if err := s.conn.Err(); err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

// Close closes the connection; Run returns once it has cleaned up.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) cleanup() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]api.StreamKey)
	s.mu.Unlock()
	for id, key := range subs {
		s.registry.Unsubscribe(key, id)
	}
}

func (s *Session) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var (
		res any
		err error
	)
	switch req.Method() {
	case api.MethodSubscribe:
		var p api.SubscribeParams
		if err := decodeParams(req, &p); err != nil {
			return reply(ctx, nil, err)
		}
		res, err = s.subscribe(&p)
	case api.MethodUnsubscribe:
		var p api.UnsubscribeParams
		if err := decodeParams(req, &p); err != nil {
			return reply(ctx, nil, err)
		}
		err = s.unsubscribe(&p)
	case api.MethodSnapshot:
		var p api.SnapshotParams
		if err := decodeParams(req, &p); err != nil {
			return reply(ctx, nil, err)
		}
		res, err = s.registry.Snapshot(p.StreamKey)
	case api.MethodChanges:
		var p api.ChangesParams
		if err := decodeParams(req, &p); err != nil {
			return reply(ctx, nil, err)
		}
		res, err = s.registry.Changes(p.StreamKey, p.From)
	case api.MethodStreams:
		res = &api.StreamsResult{Streams: s.registry.Streams()}
	default:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, "unknown method "+req.Method()))
	}
	if err != nil {
		s.log.Debug("request failed", "method", req.Method(), "error", err)
		return reply(ctx, nil, toRPCError(err))
	}
	return reply(ctx, res, nil)
}

func decodeParams(req jsonrpc2.Request, v any) error {
	if len(req.Params()) == 0 {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, "missing params")
	}
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	}
	return nil
}

func (s *Session) subscribe(p *api.SubscribeParams) (*api.SubscribeResult, error) {
	sink := &sessionSink{session: s, stream: p.StreamKey}
	// hold pushes until the subscription is recorded so the id is known
	// before the first patch is sent
	sink.ready.Add(1)
	defer sink.ready.Done()
	sub, err := s.registry.Subscribe(p.StreamKey, p.Anchor, sink)
	if err != nil {
		return nil, err
	}
	sink.id = sub.ID
	s.mu.Lock()
	s.subs[sub.ID] = p.StreamKey
	s.mu.Unlock()
	return &api.SubscribeResult{Subscription: sub.ID}, nil
}

func (s *Session) unsubscribe(p *api.UnsubscribeParams) error {
	s.mu.Lock()
	key, ok := s.subs[p.Subscription]
	delete(s.subs, p.Subscription)
	s.mu.Unlock()
	if !ok {
		return api.NewError(api.ErrCodeNotFound, "no subscription "+p.Subscription+" in session")
	}
	return s.registry.Unsubscribe(key, p.Subscription)
}

func (s *Session) forget(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// notify queues a notification. It fails when the queue stays full until
// ctx ends.
func (s *Session) notify(ctx context.Context, method string, params any) error {
	select {
	case s.out <- outgoing{method: method, params: params}:
		return nil
	case <-s.conn.Done():
		return api.NewError(api.ErrCodeStreamClosed, "session "+s.ID+" closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop writes queued notifications in order. A write that does not
// finish within the push timeout ends the session.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.conn.Done():
			return
		case o := <-s.out:
			if d := s.registry.pushTimeout; d > 0 {
				s.netConn.SetWriteDeadline(time.Now().Add(d))
			}
			err := s.conn.Notify(context.Background(), o.method, o.params)
			s.netConn.SetWriteDeadline(time.Time{})
			if err != nil {
				s.log.Debug("notification failed", "method", o.method, "error", err)
				s.conn.Close()
				return
			}
		}
	}
}

// sessionSink pushes one subscription's patches as notifications.
type sessionSink struct {
	session *Session
	stream  api.StreamKey
	id      string
	ready   sync.WaitGroup
}

func (k *sessionSink) Push(ctx context.Context, p *api.Patch) error {
	k.ready.Wait()
	return k.session.notify(ctx, api.NotifyPatch, &api.PatchEvent{
		Subscription: k.id,
		Stream:       k.stream,
		Patch:        p,
	})
}

func (k *sessionSink) Close(err error) {
	k.ready.Wait()
	k.session.forget(k.id)
	if err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.session.registry.pushTimeout)
	defer cancel()
	ev := &api.ClosedEvent{Subscription: k.id, Stream: k.stream, Error: api.AsError(err)}
	if nerr := k.session.notify(ctx, api.NotifyClosed, ev); nerr != nil {
		k.session.log.Debug("closed notification not sent", "subscription", k.id, "error", nerr)
	}
}
