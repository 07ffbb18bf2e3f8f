package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signadot/docsync/system/syncd/api"
)

// Handler returns the HTTP interface:
//
//	GET  /streams                          open streams
//	GET  /streams/{project}/snapshot       full snapshot
//	GET  /streams/{project}/changes?from=  patch since a snapshot
//	POST /streams/{project}/notify         mark the stream dirty
//	GET  /streams/{project}/events?anchor= server-sent patch events
//	GET  /streams/{project}/ws?anchor=     patches over a WebSocket
//	GET  /metrics                          prometheus metrics
//
// Every stream route takes the stream's path in the "path" query parameter.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/streams", s.handleStreams)
	r.Route("/streams/{project}", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/changes", s.handleChanges)
		r.Post("/notify", s.handleNotify)
		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWebSocket)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func streamKey(r *http.Request) api.StreamKey {
	return api.StreamKey{
		Project: chi.URLParam(r, "project"),
		Path:    r.URL.Query().Get("path"),
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrUnknownAnchor), errors.Is(err, api.ErrStreamClosed):
		return http.StatusGone
	case errors.Is(err, api.ErrTypeMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), api.AsError(err))
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &api.StreamsResult{Streams: s.Registry.Streams()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.Snapshot(streamKey(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	from := api.SnapshotID(r.URL.Query().Get("from"))
	p, err := s.Registry.Changes(streamKey(r), from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	s.Registry.NotifyMutated(streamKey(r))
	w.WriteHeader(http.StatusAccepted)
}

// sseSink writes patches as server-sent events. Writes stop once the
// handler is done with the response.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	finished bool

	closeOnce sync.Once
	done      chan struct{}
}

func (k *sseSink) event(ctx context.Context, name string, v any) error {
	d, err := json.Marshal(v)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.finished {
		return api.NewError(api.ErrCodeStreamClosed, "event stream finished")
	}
	if dl, ok := ctx.Deadline(); ok {
		k.rc.SetWriteDeadline(dl)
		defer k.rc.SetWriteDeadline(time.Time{})
	}
	if _, err := fmt.Fprintf(k.w, "event: %s\ndata: %s\n\n", name, d); err != nil {
		return err
	}
	return k.rc.Flush()
}

func (k *sseSink) Push(ctx context.Context, p *api.Patch) error {
	return k.event(ctx, "patch", p)
}

func (k *sseSink) Close(err error) {
	k.closeOnce.Do(func() {
		if err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			k.event(ctx, "error", api.AsError(err))
			cancel()
		}
		close(k.done)
	})
}

func (k *sseSink) finish() {
	k.mu.Lock()
	k.finished = true
	k.mu.Unlock()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	key := streamKey(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	rc := http.NewResponseController(w)

	sink := &sseSink{w: w, rc: rc, done: make(chan struct{})}
	sink.mu.Lock()
	sub, err := s.Registry.Subscribe(key, api.SnapshotID(r.URL.Query().Get("anchor")), sink)
	if err != nil {
		sink.finished = true
		sink.mu.Unlock()
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	rc.Flush()
	sink.mu.Unlock()

	select {
	case <-r.Context().Done():
		s.Registry.Unsubscribe(key, sub.ID)
	case <-sink.done:
	}
	sink.finish()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is the envelope of WebSocket messages.
type wsMessage struct {
	Type  string     `json:"type"`
	Patch *api.Patch `json:"patch,omitempty"`
	Error *api.Error `json:"error,omitempty"`
}

type wsSink struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (k *wsSink) write(ctx context.Context, m *wsMessage) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		k.conn.SetWriteDeadline(dl)
		defer k.conn.SetWriteDeadline(time.Time{})
	}
	return k.conn.WriteJSON(m)
}

func (k *wsSink) Push(ctx context.Context, p *api.Patch) error {
	return k.write(ctx, &wsMessage{Type: "patch", Patch: p})
}

func (k *wsSink) Close(err error) {
	k.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err != nil {
			k.write(ctx, &wsMessage{Type: "error", Error: api.AsError(err)})
		}
		k.mu.Lock()
		k.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		k.mu.Unlock()
		close(k.done)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := streamKey(r)
	anchor := api.SnapshotID(r.URL.Query().Get("anchor"))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Spec.Log.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn, done: make(chan struct{})}
	sub, err := s.Registry.Subscribe(key, anchor, sink)
	if err != nil {
		sink.Close(err)
		return
	}
	log := s.Spec.Log.With("stream", key.String(), "subscription", sub.ID)
	log.Debug("websocket client connected")

	// the client only sends control frames; reading detects its departure
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-gone:
		s.Registry.Unsubscribe(key, sub.ID)
		log.Debug("websocket client disconnected")
	case <-sink.done:
	}
}
