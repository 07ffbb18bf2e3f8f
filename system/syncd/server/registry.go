package server

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/storage"
)

// Registry tracks open streams and their subscribers. Streams are opened
// explicitly with a Binding to their live model and disposed explicitly.
type Registry struct {
	store       *storage.Store
	log         *slog.Logger
	metrics     *metrics
	pushTimeout time.Duration
	coalesce    time.Duration

	mu      sync.Mutex
	streams map[api.StreamKey]*stream
	closed  bool
}

// RegistrySpec configures a Registry.
type RegistrySpec struct {
	Store       *storage.Store
	Log         *slog.Logger
	Registerer  prometheus.Registerer
	PushTimeout time.Duration
	Coalesce    time.Duration
}

// NewRegistry creates a registry over spec.Store.
func NewRegistry(spec *RegistrySpec) *Registry {
	r := &Registry{
		store:       spec.Store,
		log:         spec.Log,
		pushTimeout: spec.PushTimeout,
		coalesce:    spec.Coalesce,
		streams:     make(map[api.StreamKey]*stream),
	}
	if r.store == nil {
		r.store = storage.New(nil)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.pushTimeout <= 0 {
		r.pushTimeout = DefaultPushTimeout
	}
	reg := spec.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r.metrics = newMetrics(reg)
	r.store.SetCommitNotifier(func(*storage.CommitNotification) {
		r.metrics.commits.Inc()
	})
	return r
}

// Store returns the registry's snapshot store.
func (r *Registry) Store() *storage.Store {
	return r.store
}

// Open opens the stream key bound to a live model.
func (r *Registry) Open(key api.StreamKey, b Binding) error {
	if b.Source == nil || b.Build == nil {
		return api.NewError(api.ErrCodeInvalidConfig, "binding needs a source and a build function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.NewError(api.ErrCodeStreamClosed, "registry closed")
	}
	if _, ok := r.streams[key]; ok {
		return api.NewError(api.ErrCodeInvalidConfig, "stream "+key.String()+" already open")
	}
	r.streams[key] = newStream(r, key, b)
	r.metrics.streams.Inc()
	r.log.Info("opened stream", "stream", key.String())
	return nil
}

// Dispose closes the stream key. Its subscribers are closed with an error
// matching api.ErrStreamClosed and its history is discarded, so snapshot
// ids issued for it become unknown. Disposing while a cycle or push is in
// flight is safe.
func (r *Registry) Dispose(key api.StreamKey) error {
	r.mu.Lock()
	st, ok := r.streams[key]
	delete(r.streams, key)
	r.mu.Unlock()
	if !ok {
		return api.NewError(api.ErrCodeNotFound, "stream "+key.String()+" not open")
	}
	r.metrics.streams.Dec()
	st.dispose(api.NewError(api.ErrCodeStreamClosed, "stream "+key.String()+" disposed"))
	r.store.DisposeHistory(key)
	r.log.Info("disposed stream", "stream", key.String())
	return nil
}

// DisposeProject disposes every stream of project, e.g. a workflow and its
// sub-workflows.
func (r *Registry) DisposeProject(project string) {
	for _, key := range r.Streams() {
		if key.Project == project {
			r.Dispose(key)
		}
	}
}

func (r *Registry) stream(key api.StreamKey) (*stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[key]
	if !ok {
		return nil, api.NewError(api.ErrCodeNotFound, "stream "+key.String()+" not open")
	}
	return st, nil
}

// Subscribe registers sink on key, anchored at anchor. An empty anchor
// means the subscriber has no copy yet and first receives a full-document
// patch. A catch-up push is attempted right away.
func (r *Registry) Subscribe(key api.StreamKey, anchor api.SnapshotID, sink Sink) (*Subscriber, error) {
	st, err := r.stream(key)
	if err != nil {
		return nil, err
	}
	sub := newSubscriber(st, ulid.Make().String(), anchor, sink)
	if err := st.add(sub); err != nil {
		return nil, err
	}
	sub.log.Debug("subscribed", "anchor", string(anchor))
	st.kick(true)
	return sub, nil
}

// Unsubscribe removes subscription id from key and closes its sink with a
// nil error. The stream's tracker and worker stop with its last
// subscriber.
func (r *Registry) Unsubscribe(key api.StreamKey, id string) error {
	st, err := r.stream(key)
	if err != nil {
		return err
	}
	sub := st.lookup(id)
	if sub == nil || !st.remove(sub) {
		return api.NewError(api.ErrCodeNotFound, "no subscription "+id+" on "+key.String())
	}
	sub.close(nil)
	sub.log.Debug("unsubscribed")
	return nil
}

// NotifyMutated marks key dirty. It never blocks and does no diffing.
// Notifications on a stream without subscribers are ignored.
func (r *Registry) NotifyMutated(key api.StreamKey) {
	st, err := r.stream(key)
	if err != nil {
		return
	}
	st.mu.Lock()
	running := st.tracker != nil
	st.mu.Unlock()
	if running {
		st.kick(true)
	}
}

// Snapshot commits the current representation of key and returns it. It
// is how a client fetches a full copy to anchor on.
func (r *Registry) Snapshot(key api.StreamKey) (api.Snapshot, error) {
	st, err := r.stream(key)
	if err != nil {
		return api.Snapshot{}, err
	}
	doc, err := st.binding.Build()
	if err != nil {
		return api.Snapshot{}, err
	}
	return r.store.Commit(key, doc)
}

// Changes commits the current representation of key and returns the patch
// from the snapshot from to it.
func (r *Registry) Changes(key api.StreamKey, from api.SnapshotID) (*api.Patch, error) {
	st, err := r.stream(key)
	if err != nil {
		return nil, err
	}
	doc, err := st.binding.Build()
	if err != nil {
		return nil, err
	}
	return r.store.GetChangesAndCommit(key, from, doc)
}

// Streams lists the open streams.
func (r *Registry) Streams() []api.StreamKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]api.StreamKey, 0, len(r.streams))
	for k := range r.streams {
		res = append(res, k)
	}
	slices.SortFunc(res, api.StreamKey.Compare)
	return res
}

// SubscriberCount returns the number of subscribers of key.
func (r *Registry) SubscriberCount(key api.StreamKey) int {
	st, err := r.stream(key)
	if err != nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

// Cycles returns the number of worker cycles key has run.
func (r *Registry) Cycles(key api.StreamKey) uint64 {
	st, err := r.stream(key)
	if err != nil {
		return 0
	}
	return st.cycles.Load()
}

// Close disposes every stream.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	keys := make([]api.StreamKey, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	for _, k := range keys {
		r.Dispose(k)
	}
}
