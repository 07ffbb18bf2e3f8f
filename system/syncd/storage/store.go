package storage

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/storage/seq"
)

// DefaultHistoryLimit is the default number of snapshots kept per stream.
const DefaultHistoryLimit = 64

// Spec holds the runtime settings of a Store.
type Spec struct {
	// HistoryLimit bounds the snapshots kept per stream. Zero means
	// unbounded.
	HistoryLimit int
	// IDs mints snapshot ids. Defaults to monotonic ULIDs.
	IDs seq.Generator
	// DiffOptions are passed to libdiff.Diff.
	DiffOptions []libdiff.Option
	Log         *slog.Logger
}

// CommitNotification describes a commit that minted a new snapshot.
type CommitNotification struct {
	Stream   api.StreamKey
	Prev     api.SnapshotID
	Snapshot api.Snapshot
	// Ops transform Prev into Snapshot. Nil if Prev is empty or of another
	// type.
	Ops []libdiff.Op
}

// CommitNotifier is called after each commit that minted a snapshot.
type CommitNotifier func(*CommitNotification)

// Store is the snapshot store.
type Store struct {
	mu      sync.RWMutex
	streams map[api.StreamKey]*history

	ids      seq.Generator
	limit    int
	diffOpts []libdiff.Option
	log      *slog.Logger

	notifyMu sync.RWMutex
	notify   CommitNotifier
}

// New creates a Store. A nil spec gives the defaults.
func New(spec *Spec) *Store {
	if spec == nil {
		spec = &Spec{HistoryLimit: DefaultHistoryLimit}
	}
	s := &Store{
		streams:  make(map[api.StreamKey]*history),
		ids:      spec.IDs,
		limit:    spec.HistoryLimit,
		diffOpts: spec.DiffOptions,
		log:      spec.Log,
	}
	if s.ids == nil {
		s.ids = seq.NewULID()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.limit < 0 {
		s.limit = 0
	}
	return s
}

// SetCommitNotifier sets the callback invoked after each minting commit.
// It is called outside of any store lock.
func (s *Store) SetCommitNotifier(fn CommitNotifier) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.notify = fn
}

// Compare orders two snapshot ids minted by this store.
func (s *Store) Compare(a, b api.SnapshotID) int {
	return s.ids.Compare(string(a), string(b))
}

// open returns the history of key, creating it if needed.
func (s *Store) open(key api.StreamKey) *history {
	s.mu.RLock()
	h := s.streams[key]
	s.mu.RUnlock()
	if h != nil {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h = s.streams[key]
	if h == nil {
		h = newHistory(key)
		s.streams[key] = h
	}
	return h
}

func (s *Store) lookup(key api.StreamKey) *history {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams[key]
}

// Commit stores doc as the new head of key unless it is structurally equal
// to the current head, in which case the current head is returned and no id
// is minted.
func (s *Store) Commit(key api.StreamKey, doc ir.Doc) (api.Snapshot, error) {
	h := s.open(key)
	h.mu.Lock()
	res, err := s.commitLocked(h, doc)
	h.mu.Unlock()
	if err != nil {
		return api.Snapshot{}, err
	}
	s.fire(res.notification)
	return res.snapshot, nil
}

// GetLastCommit returns the head of key, if anything was ever committed.
func (s *Store) GetLastCommit(key api.StreamKey) (api.Snapshot, bool) {
	h := s.lookup(key)
	if h == nil {
		return api.Snapshot{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.head == "" || h.disposed {
		return api.Snapshot{}, false
	}
	doc, ok := h.docs[h.head]
	if !ok {
		return api.Snapshot{}, false
	}
	return api.Snapshot{ID: h.head, Doc: doc}, true
}

// Get returns the snapshot id of key if it is still in history.
func (s *Store) Get(key api.StreamKey, id api.SnapshotID) (api.Snapshot, error) {
	h := s.lookup(key)
	if h == nil {
		return api.Snapshot{}, api.UnknownAnchor(key, id)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[id]
	if !ok {
		return api.Snapshot{}, api.UnknownAnchor(key, id)
	}
	return api.Snapshot{ID: id, Doc: doc}, nil
}

// GetChangesAndCommit commits doc as Commit does, then returns the patch
// from the snapshot from to the resulting head. If from is the resulting
// head the no-op patch is returned. If from is empty the patch is a
// full-document patch.
func (s *Store) GetChangesAndCommit(key api.StreamKey, from api.SnapshotID, doc ir.Doc) (*api.Patch, error) {
	h := s.open(key)
	h.mu.Lock()
	res, err := s.commitLocked(h, doc)
	var patch *api.Patch
	if err == nil {
		var reuse []libdiff.Op
		if res.notification != nil && res.notification.Prev == from {
			reuse = res.notification.Ops
		}
		patch, err = s.changesLocked(h, from, reuse)
	}
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.fire(res.notification)
	return patch, nil
}

// Changes returns the patch from the snapshot from to the current head of
// key without committing anything. It takes the write lock since finding
// the history corrupt marks it so.
func (s *Store) Changes(key api.StreamKey, from api.SnapshotID) (*api.Patch, error) {
	h := s.lookup(key)
	if h == nil {
		if from == "" {
			return api.NoopPatch(from), nil
		}
		return nil, api.UnknownAnchor(key, from)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return s.changesLocked(h, from, nil)
}

// DisposeHistory discards every snapshot of key. Ids previously issued for
// key are unknown afterwards. A later commit to key starts a fresh history.
func (s *Store) DisposeHistory(key api.StreamKey) {
	s.mu.Lock()
	h := s.streams[key]
	delete(s.streams, key)
	s.mu.Unlock()
	if h == nil {
		return
	}
	h.mu.Lock()
	h.dispose()
	h.mu.Unlock()
	s.log.Debug("disposed history", "stream", key.String())
}

// Len returns the number of snapshots held for key.
func (s *Store) Len(key api.StreamKey) int {
	h := s.lookup(key)
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Streams lists the streams with a history.
func (s *Store) Streams() []api.StreamKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]api.StreamKey, 0, len(s.streams))
	for k := range s.streams {
		res = append(res, k)
	}
	slices.SortFunc(res, api.StreamKey.Compare)
	return res
}

func (s *Store) fire(n *CommitNotification) {
	if n == nil {
		return
	}
	s.notifyMu.RLock()
	fn := s.notify
	s.notifyMu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

type commitResult struct {
	snapshot api.Snapshot
	// notification is nil if no id was minted
	notification *CommitNotification
}

func (s *Store) commitLocked(h *history, doc ir.Doc) (commitResult, error) {
	if err := h.usable(); err != nil {
		return commitResult{}, err
	}
	var ops []libdiff.Op
	if h.head != "" {
		headDoc, err := h.headDoc()
		if err != nil {
			s.log.Error("stream history corrupt", "stream", h.key.String(), "error", err)
			return commitResult{}, err
		}
		if headDoc.TypeID == doc.TypeID {
			ops = libdiff.Diff(headDoc.Root, doc.Root, s.diffOpts...)
			if len(ops) == 0 {
				return commitResult{snapshot: api.Snapshot{ID: h.head, Doc: headDoc}}, nil
			}
		}
	}
	idStr, err := s.ids.Next()
	if err != nil {
		return commitResult{}, err
	}
	id := api.SnapshotID(idStr)
	prev := h.head
	h.append(id, doc)
	evicted := h.evict(s.limit)
	if debug.Commit() {
		debug.Logf("commit %s on %s: %d ops, %d evicted\n", id, h.key, len(ops), evicted)
	}
	snap := api.Snapshot{ID: id, Doc: doc}
	return commitResult{
		snapshot: snap,
		notification: &CommitNotification{
			Stream:   h.key,
			Prev:     prev,
			Snapshot: snap,
			Ops:      ops,
		},
	}, nil
}

// changesLocked computes the patch from the snapshot from to the head. ops,
// if not nil, is a precomputed diff from from to the head.
func (s *Store) changesLocked(h *history, from api.SnapshotID, ops []libdiff.Op) (*api.Patch, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	if from == h.head {
		return api.NoopPatch(from), nil
	}
	headDoc, err := h.headDoc()
	if err != nil {
		return nil, err
	}
	if from == "" {
		return &api.Patch{
			To:           h.head,
			TargetTypeID: headDoc.TypeID,
			Ops:          []libdiff.Op{{Kind: libdiff.OpReplace, Path: ir.Path{}, Value: headDoc.Root}},
		}, nil
	}
	fromDoc, ok := h.docs[from]
	if !ok {
		return nil, api.UnknownAnchor(h.key, from)
	}
	if fromDoc.TypeID != headDoc.TypeID {
		return nil, api.TypeMismatch(fromDoc.TypeID, headDoc.TypeID)
	}
	if ops == nil {
		ops = libdiff.Diff(fromDoc.Root, headDoc.Root, s.diffOpts...)
	}
	patch := &api.Patch{
		From:         from,
		To:           h.head,
		TargetTypeID: headDoc.TypeID,
		Ops:          ops,
	}
	if debug.Verify() {
		if err := verify(fromDoc, headDoc, patch); err != nil {
			h.corrupt = err
			s.log.Error("patch verification failed", "stream", h.key.String(), "error", err)
			return nil, err
		}
	}
	return patch, nil
}

func verify(from, to ir.Doc, p *api.Patch) error {
	got, err := p.ApplyTo(from)
	if err != nil {
		return api.WrapError(api.ErrCodeStreamCorrupt, err, "patch %s -> %s does not apply", p.From, p.To)
	}
	if !got.Equal(to) {
		return api.NewError(api.ErrCodeStreamCorrupt, "patch "+string(p.From)+" -> "+string(p.To)+" does not reproduce its target")
	}
	return nil
}
