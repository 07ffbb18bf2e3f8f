package storage

import (
	"fmt"
	"sync"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
)

// history is the snapshot history of one stream. ids is ordered oldest
// first and its last element is the head.
type history struct {
	mu   sync.RWMutex
	key  api.StreamKey
	ids  []api.SnapshotID
	docs map[api.SnapshotID]ir.Doc
	head api.SnapshotID

	// corrupt is set once the head is found missing from docs; the stream then
	// refuses all operations until disposed.
	corrupt  error
	disposed bool
}

func newHistory(key api.StreamKey) *history {
	return &history{
		key:  key,
		docs: make(map[api.SnapshotID]ir.Doc),
	}
}

func (h *history) usable() error {
	if h.disposed {
		return api.NewError(api.ErrCodeStreamClosed, fmt.Sprintf("history of %s was disposed", h.key))
	}
	return h.corrupt
}

func (h *history) headDoc() (ir.Doc, error) {
	doc, ok := h.docs[h.head]
	if !ok {
		h.corrupt = api.NewError(api.ErrCodeStreamCorrupt, fmt.Sprintf("head %q of %s missing from history", h.head, h.key))
		return ir.Doc{}, h.corrupt
	}
	return doc, nil
}

func (h *history) append(id api.SnapshotID, doc ir.Doc) {
	h.docs[id] = doc
	h.ids = append(h.ids, id)
	h.head = id
}

// evict drops the oldest snapshots beyond limit, never the head. It
// returns the number of snapshots dropped.
func (h *history) evict(limit int) int {
	if limit <= 0 || len(h.ids) <= limit {
		return 0
	}
	n := len(h.ids) - limit
	for _, id := range h.ids[:n] {
		delete(h.docs, id)
	}
	h.ids = append(h.ids[:0:0], h.ids[n:]...)
	return n
}

func (h *history) dispose() {
	h.disposed = true
	h.ids = nil
	h.docs = nil
	h.head = ""
}
