package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
)

// StreamKey identifies an independently versioned document, e.g. one
// workflow (Path "") or one of its sub-workflows.
type StreamKey struct {
	Project string `json:"project"`
	Path    string `json:"path"`
}

// Compare orders keys by project, then path.
func (k StreamKey) Compare(o StreamKey) int {
	if c := strings.Compare(k.Project, o.Project); c != 0 {
		return c
	}
	return strings.Compare(k.Path, o.Path)
}

func (k StreamKey) String() string {
	if k.Path == "" {
		return k.Project
	}
	return k.Project + ":" + k.Path
}

// SnapshotID is an opaque snapshot token. Clients may only compare ids for
// equality.
type SnapshotID string

// Snapshot is a committed representation.
type Snapshot struct {
	ID  SnapshotID `json:"id"`
	Doc ir.Doc     `json:"doc"`
}

func (s Snapshot) IsZero() bool {
	return s.ID == ""
}

// Patch is an ordered edit script from one snapshot to another.
type Patch struct {
	From         SnapshotID   `json:"fromSnapshotId"`
	To           SnapshotID   `json:"toSnapshotId,omitempty"`
	TargetTypeID string       `json:"targetTypeId,omitempty"`
	Ops          []libdiff.Op `json:"ops"`
}

// NoopPatch returns the conventional "nothing changed" patch.
func NoopPatch(from SnapshotID) *Patch {
	return &Patch{From: from, Ops: []libdiff.Op{}}
}

// IsNoop reports whether p is the "nothing changed" patch.
func (p *Patch) IsNoop() bool {
	return p.To == ""
}

type wirePatch struct {
	From         *SnapshotID  `json:"fromSnapshotId"`
	To           SnapshotID   `json:"toSnapshotId,omitempty"`
	TargetTypeID string       `json:"targetTypeId,omitempty"`
	Ops          []libdiff.Op `json:"ops"`
}

// MarshalJSON renders an empty From as null and always emits an ops array.
func (p *Patch) MarshalJSON() ([]byte, error) {
	w := wirePatch{To: p.To, TargetTypeID: p.TargetTypeID, Ops: p.Ops}
	if p.From != "" {
		w.From = &p.From
	}
	if w.Ops == nil {
		w.Ops = []libdiff.Op{}
	}
	return json.Marshal(w)
}

func (p *Patch) UnmarshalJSON(d []byte) error {
	var w wirePatch
	if err := json.Unmarshal(d, &w); err != nil {
		return err
	}
	*p = Patch{To: w.To, TargetTypeID: w.TargetTypeID, Ops: w.Ops}
	if w.From != nil {
		p.From = *w.From
	}
	if p.Ops == nil {
		p.Ops = []libdiff.Op{}
	}
	if p.To == "" && len(p.Ops) != 0 {
		return fmt.Errorf("patch without toSnapshotId has %d ops", len(p.Ops))
	}
	return nil
}

// ApplyTo applies p to doc. A no-op patch returns doc unchanged. Any other
// patch fails with a type mismatch if doc is not of the patch's target
// type, whether or not it has ops. A full-document patch (one without a
// from snapshot) may also be applied to the zero Doc.
func (p *Patch) ApplyTo(doc ir.Doc) (ir.Doc, error) {
	if p.IsNoop() {
		return doc, nil
	}
	if p.From == "" && doc.IsZero() {
		doc = ir.NewDoc(p.TargetTypeID, nil)
	}
	if p.TargetTypeID != doc.TypeID {
		return ir.Doc{}, TypeMismatch(p.TargetTypeID, doc.TypeID)
	}
	root, err := libdiff.Apply(doc.Root, p.Ops)
	if err != nil {
		return ir.Doc{}, err
	}
	return ir.NewDoc(doc.TypeID, root), nil
}
