package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
)

func TestPatchWireShape(t *testing.T) {
	tests := []struct {
		name  string
		patch *Patch
		json  string
	}{
		{
			name:  "noop",
			patch: NoopPatch("s2"),
			json:  `{"fromSnapshotId":"s2","ops":[]}`,
		},
		{
			name: "full document",
			patch: &Patch{To: "s1", TargetTypeID: "workflow", Ops: []libdiff.Op{
				{Kind: libdiff.OpReplace, Path: ir.Path{}, Value: ir.MustJSON(`{"a":1}`)},
			}},
			json: `{"fromSnapshotId":null,"toSnapshotId":"s1","targetTypeId":"workflow","ops":[{"op":"replace","path":"","value":{"a":1}}]}`,
		},
		{
			name:  "nil ops",
			patch: &Patch{From: "s1", To: "s2", TargetTypeID: "workflow"},
			json:  `{"fromSnapshotId":"s1","toSnapshotId":"s2","targetTypeId":"workflow","ops":[]}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := json.Marshal(tc.patch)
			if err != nil {
				t.Fatal(err)
			}
			if string(d) != tc.json {
				t.Errorf("got %s\nwant %s", d, tc.json)
			}
			var back Patch
			if err := json.Unmarshal(d, &back); err != nil {
				t.Fatal(err)
			}
			if back.From != tc.patch.From || back.To != tc.patch.To || back.IsNoop() != tc.patch.IsNoop() {
				t.Errorf("round trip gave %+v", back)
			}
		})
	}
}

func TestPatchUnmarshalRejectsOpsWithoutTarget(t *testing.T) {
	var p Patch
	err := json.Unmarshal([]byte(`{"fromSnapshotId":"a","ops":[{"op":"remove","path":"/x"}]}`), &p)
	if err == nil {
		t.Error("expected error")
	}
}

func TestApplyToTypeMismatch(t *testing.T) {
	doc := ir.NewDoc("metanode", ir.MustJSON(`{}`))
	p := &Patch{From: "a", To: "b", TargetTypeID: "workflow", Ops: []libdiff.Op{}}
	if _, err := p.ApplyTo(doc); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected type mismatch for empty op list, got %v", err)
	}
	res, err := NoopPatch("a").ApplyTo(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal(doc) {
		t.Error("noop patch must be the identity")
	}
}

func TestApplyTo(t *testing.T) {
	from := ir.NewDoc("workflow", ir.MustJSON(`{"name":"a","nodes":[]}`))
	to := ir.NewDoc("workflow", ir.MustJSON(`{"name":"b","nodes":[{"id":"n1"}]}`))
	p := &Patch{From: "1", To: "2", TargetTypeID: "workflow", Ops: libdiff.Diff(from.Root, to.Root)}
	res, err := p.ApplyTo(from)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal(to) {
		t.Errorf("got %s", res.Root.JSONString())
	}

	full := &Patch{To: "2", TargetTypeID: "workflow", Ops: []libdiff.Op{{Kind: libdiff.OpReplace, Path: ir.Path{}, Value: to.Root}}}
	res, err = full.ApplyTo(ir.Doc{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal(to) {
		t.Errorf("full patch gave %s", res.Root.JSONString())
	}
}
