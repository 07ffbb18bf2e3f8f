package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/storage/seq"
)

var wf = api.StreamKey{Project: "p1"}

func doc(s string) ir.Doc {
	return ir.NewDoc("workflow", ir.MustJSON(s))
}

func newTestStore(limit int) *Store {
	return New(&Spec{HistoryLimit: limit, IDs: seq.NewCounter()})
}

func opStrings(ops []libdiff.Op) []string {
	res := make([]string, len(ops))
	for i := range ops {
		res[i] = ops[i].String()
	}
	return res
}

func TestCommitIdempotent(t *testing.T) {
	s := newTestStore(0)
	s1, err := s.Commit(wf, doc(`{"nodes":[{"id":"n1","state":"idle"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Commit(wf, doc(`{"nodes":[{"id":"n1","state":"idle"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != s1.ID {
		t.Errorf("equal commit minted %q, want %q", again.ID, s1.ID)
	}
	if n := s.Len(wf); n != 1 {
		t.Errorf("history has %d snapshots, want 1", n)
	}
	last, ok := s.GetLastCommit(wf)
	if !ok || last.ID != s1.ID {
		t.Errorf("last commit %v %v, want %q", last.ID, ok, s1.ID)
	}
}

func TestCommitTypeChangeMints(t *testing.T) {
	s := newTestStore(0)
	s1, _ := s.Commit(wf, ir.NewDoc("a", ir.MustJSON(`{}`)))
	s2, err := s.Commit(wf, ir.NewDoc("b", ir.MustJSON(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID == s2.ID {
		t.Fatal("type change did not mint a snapshot")
	}
	_, err = s.Changes(wf, s1.ID)
	if !errors.Is(err, api.ErrTypeMismatch) {
		t.Errorf("got %v, want type mismatch", err)
	}
}

func TestGetLastCommitEmpty(t *testing.T) {
	s := newTestStore(0)
	if _, ok := s.GetLastCommit(wf); ok {
		t.Error("empty stream has a last commit")
	}
}

func TestChangesAfterSingleEdit(t *testing.T) {
	s := newTestStore(0)
	r1 := doc(`{"nodes":[{"id":"n1","state":"idle"}]}`)
	r2 := doc(`{"nodes":[{"id":"n1","state":"running"}]}`)
	s1, _ := s.Commit(wf, r1)
	s2, _ := s.Commit(wf, r2)
	if s1.ID == s2.ID {
		t.Fatal("edit did not mint a snapshot")
	}
	p, err := s.GetChangesAndCommit(wf, s1.ID, r2)
	if err != nil {
		t.Fatal(err)
	}
	if p.From != s1.ID || p.To != s2.ID || p.TargetTypeID != "workflow" {
		t.Errorf("patch %s -> %s (%s)", p.From, p.To, p.TargetTypeID)
	}
	want := []string{`replace /nodes/0/state "running"`}
	if diff := cmp.Diff(want, opStrings(p.Ops)); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
	got, err := p.ApplyTo(r1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(r2) {
		t.Errorf("applied %s, want %s", got.Root.JSONString(), r2.Root.JSONString())
	}
}

func TestNoopPatch(t *testing.T) {
	s := newTestStore(0)
	r := doc(`{"a":1}`)
	s1, _ := s.Commit(wf, r)
	p, err := s.GetChangesAndCommit(wf, s1.ID, r)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsNoop() || p.From != s1.ID || p.TargetTypeID != "" || p.Ops == nil || len(p.Ops) != 0 {
		t.Errorf("got %+v, want the no-op patch from %s", p, s1.ID)
	}
}

func TestFullDocumentPatch(t *testing.T) {
	s := newTestStore(0)
	r := doc(`{"a":[1,2]}`)
	p, err := s.GetChangesAndCommit(wf, "", r)
	if err != nil {
		t.Fatal(err)
	}
	if p.From != "" || p.To == "" || len(p.Ops) != 1 {
		t.Fatalf("got %+v", p)
	}
	got, err := p.ApplyTo(ir.Doc{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(r) {
		t.Errorf("applied %s", got.Root.JSONString())
	}
}

func TestEvictedAnchor(t *testing.T) {
	s := newTestStore(2)
	s1, _ := s.Commit(wf, doc(`{"v":1}`))
	s2, _ := s.Commit(wf, doc(`{"v":2}`))
	s.Commit(wf, doc(`{"v":3}`))
	if n := s.Len(wf); n != 2 {
		t.Errorf("history has %d snapshots, want 2", n)
	}
	_, err := s.GetChangesAndCommit(wf, s1.ID, doc(`{"v":3}`))
	if !errors.Is(err, api.ErrUnknownAnchor) {
		t.Errorf("got %v, want unknown anchor", err)
	}
	if _, err := s.Changes(wf, s2.ID); err != nil {
		t.Errorf("retained anchor: %v", err)
	}
}

func TestIdsIncrease(t *testing.T) {
	gens := map[string]seq.Generator{
		"ulid":    seq.NewULID(),
		"counter": seq.NewCounter(),
	}
	for name, g := range gens {
		t.Run(name, func(t *testing.T) {
			s := New(&Spec{HistoryLimit: 4, IDs: g})
			var prev api.SnapshotID
			for i := range 50 {
				snap, err := s.Commit(wf, doc(fmt.Sprintf(`{"v":%d}`, i)))
				if err != nil {
					t.Fatal(err)
				}
				if prev != "" && s.Compare(prev, snap.ID) >= 0 {
					t.Fatalf("id %q not after %q", snap.ID, prev)
				}
				prev = snap.ID
			}
		})
	}
}

func TestDisposeIsolated(t *testing.T) {
	s := newTestStore(0)
	other := api.StreamKey{Project: "p1", Path: "sub"}
	a1, _ := s.Commit(wf, doc(`{"v":1}`))
	b1, _ := s.Commit(other, doc(`{"v":1}`))
	s.Commit(other, doc(`{"v":2}`))

	s.DisposeHistory(wf)

	if _, err := s.Changes(wf, a1.ID); !errors.Is(err, api.ErrUnknownAnchor) {
		t.Errorf("disposed anchor: got %v, want unknown anchor", err)
	}
	p, err := s.Changes(other, b1.ID)
	if err != nil {
		t.Fatalf("other stream: %v", err)
	}
	if len(p.Ops) != 1 {
		t.Errorf("other stream ops %v", opStrings(p.Ops))
	}
	a2, err := s.Commit(wf, doc(`{"v":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if a2.ID == a1.ID {
		t.Error("fresh history reused a disposed id")
	}
	if diff := cmp.Diff([]api.StreamKey{wf, other}, s.Streams()); diff != "" {
		t.Errorf("streams (-want +got):\n%s", diff)
	}
}

func TestCorruptStreamIsolated(t *testing.T) {
	s := newTestStore(0)
	other := api.StreamKey{Project: "p2"}
	s1, _ := s.Commit(wf, doc(`{"v":1}`))
	s.Commit(other, doc(`{"v":1}`))

	h := s.lookup(wf)
	h.mu.Lock()
	delete(h.docs, s1.ID)
	h.mu.Unlock()

	if _, err := s.Commit(wf, doc(`{"v":2}`)); !errors.Is(err, api.ErrStreamCorrupt) {
		t.Errorf("got %v, want stream corrupt", err)
	}
	if _, err := s.Commit(wf, doc(`{"v":3}`)); !errors.Is(err, api.ErrStreamCorrupt) {
		t.Errorf("corruption not sticky: %v", err)
	}
	if _, err := s.Commit(other, doc(`{"v":2}`)); err != nil {
		t.Errorf("other stream: %v", err)
	}
	s.DisposeHistory(wf)
	if _, err := s.Commit(wf, doc(`{"v":2}`)); err != nil {
		t.Errorf("after dispose: %v", err)
	}
}

func TestChangesMarksCorruptConcurrently(t *testing.T) {
	s := newTestStore(0)
	s1, _ := s.Commit(wf, doc(`{"v":1}`))
	h := s.lookup(wf)
	h.mu.Lock()
	delete(h.docs, s1.ID)
	h.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Changes(wf, "")
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if !errors.Is(err, api.ErrStreamCorrupt) {
			t.Errorf("reader %d: got %v, want stream corrupt", i, err)
		}
	}
	if _, err := s.Commit(wf, doc(`{"v":2}`)); !errors.Is(err, api.ErrStreamCorrupt) {
		t.Errorf("commit after corrupt read: %v", err)
	}
}

func TestPatchesReproduceHead(t *testing.T) {
	s := newTestStore(0)
	docs := []string{
		`{"nodes":[{"id":"a","x":1},{"id":"b","x":1}],"edges":[]}`,
		`{"nodes":[{"id":"a","x":2},{"id":"b","x":1},{"id":"c"}],"edges":[["a","b"]]}`,
		`{"nodes":[{"id":"c"},{"id":"a","x":2}],"edges":[["a","c"]]}`,
		`{"nodes":[],"edges":[["a","c"],["c","a"]],"note":"empty"}`,
	}
	var snaps []api.Snapshot
	for _, d := range docs {
		snap, err := s.Commit(wf, doc(d))
		if err != nil {
			t.Fatal(err)
		}
		snaps = append(snaps, snap)
	}
	head := snaps[len(snaps)-1]
	for _, from := range snaps[:len(snaps)-1] {
		p, err := s.Changes(wf, from.ID)
		if err != nil {
			t.Fatal(err)
		}
		got, err := p.ApplyTo(from.Doc)
		if err != nil {
			t.Fatalf("from %s: %v", from.ID, err)
		}
		if !got.Equal(head.Doc) {
			t.Errorf("from %s: got %s", from.ID, got.Root.JSONString())
		}
	}
}

func TestCommitNotifier(t *testing.T) {
	s := newTestStore(0)
	var got []*CommitNotification
	s.SetCommitNotifier(func(n *CommitNotification) {
		got = append(got, n)
	})
	s1, _ := s.Commit(wf, doc(`{"v":1}`))
	s.Commit(wf, doc(`{"v":1}`))
	s2, _ := s.Commit(wf, doc(`{"v":2}`))
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].Prev != "" || got[0].Ops != nil {
		t.Errorf("first notification %+v", got[0])
	}
	if got[1].Prev != s1.ID || got[1].Snapshot.ID != s2.ID {
		t.Errorf("second notification %s -> %s", got[1].Prev, got[1].Snapshot.ID)
	}
	if diff := cmp.Diff([]string{"replace /v 2"}, opStrings(got[1].Ops)); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
}

func TestConcurrentStreams(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for i := range 8 {
		key := api.StreamKey{Project: fmt.Sprintf("p%d", i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var from api.SnapshotID
			for j := range 100 {
				p, err := s.GetChangesAndCommit(key, from, doc(fmt.Sprintf(`{"v":%d}`, j)))
				if err != nil {
					t.Error(err)
					return
				}
				from = p.To
			}
		}()
	}
	wg.Wait()
	if n := len(s.Streams()); n != 8 {
		t.Errorf("got %d streams, want 8", n)
	}
}
