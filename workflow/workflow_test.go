package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/libdiff"
	"github.com/signadot/docsync/system/syncd/derive"
	"github.com/signadot/docsync/system/syncd/track"
)

const etl = `
name: etl
nodes:
- id: read
  kind: csv-reader
  outputs: [{name: table}]
- id: clean
  kind: metanode
  name: Clean
  inputs: [{name: in}]
  outputs: [{name: out}]
  workflow:
    nodes:
    - id: dedup
      kind: dedup
    - id: trim
      kind: trim
- id: write
  kind: db-writer
  inputs: [{name: rows}]
connections:
- {source: read, sourcePort: table, dest: clean, destPort: in}
- {source: clean, sourcePort: out, dest: write, destPort: rows}
annotations:
- {id: a1, text: nightly}
`

func load(t *testing.T) *Workflow {
	t.Helper()
	def, err := Parse([]byte(etl))
	if err != nil {
		t.Fatal(err)
	}
	w, err := New(def)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

// recorder collects emitted categories.
type recorder struct {
	mu  sync.Mutex
	got []track.Category
}

func (r *recorder) listen(c track.Category) {
	r.mu.Lock()
	r.got = append(r.got, c)
	r.mu.Unlock()
}

func (r *recorder) take() []track.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.got
	r.got = nil
	return res
}

func TestMutationCategories(t *testing.T) {
	w := load(t)
	r := &recorder{}
	defer w.AddListener(r.listen)()

	tests := []struct {
		name string
		edit func() error
		want []track.Category
	}{
		{"state", func() error { return w.SetState("read", Running) }, []track.Category{track.State}},
		{"same state", func() error { return w.SetState("read", Running) }, nil},
		{"move marks dirty", func() error { return w.Move("read", Position{X: 10}) }, []track.Category{track.UIInfo | track.Metadata}},
		{"rename", func() error { return w.RenameNode("write", "Sink") }, []track.Category{track.UIInfo}},
		{"disconnect", func() error {
			return w.Disconnect(Connection{Source: "clean", SourcePort: "out", Dest: "write", DestPort: "rows"})
		}, []track.Category{track.Topology}},
		{"annotate", func() error { return w.Annotate(Annotation{ID: "a2", Text: "todo"}) }, []track.Category{track.Annotation}},
		{"name", func() error { return w.SetName("etl2") }, []track.Category{track.Metadata}},
		{"unknown node", func() error { return w.SetState("nope", Running) }, nil},
	}
	for _, tc := range tests {
		tc.edit()
		if diff := cmp.Diff(tc.want, r.take()); diff != "" {
			t.Errorf("%s: categories (-want +got):\n%s", tc.name, diff)
		}
	}
	if !w.Dirty() {
		t.Error("edited workflow not dirty")
	}
	w.MarkSaved()
	if diff := cmp.Diff([]track.Category{track.Metadata}, r.take()); diff != "" {
		t.Errorf("mark saved (-want +got):\n%s", diff)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"duplicate node", Definition{Nodes: []Node{{ID: "a"}, {ID: "a"}}}},
		{"missing id", Definition{Nodes: []Node{{Kind: "x"}}}},
		{"bad state", Definition{Nodes: []Node{{ID: "a", State: "sleeping"}}}},
		{"unknown source", Definition{
			Nodes:       []Node{{ID: "a", Inputs: []Port{{Name: "in"}}}},
			Connections: []Connection{{Source: "b", SourcePort: "out", Dest: "a", DestPort: "in"}},
		}},
		{"unknown port", Definition{
			Nodes:       []Node{{ID: "a", Outputs: []Port{{Name: "out"}}}, {ID: "b"}},
			Connections: []Connection{{Source: "a", SourcePort: "out", Dest: "b", DestPort: "in"}},
		}},
		{"bad nested", Definition{
			Nodes: []Node{{ID: "m", Workflow: &Definition{Nodes: []Node{{ID: "x"}, {ID: "x"}}}}},
		}},
	}
	for _, tc := range tests {
		if _, err := New(&tc.def); err == nil {
			t.Errorf("%s: no error", tc.name)
		}
	}
	if _, err := Parse([]byte("nodes:\n- id: a\n  colour: red\n")); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestRemoveNodeDropsConnections(t *testing.T) {
	w := load(t)
	sub, err := w.RemoveNode("clean")
	if err != nil {
		t.Fatal(err)
	}
	if sub == nil || sub.Name() != "Clean" {
		t.Errorf("nested workflow %v", sub)
	}
	if def := w.Definition(); len(def.Connections) != 0 {
		t.Errorf("connections left: %v", def.Connections)
	}
	if _, err := w.RemoveNode("clean"); !errors.Is(err, ErrNoNode) {
		t.Errorf("second removal: %v", err)
	}
}

func TestWalk(t *testing.T) {
	w := load(t)
	var paths []string
	w.Walk(func(path string, sub *Workflow) error {
		paths = append(paths, path+"="+sub.Name())
		return nil
	})
	if diff := cmp.Diff([]string{"=etl", "/clean=Clean"}, paths); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}
	clean, _ := w.Sub("clean")
	r := &recorder{}
	defer w.AddListener(r.listen)()
	clean.SetState("dedup", Running)
	if got := r.take(); len(got) != 0 {
		t.Errorf("nested edit notified the parent: %v", got)
	}
}

func TestRepresentation(t *testing.T) {
	w := load(t)
	doc, err := w.Representation()
	if err != nil {
		t.Fatal(err)
	}
	if doc.TypeID != TypeID {
		t.Errorf("type %q", doc.TypeID)
	}
	tests := []struct {
		path string
		want string
	}{
		{"/name", `"etl"`},
		{"/nodes/0/id", `"clean"`},
		{"/nodes/0/metanode", `true`},
		{"/nodes/1/state", `"idle"`},
		{"/connections/0/source", `"clean"`},
		{"/annotations/0/text", `"nightly"`},
	}
	for _, tc := range tests {
		n, ok := doc.Root.Get(ir.MustPath(tc.path))
		if !ok {
			t.Errorf("%s missing", tc.path)
			continue
		}
		if got := n.JSONString(); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.path, got, tc.want)
		}
	}
	if _, ok := doc.Root.Field("derived"); ok {
		t.Error("derived published without values")
	}

	w.SetState("read", Running)
	next, _ := w.Representation()
	var ops []string
	for _, op := range libdiff.Diff(doc.Root, next.Root) {
		ops = append(ops, op.String())
	}
	if diff := cmp.Diff([]string{`replace /nodes/1/state "running"`}, ops); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}

	with, _ := w.RepresentationWith(map[string]any{"running": 1})
	if n, ok := with.Root.Get(ir.MustPath("/derived/running")); !ok || n.JSONString() != "1" {
		t.Errorf("derived value %v", n)
	}
}

func TestDefinitionRoundTrip(t *testing.T) {
	w := load(t)
	again, err := New(w.Definition())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := w.Representation()
	b, _ := again.Representation()
	if !a.Equal(b) {
		t.Errorf("reloaded representation differs:\n%s\n%s", a.Root.JSONString(), b.Root.JSONString())
	}
}

func TestDerivedFromEnv(t *testing.T) {
	w := load(t)
	p, err := derive.Compile("running", `count(nodes, .state == "running")`, track.State)
	if err != nil {
		t.Fatal(err)
	}
	c := derive.FromProgram(w, p, (*Workflow).Env)
	defer c.Dispose()
	if v, err := c.Get(); err != nil || v != 0 {
		t.Fatalf("got %v %v", v, err)
	}
	w.SetState("read", Running)
	w.SetState("write", Running)
	if v, _ := c.Get(); v != 2 {
		t.Errorf("got %v, want 2", v)
	}
	w.Move("read", Position{X: 1})
	c.Get()
	if n := c.Computes(); n != 2 {
		t.Errorf("%d computes, position changes must not invalidate", n)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "etl.yaml"), []byte(etl), 0o644)
	os.WriteFile(filepath.Join(dir, "report.json"), []byte(`{"nodes":[{"id":"r","kind":"report"}]}`), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)
	ws, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ws) != 2 || ws["etl"] == nil || ws["report"] == nil {
		t.Errorf("loaded %v", ws)
	}
}

func TestStateNext(t *testing.T) {
	s := Idle
	var got []State
	for range 6 {
		s = s.Next()
		got = append(got, s)
	}
	want := []State{Configured, Queued, Running, Executed, Configured, Queued}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
}
