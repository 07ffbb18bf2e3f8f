package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/server"
	"github.com/signadot/docsync/workflow"
)

func TestOpenWorkflowPublishesDerived(t *testing.T) {
	def, err := workflow.Parse([]byte(`
nodes:
- id: a
  kind: source
  outputs: [{name: out}]
- id: m
  kind: metanode
  inputs: [{name: in}]
  workflow:
    nodes: [{id: x, kind: inner}]
connections:
- {source: a, sourcePort: out, dest: m, destPort: in}
`))
	if err != nil {
		t.Fatal(err)
	}
	w, err := workflow.New(def)
	if err != nil {
		t.Fatal(err)
	}
	cfg := server.DefaultConfig()
	cfg.Derived = []server.DerivedConfig{
		{Name: "running", Expr: `count(nodes, .state == "running")`, On: "state"},
	}
	programs, err := compileDerived(cfg)
	if err != nil {
		t.Fatal(err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := server.NewRegistry(&server.RegistrySpec{Log: quiet})
	defer reg.Close()
	if err := openWorkflow(reg, "p", w, programs, quiet); err != nil {
		t.Fatal(err)
	}
	want := []api.StreamKey{{Project: "p"}, {Project: "p", Path: "/m"}}
	if diff := cmp.Diff(want, reg.Streams()); diff != "" {
		t.Errorf("streams (-want +got):\n%s", diff)
	}

	key := api.StreamKey{Project: "p"}
	snap, err := reg.Snapshot(key)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := snap.Doc.Root.Get(ir.MustPath("/derived/running")); !ok || n.JSONString() != "0" {
		t.Fatalf("derived value %v", n)
	}

	sink := server.NewChanSink(4)
	if _, err := reg.Subscribe(key, snap.ID, sink); err != nil {
		t.Fatal(err)
	}
	w.SetState("a", workflow.Running)
	var p *api.Patch
	select {
	case p = <-sink.C:
	case <-time.After(5 * time.Second):
		t.Fatal("no patch")
	}
	var ops []string
	for _, op := range p.Ops {
		ops = append(ops, op.String())
	}
	wantOps := []string{`replace /derived/running 1`, `replace /nodes/0/state "running"`}
	if diff := cmp.Diff(wantOps, ops); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
}
