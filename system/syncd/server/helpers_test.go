package server

import (
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/signadot/docsync/ir"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/track"
)

const testWait = 5 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// testModel is a live model holding a flat map of values.
type testModel struct {
	track.Hub

	mu     sync.Mutex
	state  map[string]any
	builds int
	// gate, if set, blocks the next build after it read the state.
	gate chan struct{}
	// fail is the number of upcoming builds that fail.
	fail int
}

func newTestModel(state map[string]any) *testModel {
	return &testModel{state: maps.Clone(state)}
}

func (m *testModel) set(k string, v any, c track.Category) {
	m.mu.Lock()
	m.state[k] = v
	m.mu.Unlock()
	m.Emit(c)
}

func (m *testModel) setQuiet(k string, v any) {
	m.mu.Lock()
	m.state[k] = v
	m.mu.Unlock()
}

func (m *testModel) holdNextBuild() chan struct{} {
	g := make(chan struct{})
	m.mu.Lock()
	m.gate = g
	m.mu.Unlock()
	return g
}

func (m *testModel) failBuilds(n int) {
	m.mu.Lock()
	m.fail = n
	m.mu.Unlock()
}

func (m *testModel) build() (ir.Doc, error) {
	m.mu.Lock()
	if m.fail > 0 {
		m.fail--
		m.mu.Unlock()
		return ir.Doc{}, errors.New("model busy")
	}
	doc := ir.NewDoc("test", ir.MustAny(maps.Clone(m.state)))
	m.builds++
	g := m.gate
	m.gate = nil
	m.mu.Unlock()
	if g != nil {
		<-g
	}
	return doc, nil
}

func (m *testModel) doc() ir.Doc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ir.NewDoc("test", ir.MustAny(maps.Clone(m.state)))
}

func (m *testModel) binding() Binding {
	return Binding{Source: m, Build: m.build}
}

var testKey = api.StreamKey{Project: "wf1"}

func newTestRegistry(t *testing.T, spec *RegistrySpec) *Registry {
	t.Helper()
	if spec == nil {
		spec = &RegistrySpec{}
	}
	if spec.Log == nil {
		spec.Log = quiet
	}
	r := NewRegistry(spec)
	t.Cleanup(r.Close)
	return r
}

func recv(t *testing.T, s *ChanSink) *api.Patch {
	t.Helper()
	select {
	case p := <-s.C:
		return p
	case <-time.After(testWait):
		t.Fatal("timed out waiting for a patch")
		return nil
	}
}

func noPatch(t *testing.T, s *ChanSink, d time.Duration) {
	t.Helper()
	select {
	case p := <-s.C:
		t.Fatalf("unexpected patch %s -> %s %v", p.From, p.To, p.Ops)
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitClosed(t *testing.T, s *ChanSink) error {
	t.Helper()
	select {
	case <-s.Done():
		return s.Err()
	case <-time.After(testWait):
		t.Fatal("timed out waiting for the sink to close")
		return nil
	}
}
