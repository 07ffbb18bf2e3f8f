package workflow

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/signadot/docsync/system/syncd/track"
)

var (
	ErrNoNode       = errors.New("no such node")
	ErrNoAnnotation = errors.New("no such annotation")
	ErrDuplicate    = errors.New("duplicate id")
)

// Workflow is a live workflow model.
type Workflow struct {
	track.Hub

	mu          sync.RWMutex
	name        string
	dirty       bool
	nodes       map[string]*Node
	subs        map[string]*Workflow
	conns       map[Connection]struct{}
	annotations map[string]*Annotation
}

// New builds a workflow from a definition, checking that ids are unique
// and that connections join existing ports.
func New(def *Definition) (*Workflow, error) {
	w := &Workflow{
		name:        def.Name,
		nodes:       map[string]*Node{},
		subs:        map[string]*Workflow{},
		conns:       map[Connection]struct{}{},
		annotations: map[string]*Annotation{},
	}
	for i := range def.Nodes {
		if err := w.addNode(&def.Nodes[i]); err != nil {
			return nil, err
		}
	}
	for _, c := range def.Connections {
		if err := w.connect(c); err != nil {
			return nil, err
		}
	}
	for i := range def.Annotations {
		a := def.Annotations[i]
		if _, dup := w.annotations[a.ID]; dup {
			return nil, fmt.Errorf("annotation %s: %w", a.ID, ErrDuplicate)
		}
		w.annotations[a.ID] = &a
	}
	return w, nil
}

func (w *Workflow) addNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	if _, dup := w.nodes[n.ID]; dup {
		return fmt.Errorf("node %s: %w", n.ID, ErrDuplicate)
	}
	c := *n
	if c.State == "" {
		c.State = Idle
	}
	if _, err := ParseState(string(c.State)); err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}
	c.Inputs = slices.Clone(n.Inputs)
	c.Outputs = slices.Clone(n.Outputs)
	if n.Workflow != nil {
		sub, err := New(n.Workflow)
		if err != nil {
			return fmt.Errorf("metanode %s: %w", n.ID, err)
		}
		if sub.name == "" {
			sub.name = cmp.Or(n.Name, n.ID)
		}
		w.subs[n.ID] = sub
		c.Workflow = nil
	}
	w.nodes[n.ID] = &c
	return nil
}

func (w *Workflow) connect(c Connection) error {
	src, ok := w.nodes[c.Source]
	if !ok {
		return fmt.Errorf("connection %s: source %w", c, ErrNoNode)
	}
	dst, ok := w.nodes[c.Dest]
	if !ok {
		return fmt.Errorf("connection %s: dest %w", c, ErrNoNode)
	}
	if !hasPort(src.Outputs, c.SourcePort) {
		return fmt.Errorf("connection %s: %s has no output %q", c, c.Source, c.SourcePort)
	}
	if !hasPort(dst.Inputs, c.DestPort) {
		return fmt.Errorf("connection %s: %s has no input %q", c, c.Dest, c.DestPort)
	}
	w.conns[c] = struct{}{}
	return nil
}

func (w *Workflow) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Dirty reports whether the workflow was edited since it was loaded or
// last marked saved.
func (w *Workflow) Dirty() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dirty
}

// Node returns a copy of the node with the given id.
func (w *Workflow) Node(id string) (Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// NodeIDs returns the node ids in order.
func (w *Workflow) NodeIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.nodes))
}

// Sub returns the nested workflow of a metanode.
func (w *Workflow) Sub(id string) (*Workflow, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.subs[id]
	return s, ok
}

// Walk calls fn with w and every nested workflow, parents first. The path
// of w is empty; nested workflows have the path of metanode ids leading to
// them, such as "/clean/dedup".
func (w *Workflow) Walk(fn func(path string, w *Workflow) error) error {
	return w.walk("", fn)
}

func (w *Workflow) walk(path string, fn func(string, *Workflow) error) error {
	if err := fn(path, w); err != nil {
		return err
	}
	w.mu.RLock()
	ids := slices.Sorted(maps.Keys(w.subs))
	subs := make([]*Workflow, len(ids))
	for i, id := range ids {
		subs[i] = w.subs[id]
	}
	w.mu.RUnlock()
	for i, sub := range subs {
		if err := sub.walk(path+"/"+ids[i], fn); err != nil {
			return err
		}
	}
	return nil
}

// edit runs fn under the write lock and emits the categories it returns.
// A successful edit other than an execution state change marks the
// workflow dirty.
func (w *Workflow) edit(fn func() (track.Category, error)) error {
	w.mu.Lock()
	c, err := fn()
	if err == nil && c&^track.State != 0 && !w.dirty {
		w.dirty = true
		c |= track.Metadata
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.Emit(c)
	return nil
}

func (w *Workflow) node(id string) (*Node, error) {
	n, ok := w.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNoNode)
	}
	return n, nil
}

func (w *Workflow) SetState(id string, s State) error {
	return w.edit(func() (track.Category, error) {
		n, err := w.node(id)
		if err != nil {
			return track.None, err
		}
		if n.State == s {
			return track.None, nil
		}
		n.State = s
		return track.State, nil
	})
}

// Advance moves a node to its next execution state and returns it.
func (w *Workflow) Advance(id string) (State, error) {
	var res State
	err := w.edit(func() (track.Category, error) {
		n, err := w.node(id)
		if err != nil {
			return track.None, err
		}
		n.State = n.State.Next()
		res = n.State
		return track.State, nil
	})
	return res, err
}

// Reset puts every node back to Idle.
func (w *Workflow) Reset() {
	w.edit(func() (track.Category, error) {
		c := track.None
		for _, n := range w.nodes {
			if n.State != Idle {
				n.State = Idle
				c = track.State
			}
		}
		return c, nil
	})
}

func (w *Workflow) Move(id string, p Position) error {
	return w.edit(func() (track.Category, error) {
		n, err := w.node(id)
		if err != nil {
			return track.None, err
		}
		if n.Position == p {
			return track.None, nil
		}
		n.Position = p
		return track.UIInfo, nil
	})
}

func (w *Workflow) RenameNode(id, name string) error {
	return w.edit(func() (track.Category, error) {
		n, err := w.node(id)
		if err != nil {
			return track.None, err
		}
		if n.Name == name {
			return track.None, nil
		}
		n.Name = name
		return track.UIInfo, nil
	})
}

// AddNode adds a node, and its nested workflow if it is a metanode.
func (w *Workflow) AddNode(n Node) error {
	return w.edit(func() (track.Category, error) {
		if err := w.addNode(&n); err != nil {
			return track.None, err
		}
		return track.Topology, nil
	})
}

// RemoveNode removes a node with its connections. For a metanode the
// nested workflow is returned so that its owner can release it.
func (w *Workflow) RemoveNode(id string) (*Workflow, error) {
	var sub *Workflow
	err := w.edit(func() (track.Category, error) {
		if _, err := w.node(id); err != nil {
			return track.None, err
		}
		delete(w.nodes, id)
		sub = w.subs[id]
		delete(w.subs, id)
		for c := range w.conns {
			if c.Source == id || c.Dest == id {
				delete(w.conns, c)
			}
		}
		return track.Topology, nil
	})
	return sub, err
}

func (w *Workflow) Connect(c Connection) error {
	return w.edit(func() (track.Category, error) {
		if _, ok := w.conns[c]; ok {
			return track.None, nil
		}
		if err := w.connect(c); err != nil {
			return track.None, err
		}
		return track.Topology, nil
	})
}

func (w *Workflow) Disconnect(c Connection) error {
	return w.edit(func() (track.Category, error) {
		if _, ok := w.conns[c]; !ok {
			return track.None, fmt.Errorf("no connection %s", c)
		}
		delete(w.conns, c)
		return track.Topology, nil
	})
}

// Annotate adds or updates an annotation.
func (w *Workflow) Annotate(a Annotation) error {
	return w.edit(func() (track.Category, error) {
		if a.ID == "" {
			return track.None, fmt.Errorf("annotation without id")
		}
		if cur, ok := w.annotations[a.ID]; ok && *cur == a {
			return track.None, nil
		}
		w.annotations[a.ID] = &a
		return track.Annotation, nil
	})
}

func (w *Workflow) RemoveAnnotation(id string) error {
	return w.edit(func() (track.Category, error) {
		if _, ok := w.annotations[id]; !ok {
			return track.None, fmt.Errorf("annotation %s: %w", id, ErrNoAnnotation)
		}
		delete(w.annotations, id)
		return track.Annotation, nil
	})
}

func (w *Workflow) SetName(name string) error {
	return w.edit(func() (track.Category, error) {
		if w.name == name {
			return track.None, nil
		}
		w.name = name
		return track.Metadata, nil
	})
}

// MarkSaved clears the dirty flag.
func (w *Workflow) MarkSaved() {
	w.mu.Lock()
	changed := w.dirty
	w.dirty = false
	w.mu.Unlock()
	if changed {
		w.Emit(track.Metadata)
	}
}

// Definition returns the serialized form of w, nested workflows included.
func (w *Workflow) Definition() *Definition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	def := &Definition{Name: w.name}
	for _, id := range slices.Sorted(maps.Keys(w.nodes)) {
		n := *w.nodes[id]
		if sub, ok := w.subs[id]; ok {
			n.Workflow = sub.Definition()
		}
		def.Nodes = append(def.Nodes, n)
	}
	def.Connections = w.connections()
	for _, id := range slices.Sorted(maps.Keys(w.annotations)) {
		def.Annotations = append(def.Annotations, *w.annotations[id])
	}
	return def
}

func (w *Workflow) connections() []Connection {
	res := slices.Collect(maps.Keys(w.conns))
	slices.SortFunc(res, Connection.compare)
	return res
}
