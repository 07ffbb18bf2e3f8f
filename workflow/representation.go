package workflow

import (
	"maps"
	"slices"

	"github.com/signadot/docsync/ir"
)

// TypeID identifies workflow representations.
const TypeID = "workflow"

type nodeView struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	State    State    `json:"state"`
	Position Position `json:"position"`
	Inputs   []Port   `json:"inputs"`
	Outputs  []Port   `json:"outputs"`
	Metanode bool     `json:"metanode"`
}

type view struct {
	Name        string         `json:"name"`
	Dirty       bool           `json:"dirty"`
	Nodes       []nodeView     `json:"nodes"`
	Connections []Connection   `json:"connections"`
	Annotations []Annotation   `json:"annotations"`
	Derived     map[string]any `json:"derived,omitempty"`
}

// Representation builds the current representation of w. Nodes and
// annotations are ordered by id and connections by their endpoints, so
// equal workflows have equal representations.
func (w *Workflow) Representation() (ir.Doc, error) {
	return w.RepresentationWith(nil)
}

// RepresentationWith is like Representation with derived values added
// under /derived.
func (w *Workflow) RepresentationWith(derived map[string]any) (ir.Doc, error) {
	v := w.view()
	v.Derived = derived
	root, err := ir.FromAny(v)
	if err != nil {
		return ir.Doc{}, err
	}
	return ir.NewDoc(TypeID, root), nil
}

func (w *Workflow) view() *view {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v := &view{
		Name:        w.name,
		Dirty:       w.dirty,
		Nodes:       []nodeView{},
		Connections: w.connections(),
		Annotations: []Annotation{},
	}
	for _, id := range slices.Sorted(maps.Keys(w.nodes)) {
		n := w.nodes[id]
		_, meta := w.subs[id]
		v.Nodes = append(v.Nodes, nodeView{
			ID:       n.ID,
			Kind:     n.Kind,
			Name:     n.Name,
			State:    n.State,
			Position: n.Position,
			Inputs:   nonNil(n.Inputs),
			Outputs:  nonNil(n.Outputs),
			Metanode: meta,
		})
	}
	if v.Connections == nil {
		v.Connections = []Connection{}
	}
	for _, id := range slices.Sorted(maps.Keys(w.annotations)) {
		v.Annotations = append(v.Annotations, *w.annotations[id])
	}
	return v
}

func nonNil(ps []Port) []Port {
	if ps == nil {
		return []Port{}
	}
	return slices.Clone(ps)
}

// Env returns the environment derived value expressions are evaluated
// against:
//
//	name         string
//	dirty        bool
//	nodes        list of {id, kind, name, state, metanode, inputs, outputs}
//	connections  list of {source, sourcePort, dest, destPort}
//	annotations  list of {id, text}
func (w *Workflow) Env() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	nodes := make([]any, 0, len(w.nodes))
	for _, id := range slices.Sorted(maps.Keys(w.nodes)) {
		n := w.nodes[id]
		_, meta := w.subs[id]
		nodes = append(nodes, map[string]any{
			"id":       n.ID,
			"kind":     n.Kind,
			"name":     n.Name,
			"state":    string(n.State),
			"metanode": meta,
			"inputs":   len(n.Inputs),
			"outputs":  len(n.Outputs),
		})
	}
	conns := []any{}
	for _, c := range w.connections() {
		conns = append(conns, map[string]any{
			"source":     c.Source,
			"sourcePort": c.SourcePort,
			"dest":       c.Dest,
			"destPort":   c.DestPort,
		})
	}
	anns := []any{}
	for _, id := range slices.Sorted(maps.Keys(w.annotations)) {
		a := w.annotations[id]
		anns = append(anns, map[string]any{"id": a.ID, "text": a.Text})
	}
	return map[string]any{
		"name":        w.name,
		"dirty":       w.dirty,
		"nodes":       nodes,
		"connections": conns,
		"annotations": anns,
	}
}
