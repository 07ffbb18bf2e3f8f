package libdiff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/ir"

	jsonpatch "github.com/evanphx/json-patch"
)

// rootField wraps documents before handing them to json-patch, so that
// operations on the root itself ("" paths) become ordinary field edits.
const rootField = "r"

var rootPath = ir.Path{rootField}

type wireOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Apply applies ops to doc in order and returns the resulting tree. doc is
// not modified.
func Apply(doc *ir.Node, ops []Op) (*ir.Node, error) {
	if len(ops) == 0 {
		return doc, nil
	}
	if doc == nil {
		doc = ir.Null()
	}
	patchData, err := encodeOps(ops)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(patchData)
	if err != nil {
		return nil, fmt.Errorf("could not decode patch: %w", err)
	}
	docData, err := ir.FromMap(map[string]*ir.Node{rootField: doc}).MarshalJSON()
	if err != nil {
		return nil, err
	}
	if debug.Patch() {
		debug.Logf("apply %s to %s\n", patchData, docData)
	}
	resData, err := patch.Apply(docData)
	if err != nil {
		return nil, fmt.Errorf("could not apply patch: %w", err)
	}
	res, err := ir.ParseJSON(resData)
	if err != nil {
		return nil, err
	}
	root, ok := res.Field(rootField)
	if !ok {
		return nil, fmt.Errorf("patch removed the document root")
	}
	return root, nil
}

func encodeOps(ops []Op) ([]byte, error) {
	wire := make([]wireOp, len(ops))
	for i := range ops {
		op := &ops[i]
		if err := op.validate(); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		w := &wire[i]
		w.Op = string(op.Kind)
		w.Path = op.Path.Prefix(rootPath).String()
		if op.From != nil {
			w.Op = "move"
			w.From = op.From.Prefix(rootPath).String()
			continue
		}
		if op.Value != nil {
			d, err := op.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			w.Value = d
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
