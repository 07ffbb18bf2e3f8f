package libdiff

import (
	"encoding/json"
	"fmt"

	"github.com/signadot/docsync/ir"
)

type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
)

// Op is a single edit. Value is nil for removals. From is only set on
// move-like replacements, in which case Value is nil and the value found at
// From is moved to Path.
type Op struct {
	Kind  OpKind   `json:"op"`
	Path  ir.Path  `json:"path"`
	From  ir.Path  `json:"from,omitempty"`
	Value *ir.Node `json:"value,omitempty"`
}

func (op Op) String() string {
	switch {
	case op.From != nil:
		return fmt.Sprintf("%s %s <- %s", op.Kind, op.Path, op.From)
	case op.Value != nil:
		return fmt.Sprintf("%s %s %s", op.Kind, op.Path, op.Value.JSONString())
	default:
		return fmt.Sprintf("%s %s", op.Kind, op.Path)
	}
}

func (op *Op) validate() error {
	switch op.Kind {
	case OpAdd:
		if op.Value == nil {
			return fmt.Errorf("add at %s without value", op.Path)
		}
	case OpRemove:
	case OpReplace:
		if op.Value == nil && op.From == nil {
			return fmt.Errorf("replace at %s without value or from", op.Path)
		}
	default:
		return fmt.Errorf("unknown op %q", op.Kind)
	}
	return nil
}

// UnmarshalJSON keeps a JSON null value as a null node rather than an absent
// value, so that adding or replacing with null survives the wire.
func (op *Op) UnmarshalJSON(d []byte) error {
	var w struct {
		Op    OpKind          `json:"op"`
		Path  ir.Path         `json:"path"`
		From  ir.Path         `json:"from"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(d, &w); err != nil {
		return err
	}
	*op = Op{Kind: w.Op, Path: w.Path, From: w.From}
	if op.Path == nil {
		op.Path = ir.Path{}
	}
	if w.Value != nil {
		v, err := ir.ParseJSON(w.Value)
		if err != nil {
			return fmt.Errorf("op value at %s: %w", op.Path, err)
		}
		op.Value = v
	}
	return op.validate()
}
