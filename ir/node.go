package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
)

// Node is an immutable JSON shaped value.
//
// For objects, Fields and Values are parallel slices with Fields sorted.
// For arrays, Values holds the elements and Fields is nil.
type Node struct {
	Type   Type
	Fields []string
	Values []*Node

	String  string
	Bool    bool
	Number  string
	Float64 *float64
	Int64   *int64
}

func Null() *Node {
	return &Node{Type: NullType}
}

func FromBool(b bool) *Node {
	return &Node{Type: BoolType, Bool: b}
}

func FromString(s string) *Node {
	return &Node{Type: StringType, String: s}
}

func FromInt(i int64) *Node {
	return &Node{Type: NumberType, Int64: &i, Number: strconv.FormatInt(i, 10)}
}

func FromFloat(f float64) *Node {
	return &Node{Type: NumberType, Float64: &f, Number: strconv.FormatFloat(f, 'g', -1, 64)}
}

// FromNumber builds a number node from its textual form, preferring an
// integer view when the text is integral.
func FromNumber(s string) (*Node, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromInt(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return FromFloat(f), nil
}

func FromSlice(vs []*Node) *Node {
	return &Node{Type: ArrayType, Values: slices.Clone(vs)}
}

// FromMap builds an object node. Fields are sorted by key.
func FromMap(m map[string]*Node) *Node {
	res := &Node{
		Type:   ObjectType,
		Fields: make([]string, 0, len(m)),
		Values: make([]*Node, 0, len(m)),
	}
	for k := range m {
		res.Fields = append(res.Fields, k)
	}
	sort.Strings(res.Fields)
	for _, k := range res.Fields {
		res.Values = append(res.Values, m[k])
	}
	return res
}

// FromAny converts a Go value into a Node. Plain JSON values (maps, slices,
// strings, numbers, bools and nil) are converted directly; anything else is
// passed through encoding/json first so struct tags are honored.
func FromAny(v any) (*Node, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case *Node:
		return x, nil
	case bool:
		return FromBool(x), nil
	case string:
		return FromString(x), nil
	case int:
		return FromInt(int64(x)), nil
	case int32:
		return FromInt(int64(x)), nil
	case int64:
		return FromInt(x), nil
	case uint32:
		return FromInt(int64(x)), nil
	case float64:
		return FromFloat(x), nil
	case json.Number:
		return FromNumber(string(x))
	case []any:
		vs := make([]*Node, len(x))
		for i := range x {
			n, err := FromAny(x[i])
			if err != nil {
				return nil, err
			}
			vs[i] = n
		}
		return &Node{Type: ArrayType, Values: vs}, nil
	case []*Node:
		return FromSlice(x), nil
	case map[string]any:
		m := make(map[string]*Node, len(x))
		for k, xv := range x {
			n, err := FromAny(xv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = n
		}
		return FromMap(m), nil
	case map[string]*Node:
		return FromMap(x), nil
	}
	d, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	res := &Node{}
	if err := res.UnmarshalJSON(d); err != nil {
		return nil, err
	}
	return res, nil
}

// MustAny is like FromAny but panics on error.
func MustAny(v any) *Node {
	n, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return n
}

// ToAny converts the node back to plain Go values: map[string]any, []any,
// string, bool, int64, float64 or nil.
func (y *Node) ToAny() any {
	if y == nil {
		return nil
	}
	switch y.Type {
	case ObjectType:
		m := make(map[string]any, len(y.Fields))
		for i, f := range y.Fields {
			m[f] = y.Values[i].ToAny()
		}
		return m
	case ArrayType:
		vs := make([]any, len(y.Values))
		for i, v := range y.Values {
			vs[i] = v.ToAny()
		}
		return vs
	case StringType:
		return y.String
	case BoolType:
		return y.Bool
	case NumberType:
		if y.Int64 != nil {
			return *y.Int64
		}
		if y.Float64 != nil {
			return *y.Float64
		}
		return json.Number(y.Number)
	default:
		return nil
	}
}

// Field returns the value of the object field f.
func (y *Node) Field(f string) (*Node, bool) {
	if y == nil || y.Type != ObjectType {
		return nil, false
	}
	i, ok := slices.BinarySearch(y.Fields, f)
	if !ok {
		return nil, false
	}
	return y.Values[i], true
}

// Get returns the node at path p relative to y.
func (y *Node) Get(p Path) (*Node, bool) {
	x := y
	for _, seg := range p {
		switch x.Type {
		case ObjectType:
			v, ok := x.Field(seg)
			if !ok {
				return nil, false
			}
			x = v
		case ArrayType:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(x.Values) {
				return nil, false
			}
			x = x.Values[i]
		default:
			return nil, false
		}
	}
	return x, true
}

// Size returns the number of nodes in the tree rooted at y.
func (y *Node) Size() int {
	if y == nil {
		return 0
	}
	n := 1
	for _, v := range y.Values {
		n += v.Size()
	}
	return n
}
