package ir

import (
	"math"
	"strconv"
)

// Equal reports whether a and b are structurally equal.
func Equal(a, b *Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case NullType:
		return true
	case BoolType:
		return a.Bool == b.Bool
	case StringType:
		return a.String == b.String
	case NumberType:
		return equalNumbers(a, b)
	case ArrayType:
		if len(a.Values) != len(b.Values) {
			return false
		}
		for i := range a.Values {
			if !Equal(a.Values[i], b.Values[i]) {
				return false
			}
		}
		return true
	case ObjectType:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i] != b.Fields[i] {
				return false
			}
			if !Equal(a.Values[i], b.Values[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func equalNumbers(a, b *Node) bool {
	if a.Int64 != nil && b.Int64 != nil {
		return *a.Int64 == *b.Int64
	}
	if a.Number == b.Number {
		return true
	}
	fa, okA := numberFloat(a)
	fb, okB := numberFloat(b)
	return okA && okB && fa == fb
}

func numberFloat(n *Node) (float64, bool) {
	switch {
	case n.Int64 != nil:
		return float64(*n.Int64), true
	case n.Float64 != nil:
		return *n.Float64, true
	}
	f, err := strconv.ParseFloat(n.Number, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
