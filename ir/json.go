package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func (y *Node) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := y.writeJSON(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (y *Node) writeJSON(buf *bytes.Buffer) error {
	if y == nil {
		buf.WriteString("null")
		return nil
	}
	switch y.Type {
	case NullType:
		buf.WriteString("null")
	case BoolType:
		if y.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case NumberType:
		buf.WriteString(y.Number)
	case StringType:
		d, err := json.Marshal(y.String)
		if err != nil {
			return err
		}
		buf.Write(d)
	case ArrayType:
		buf.WriteByte('[')
		for i, v := range y.Values {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := v.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case ObjectType:
		buf.WriteByte('{')
		for i, f := range y.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			d, err := json.Marshal(f)
			if err != nil {
				return err
			}
			buf.Write(d)
			buf.WriteByte(':')
			if err := y.Values[i].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %s as json", y.Type)
	}
	return nil
}

func (y *Node) UnmarshalJSON(d []byte) error {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	n, err := FromAny(v)
	if err != nil {
		return err
	}
	*y = *n
	return nil
}

// ParseJSON decodes a JSON document into a Node.
func ParseJSON(d []byte) (*Node, error) {
	res := &Node{}
	if err := res.UnmarshalJSON(d); err != nil {
		return nil, err
	}
	return res, nil
}

// MustJSON is like ParseJSON but panics on error. It is meant for tests and
// literals.
func MustJSON(s string) *Node {
	n, err := ParseJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return n
}

// JSONString returns the compact JSON form of y.
func (y *Node) JSONString() string {
	d, err := y.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(d)
}
