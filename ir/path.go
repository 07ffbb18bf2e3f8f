package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a JSON pointer split into unescaped reference tokens.
// The empty path addresses the root.
type Path []string

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
var pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")

// ParsePath parses a JSON pointer such as "/nodes/0/name".
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	if s[0] != '/' {
		return nil, fmt.Errorf("path %q does not start with /", s)
	}
	parts := strings.Split(s[1:], "/")
	res := make(Path, len(parts))
	for i, p := range parts {
		res[i] = pointerUnescaper.Replace(p)
	}
	return res, nil
}

// MustPath is like ParsePath but panics on error.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(seg))
	}
	return b.String()
}

// Child returns a new path with seg appended. p is never modified.
func (p Path) Child(seg string) Path {
	res := make(Path, len(p)+1)
	copy(res, p)
	res[len(p)] = seg
	return res
}

// Index returns a new path with the array index i appended.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// Prefix returns a new path with q prepended to p.
func (p Path) Prefix(q Path) Path {
	res := make(Path, 0, len(q)+len(p))
	res = append(res, q...)
	return append(res, p...)
}

func (p Path) Depth() int {
	return len(p)
}

func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(d []byte) error {
	q, err := ParsePath(string(d))
	if err != nil {
		return err
	}
	*p = q
	return nil
}
