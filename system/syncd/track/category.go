package track

import (
	"fmt"
	"strings"
)

// Category is a set of change categories. A mutation reports the
// categories it affects; consumers watch a mask of categories.
type Category uint32

const (
	// State covers node execution state.
	State Category = 1 << iota
	// Topology covers nodes, ports and connections being added or removed.
	Topology
	// UIInfo covers positions and other presentation-only data.
	UIInfo
	Annotation
	Metadata

	None Category = 0
	All           = State | Topology | UIInfo | Annotation | Metadata
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{State, "state"},
	{Topology, "topology"},
	{UIInfo, "uiinfo"},
	{Annotation, "annotation"},
	{Metadata, "metadata"},
}

// Has reports whether c and mask share a category.
func (c Category) Has(mask Category) bool {
	return c&mask != 0
}

func (c Category) String() string {
	if c == None {
		return "none"
	}
	var parts []string
	for _, cn := range categoryNames {
		if c&cn.c != 0 {
			parts = append(parts, cn.name)
		}
	}
	if rest := c &^ All; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCategory parses a list of category names separated by ',' or '|'.
// "all" names every category.
func ParseCategory(s string) (Category, error) {
	var res Category
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if f == "all" {
			res |= All
			continue
		}
		found := false
		for _, cn := range categoryNames {
			if cn.name == f {
				res |= cn.c
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown change category %q", f)
		}
	}
	return res, nil
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(d []byte) error {
	v, err := ParseCategory(string(d))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
