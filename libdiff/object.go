package libdiff

import (
	"github.com/signadot/docsync/ir"
)

// diffObject merges the sorted field lists of from and to. Fields present in
// both are recursed into, the rest are removed or added.
func (c *collector) diffObject(from, to *ir.Node, fromPath, toPath ir.Path) {
	fi, ti := 0, 0
	for fi < len(from.Fields) || ti < len(to.Fields) {
		switch {
		case ti == len(to.Fields) || (fi < len(from.Fields) && from.Fields[fi] < to.Fields[ti]):
			c.remove(fromPath.Child(from.Fields[fi]))
			fi++
		case fi == len(from.Fields) || to.Fields[ti] < from.Fields[fi]:
			c.add(toPath.Child(to.Fields[ti]), to.Values[ti])
			ti++
		default:
			f := from.Fields[fi]
			c.walk(from.Values[fi], to.Values[ti], fromPath.Child(f), toPath.Child(f))
			fi++
			ti++
		}
	}
}
