package libdiff

import (
	"strconv"
	"strings"

	"github.com/signadot/docsync/ir"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// we map each element to a summary rune and diff the rune sequences:
//
//  1. scalars are summarized by type and value
//  2. objects carrying an identity key are summarized by that key, other
//     containers by their type only
//  3. equal runs are recursed into pairwise
//  4. a deletion run immediately followed by an insertion run is paired up
//     element by element and recursed into, which yields replacements
//     rather than a remove/add pair for values changed in place
//  5. the remaining deletions and insertions become removals and additions
func (c *collector) diffArrayByIndex(from, to *ir.Node, fromPath, toPath ir.Path) {
	m := map[string]rune{}
	fromRunes := c.mapValues(m, from)
	toRunes := c.mapValues(m, to)
	diffCfg := diffpatch.New()
	diffs := diffCfg.DiffMainRunes(fromRunes, toRunes, false)

	fi, ti := 0, 0
	for i := 0; i < len(diffs); i++ {
		diff := &diffs[i]
		n := len([]rune(diff.Text))
		switch diff.Type {
		case diffpatch.DiffEqual:
			for range n {
				c.walk(from.Values[fi], to.Values[ti], fromPath.Index(fi), toPath.Index(ti))
				fi++
				ti++
			}
		case diffpatch.DiffDelete:
			nIns := 0
			if i+1 < len(diffs) && diffs[i+1].Type == diffpatch.DiffInsert {
				nIns = len([]rune(diffs[i+1].Text))
				i++
			}
			paired := min(n, nIns)
			for range paired {
				c.pair(from.Values[fi], to.Values[ti], fromPath.Index(fi), toPath.Index(ti))
				fi++
				ti++
			}
			for range n - paired {
				c.remove(fromPath.Index(fi))
				fi++
			}
			for range nIns - paired {
				c.add(toPath.Index(ti), to.Values[ti])
				ti++
			}
		case diffpatch.DiffInsert:
			for range n {
				c.add(toPath.Index(ti), to.Values[ti])
				ti++
			}
		}
	}
}

// pair diffs two elements occupying the same slot. Elements with distinct
// identities are replaced wholesale.
func (c *collector) pair(from, to *ir.Node, fromPath, toPath ir.Path) {
	fk, fok := c.identity(from)
	tk, tok := c.identity(to)
	if fok && tok && fk != tk {
		c.replace(fromPath, to)
		return
	}
	c.walk(from, to, fromPath, toPath)
}

func (c *collector) mapValues(m map[string]rune, node *ir.Node) []rune {
	rs := make([]rune, len(node.Values))
	for i, v := range node.Values {
		sum := c.summaryStr(v)
		r, ok := m[sum]
		if !ok {
			// skip the surrogate range, go-diff works on valid runes
			r = rune(len(m))
			if r >= 0xD800 {
				r += 0x800
			}
			m[sum] = r
		}
		rs[i] = r
	}
	return rs
}

func (c *collector) identity(node *ir.Node) (string, bool) {
	if node.Type != ir.ObjectType {
		return "", false
	}
	for _, k := range c.cfg.keys {
		v, ok := node.Field(k)
		if !ok || !v.Type.IsLeaf() {
			continue
		}
		return k + "=" + scalarStr(v), true
	}
	return "", false
}

func (c *collector) summaryStr(node *ir.Node) string {
	switch node.Type {
	case ir.ObjectType:
		if id, ok := c.identity(node); ok {
			return node.Type.String() + "#" + id
		}
		return node.Type.String()
	case ir.ArrayType:
		return node.Type.String()
	default:
		return node.Type.String() + "-" + scalarStr(node)
	}
}

func scalarStr(node *ir.Node) string {
	switch node.Type {
	case ir.BoolType:
		return strconv.FormatBool(node.Bool)
	case ir.StringType:
		return strings.ReplaceAll(node.String, "\n", `\n`)
	case ir.NumberType:
		if node.Int64 != nil {
			return "i-" + strconv.FormatInt(*node.Int64, 10)
		}
		if node.Float64 != nil {
			return "f-" + strconv.FormatFloat(*node.Float64, 'f', -1, 64)
		}
		return node.Number
	default:
		return ""
	}
}
