package libdiff

import (
	"slices"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/ir"
)

// DefaultKeys are the object fields used to identify array elements.
var DefaultKeys = []string{"id"}

type config struct {
	keys []string
}

type Option func(*config)

// WithKeys sets the object fields whose scalar values identify array
// elements. Elements with different identities are never diffed against
// each other; they are removed and added instead.
func WithKeys(keys ...string) Option {
	return func(c *config) { c.keys = keys }
}

// Diff returns the ordered edit script transforming from into to. The
// result is empty if and only if the trees are structurally equal.
func Diff(from, to *ir.Node, opts ...Option) []Op {
	cfg := &config{keys: DefaultKeys}
	for _, o := range opts {
		o(cfg)
	}
	c := &collector{cfg: cfg}
	c.walk(from, to, ir.Path{}, ir.Path{})
	ops := c.ops()
	if debug.Diff() {
		debug.Logf("diff gave %d ops\n", len(ops))
		for i := range ops {
			debug.Logf("  %s\n", ops[i].String())
		}
	}
	return ops
}

type collector struct {
	cfg      *config
	replaces []Op
	removes  []Op
	adds     []Op
}

// walk compares from and to in lock step. fromPath addresses from in the
// source tree and toPath addresses to in the target tree; they differ once
// array elements are inserted or removed before them.
func (c *collector) walk(from, to *ir.Node, fromPath, toPath ir.Path) {
	if from.Type != to.Type {
		c.replace(fromPath, to)
		return
	}
	switch from.Type {
	case ir.ObjectType:
		c.diffObject(from, to, fromPath, toPath)
	case ir.ArrayType:
		c.diffArrayByIndex(from, to, fromPath, toPath)
	default:
		if !ir.Equal(from, to) {
			c.replace(fromPath, to)
		}
	}
}

func (c *collector) replace(p ir.Path, v *ir.Node) {
	c.replaces = append(c.replaces, Op{Kind: OpReplace, Path: p, Value: v})
}

func (c *collector) remove(p ir.Path) {
	c.removes = append(c.removes, Op{Kind: OpRemove, Path: p})
}

func (c *collector) add(p ir.Path, v *ir.Node) {
	c.adds = append(c.adds, Op{Kind: OpAdd, Path: p, Value: v})
}

// ops orders the collected edits: replacements in document order, then
// removals deepest first, then additions shallowest first.
//
// Removals are collected in document order, so within one array they
// appear by increasing index. Reversing before the stable sort makes
// sibling removals run from the highest index down and keeps the
// remaining indexes valid.
func (c *collector) ops() []Op {
	res := make([]Op, 0, len(c.replaces)+len(c.removes)+len(c.adds))
	res = append(res, c.replaces...)

	removes := slices.Clone(c.removes)
	slices.Reverse(removes)
	slices.SortStableFunc(removes, func(a, b Op) int {
		return b.Path.Depth() - a.Path.Depth()
	})
	res = append(res, removes...)

	adds := slices.Clone(c.adds)
	slices.SortStableFunc(adds, func(a, b Op) int {
		return a.Path.Depth() - b.Path.Depth()
	})
	return append(res, adds...)
}
