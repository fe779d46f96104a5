package ir

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
)

// SourceAddr is the memory address of a node within the original
// source buffer (spec §7 "every generic-graph node records the
// memory address in its source buffer"). The compiler's path
// resolver maps this back to (file, line, column) only when an error
// needs to be reported.
type SourceAddr uintptr

// Graph bundles an arena Region with the per-node annotations every
// pass in §4 reads or writes: the node's semantic type, its assigned
// reactivity (nil until the Reactive Analysis pass runs, spec §3.2
// "Optional reactivity pointer"), and its source position.
type Graph struct {
	Region *arena.Region
	Root   arena.Ref

	types  map[arena.Ref]types.Type
	rx     map[arena.Ref]Rx
	source map[arena.Ref]SourceAddr
	Rxt    *RxTable
}

// NewGraph wraps region with fresh annotation tables.
func NewGraph(region *arena.Region, root arena.Ref) *Graph {
	return &Graph{
		Region: region,
		Root:   root,
		types:  make(map[arena.Ref]types.Type),
		rx:     make(map[arena.Ref]Rx),
		source: make(map[arena.Ref]SourceAddr),
		Rxt:    NewRxTable(),
	}
}

func (g *Graph) SetType(ref arena.Ref, t types.Type) { g.types[ref] = t }
func (g *Graph) Type(ref arena.Ref) (types.Type, bool) {
	t, ok := g.types[ref]
	return t, ok
}

func (g *Graph) SetRx(ref arena.Ref, r Rx) { g.rx[ref] = r }
func (g *Graph) Rx(ref arena.Ref) (Rx, bool) {
	r, ok := g.rx[ref]
	return r, ok
}

// DeleteRx forgets any memoized reactivity for ref, forcing the next
// analysis visit to recompute it. Used when a recursive-clock
// placeholder's fixed point requires re-deriving a body's reactivity
// (spec §4.3 "Recursive clocks").
func (g *Graph) DeleteRx(ref arena.Ref) { delete(g.rx, ref) }

func (g *Graph) SetSource(ref arena.Ref, a SourceAddr) { g.source[ref] = a }
func (g *Graph) Source(ref arena.Ref) SourceAddr        { return g.source[ref] }

// Walk performs a bottom-up (post-order) traversal of the DAG rooted
// at root, visiting each distinct Ref exactly once (spec §4.3 "Process
// nodes bottom-up in a post-order traversal with memoization"). visit
// is called after all of a node's operands have been visited.
func (g *Graph) Walk(root arena.Ref, visit func(arena.Ref)) {
	seen := make(map[arena.Ref]bool)
	var rec func(arena.Ref)
	rec = func(ref arena.Ref) {
		if ref == arena.Invalid || seen[ref] {
			return
		}
		seen[ref] = true
		for _, op := range g.Region.Get(ref).Operands() {
			rec(op)
		}
		visit(ref)
	}
	rec(root)
}
