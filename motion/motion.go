// Package motion implements the Code Motion pass (spec §4.4): given a
// function's body, identify expressions that are equivalent up to a
// bounded tracking distance from the graph's leaves, count their
// occurrences across call sites, and hoist the frequently used ones
// into a named shared value represented as a synthetic global
// variable indexed by the expression's own structural hash.
//
// Grounded on plan/pir/dedup.go's mergereplacements pass and
// uniqrepl.go (common subexpression / common sub-trace elimination at
// the relational-plan level, repurposed here to the value-DAG level).
package motion

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
	"golang.org/x/exp/slices"
)

// MaxTrackDistance bounds how far an EquivalentExpression is tracked
// from the function's Argument leaf (spec §4.4 "Tracking ceases once
// distance_from_leaf exceeds MAX_TRACK_DISTANCE (8)").
const MaxTrackDistance = 8

// equivalence is spec §4.4's EquivalentExpression: either "nothing" (a
// nil inlined field) or a tracked node at a known distance from a
// leaf.
type equivalence struct {
	inlined  arena.Ref
	distance int
	known    bool
}

func nothing() equivalence { return equivalence{} }

func tracked(ref arena.Ref, dist int) equivalence {
	if dist > MaxTrackDistance {
		return nothing()
	}
	return equivalence{inlined: ref, distance: dist, known: true}
}

// occurrence records one use site of an equivalence class: its
// unique path (the chain of enclosing function-call nodes from the
// outermost analysis down to this site, spec §4.4 "Analysis") and the
// node Ref at that site.
type occurrence struct {
	path []arena.Ref
	node arena.Ref
}

// class is one equivalence class: every occurrence of a structurally
// equivalent, non-trivial expression.
type class struct {
	occurrences []occurrence
}

// localOccurrences returns the occurrences in this class whose path
// has at most one element, i.e. those that do not cross a
// function-call boundary (spec §4.4 "Rewrite: For each equivalence
// class with one or more local occurrences (path.length = 1)").
func (c *class) localOccurrences() []occurrence {
	var out []occurrence
	for _, o := range c.occurrences {
		if len(o.path) <= 1 {
			out = append(out, o)
		}
	}
	return out
}

// Analyzer runs Code Motion over one function body.
type Analyzer struct {
	arena *arena.Arena
	// classes is keyed by the structural hash of the expression within
	// its owning Region; expressions whose hashes collide share one
	// class.
	classes map[uint64]*class
}

// NewAnalyzer returns an empty Analyzer. a is stored, but no method in
// this package reads it; Run passes nil.
func NewAnalyzer(a *arena.Arena) *Analyzer {
	return &Analyzer{arena: a, classes: make(map[uint64]*class)}
}

// Analyze walks body bottom-up, recording an occurrence for every
// non-trivial node whose operand equivalences all terminate (spec
// §4.4 "Analysis"). path is the chain of enclosing FunctionCall nodes
// for this invocation (empty at the outermost call); argEq is the
// equivalence bound to this body's own Argument leaf -- tracked(0) at
// the outermost call, or the caller's argument equivalence when
// descending into a callee (spec §4.4 "recursively descending into
// called functions with the caller's argument equivalence bound to
// the callee's Argument node").
func (a *Analyzer) Analyze(g *ir.Graph, body arena.Ref, path []arena.Ref, argEq equivalence) equivalence {
	eq := make(map[arena.Ref]equivalence)
	var result equivalence
	g.Walk(body, func(ref arena.Ref) {
		result = a.equivalenceOf(g, ref, eq, path, argEq)
		eq[ref] = result
	})
	return result
}

func (a *Analyzer) equivalenceOf(g *ir.Graph, ref arena.Ref, eq map[arena.Ref]equivalence, path []arena.Ref, argEq equivalence) equivalence {
	r := g.Region
	var result equivalence
	switch ir.KindOf(r, ref) {
	case ir.KArgument:
		result = argEq

	case ir.KPair:
		x, y := ir.PairOperands(r, ref)
		ex, ey := eq[x], eq[y]
		if ex.known && ey.known {
			result = tracked(ref, maxOf(ex.distance, ey.distance)+1)
		}

	case ir.KFirst:
		p := ir.FirstOperand(r, ref)
		if ep := eq[p]; ep.known {
			result = tracked(ref, ep.distance+1)
		}

	case ir.KRest:
		p := ir.RestOperand(r, ref)
		if ep := eq[p]; ep.known {
			result = tracked(ref, ep.distance+1)
		}

	case ir.KFunctionCall:
		_, fbody, arg := ir.FunctionCallOperands(r, ref)
		if earg := eq[arg]; earg.known {
			innerPath := append(append([]arena.Ref{}, path...), ref)
			ebody := a.Analyze(g, fbody, innerPath, earg)
			if ebody.known {
				result = tracked(ref, ebody.distance+1)
			}
		}

	default:
		// every other kind aborts tracking (result stays "nothing"),
		// matching spec §4.4's implicit default for operators not
		// named in the propagation rules.
	}

	if ir.NonTrivial(r, ref) && !result.known {
		a.record(g, ref, path)
	}
	return result
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// record adds an occurrence of ref (keyed by its structural hash) to
// its equivalence class.
func (a *Analyzer) record(g *ir.Graph, ref arena.Ref, path []arena.Ref) {
	h := g.Region.Hash(ref)
	c, ok := a.classes[h]
	if !ok {
		c = &class{}
		a.classes[h] = c
	}
	c.occurrences = append(c.occurrences, occurrence{path: append([]arena.Ref{}, path...), node: ref})
}

// Substitution is a single rewrite: at Node, replace the expression
// with a read of the synthetic global named UID, whose SetGlobal
// writer Materialize builds from Expr.
type Substitution struct {
	UID  string
	Node arena.Ref
	Expr arena.Ref
}

// Rewrite computes the set of substitutions for equivalence classes
// that have at least two local occurrences. Classes with a single
// local occurrence are skipped (hoisting a value used once
// saves nothing); this mirrors the teacher's occurrence-count
// threshold in plan/pir/dedup.go.
//
// a.classes is a map keyed by structural hash, so its iteration order
// is randomized by the Go runtime; hashes are sorted first so that
// two Rewrite calls over the same body always emit substitutions (and
// therefore synthetic global UIDs) in the same order, matching the
// teacher's own habit of sorting a map's keys before emitting from it
// (plan/pir/dedup.go's own replacement list is built off an ordered
// slice, not a raw map walk).
func (a *Analyzer) Rewrite(g *ir.Graph) []Substitution {
	hashes := make([]uint64, 0, len(a.classes))
	for hash := range a.classes {
		hashes = append(hashes, hash)
	}
	slices.Sort(hashes)

	var subs []Substitution
	for _, hash := range hashes {
		c := a.classes[hash]
		local := c.localOccurrences()
		if len(local) < 2 {
			continue
		}
		uid := fmt.Sprintf("$cse.%x", hash)
		for _, occ := range local {
			subs = append(subs, Substitution{UID: uid, Node: occ.node, Expr: occ.node})
		}
	}
	return subs
}

// Materialize rewrites body: each substitution point becomes a
// GetGlobalVariable(uid, type, key=Nil) read, and one
// SetGlobalVariable writer per uid is threaded ahead of the rewritten
// body. Only local classes (path length <= 1) reach it, since Rewrite
// drops the others; crossing-boundary classes are not substituted.
//
// Every local occurrence shares the same top-level function body, so
// the writers are threaded in at body's own root.
func Materialize(g *ir.Graph, body arena.Ref, subs []Substitution) (arena.Ref, error) {
	if len(subs) == 0 {
		return body, nil
	}
	r := g.Region
	replacements := make(map[arena.Ref]arena.Ref, len(subs))
	writers := make(map[string]arena.Ref)
	for _, s := range subs {
		t, ok := g.Type(s.Node)
		if !ok {
			t = types.Nil
		}
		replacements[s.Node] = ir.NewGetGlobal(r, s.UID, t)
		if _, ok := writers[s.UID]; !ok {
			writers[s.UID] = ir.NewSetGlobal(r, s.UID, s.Expr)
		}
	}
	newBody := rewriteWithReplacements(g, body, replacements)
	// thread every writer ahead of the (rewritten) body using Pair+Rest
	// so that each SetGlobalVariable is evaluated once before any
	// reader observes its slot (spec §4.4 "the side-effect pass later
	// lowers these synthetic globals to heap slots... or to stack
	// slots otherwise" -- ordering here only needs to guarantee the
	// writer precedes readers structurally; the Side-Effect Compiler's
	// data-hazard pass, spec §4.6.5, is the actual enforcement point).
	for _, w := range writers {
		newBody = ir.NewRest(r, ir.NewPair(r, w, newBody))
	}
	return newBody, nil
}

// Run is the package's single entry point: fold constant subgraphs,
// analyze the body for hoistable equivalence classes, and materialize
// the rewrite. It returns the new body root.
func Run(g *ir.Graph, body arena.Ref) (arena.Ref, error) {
	a := NewAnalyzer(nil)
	folded := a.foldInvariants(g, body)
	a.Analyze(g, folded, nil, tracked(argumentOf(g, folded), 0))
	subs := a.Rewrite(g)
	return Materialize(g, folded, subs)
}

func argumentOf(g *ir.Graph, body arena.Ref) arena.Ref {
	var found arena.Ref
	g.Walk(body, func(ref arena.Ref) {
		if ir.KindOf(g.Region, ref) == ir.KArgument {
			found = ref
		}
	})
	return found
}

// foldInvariants is the constant-space pre-pass standing in for the
// original's ConstantSpaceTransform (SPEC_FULL.md §4A): First/Rest of
// a Pair collapse directly to the corresponding side, bounding how
// much structure code motion has to track. It is its own memoized
// walk, which Run performs just before Analyze, rather than a separate
// top-level pipeline stage, and it interns its results into g's own
// Region.
func (a *Analyzer) foldInvariants(g *ir.Graph, body arena.Ref) arena.Ref {
	memo := make(map[arena.Ref]arena.Ref)
	var fold func(arena.Ref) arena.Ref
	r := g.Region
	fold = func(ref arena.Ref) arena.Ref {
		if out, ok := memo[ref]; ok {
			return out
		}
		var out arena.Ref
		switch ir.KindOf(r, ref) {
		case ir.KPair:
			x, y := ir.PairOperands(r, ref)
			out = ir.NewPair(r, fold(x), fold(y))
		case ir.KFirst:
			p := fold(ir.FirstOperand(r, ref))
			if ir.KindOf(r, p) == ir.KPair {
				head, _ := ir.PairOperands(r, p)
				out = head
			} else {
				out = ir.NewFirst(r, p)
			}
		case ir.KRest:
			p := fold(ir.RestOperand(r, ref))
			if ir.KindOf(r, p) == ir.KPair {
				_, b := ir.PairOperands(r, p)
				out = b
			} else {
				out = ir.NewRest(r, p)
			}
		default:
			out = ref
		}
		memo[ref] = out
		return out
	}
	return fold(body)
}

func rewriteWithReplacements(g *ir.Graph, ref arena.Ref, repl map[arena.Ref]arena.Ref) arena.Ref {
	if out, ok := repl[ref]; ok {
		return out
	}
	r := g.Region
	switch ir.KindOf(r, ref) {
	case ir.KPair:
		x, y := ir.PairOperands(r, ref)
		return ir.NewPair(r, rewriteWithReplacements(g, x, repl), rewriteWithReplacements(g, y, repl))
	case ir.KFirst:
		return ir.NewFirst(r, rewriteWithReplacements(g, ir.FirstOperand(r, ref), repl))
	case ir.KRest:
		return ir.NewRest(r, rewriteWithReplacements(g, ir.RestOperand(r, ref), repl))
	default:
		return ref
	}
}
