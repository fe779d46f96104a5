// Package elision implements the Copy Elision pass (spec §4.5):
// thread a destination expression (the address the caller wants the
// producer to write into) backwards from the root toward leaves, and
// annotate every node that produces a value-by-reference with that
// destination.
//
// Grounded on plan/pir/projectelim.go and filterelim.go's backward
// dataflow propagation of "what's actually needed downstream",
// repurposed from column liveness to destination-pointer liveness.
package elision

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
)

// Dest is a destination expression: the address a producer should
// write its result into, or Nil (abort elision: the producer must
// allocate its own buffer, or return by value).
type Dest struct {
	// Nil reports no destination was threaded this far (spec §4.5
	// "Most leaf/native operators abort elision (destination becomes
	// Nil)").
	Nil bool
	// Ref names the destination pointer expression in the imperative
	// domain. It is opaque to this pass: elision only decides *whether*
	// a destination is available and how it splits across Pair/First/
	// Rest, not how pointers are represented (that is the Side-Effect
	// Compiler's job, spec §4.6).
	Ref arena.Ref
}

var nilDest = Dest{Nil: true}

func destFirst(d Dest, g *ir.Graph) Dest {
	if d.Nil {
		return d
	}
	return Dest{Ref: ir.NewFirst(g.Region, d.Ref)}
}

func destRest(d Dest, g *ir.Graph) Dest {
	if d.Nil {
		return d
	}
	return Dest{Ref: ir.NewRest(g.Region, d.Ref)}
}

// merge combines two incoming destinations at a merge point (Switch,
// FunctionCall, FunctionSequence, RecursionBranch), keeping the
// non-Nil side (spec §4.5 "combine the incoming destination with the
// previously recorded one using a pointwise merge that keeps the
// non-Nil side"). When neither side is Nil, spec §9's documented
// open question ("MergeSideEffects... neither operand is Nil and
// neither is a pair: use the new side effect") is resolved here by
// last-writer-wins -- b (the "new" side) takes precedence -- per
// DESIGN.md's Open Question #3, and is exercised directly by
// elision_test.go's TestMergeKeepsNonNilAndLastWriterWins.
func merge(a, b Dest) Dest {
	if a.Nil {
		return b
	}
	if b.Nil {
		return a
	}
	return b
}

// Map is the result of a Copy Elision run: every node's threaded
// destination (spec §4.5 "The result is a map node -> destination_expr
// consumed by the side-effect compiler").
type Map struct {
	dest map[arena.Ref]Dest
}

func (m *Map) Of(ref arena.Ref) Dest {
	if d, ok := m.dest[ref]; ok {
		return d
	}
	return nilDest
}

// Run threads dest backwards from root, returning the destination map
// (spec §4.5).
func Run(g *ir.Graph, root arena.Ref, dest Dest) *Map {
	m := &Map{dest: make(map[arena.Ref]Dest)}
	var visit func(arena.Ref, Dest)
	r := g.Region
	visit = func(ref arena.Ref, d Dest) {
		if existing, ok := m.dest[ref]; ok {
			m.dest[ref] = merge(existing, d)
			return
		}
		m.dest[ref] = d

		switch ir.KindOf(r, ref) {
		case ir.KPair:
			a, b := ir.PairOperands(r, ref)
			visit(a, destFirst(d, g))
			visit(b, destRest(d, g))

		case ir.KFirst:
			x := ir.FirstOperand(r, ref)
			visit(x, Dest{Ref: ir.NewPair(r, derefOrInvalid(d), arena.Invalid)})

		case ir.KRest:
			x := ir.RestOperand(r, ref)
			visit(x, Dest{Ref: ir.NewPair(r, arena.Invalid, derefOrInvalid(d))})

		case ir.KFunctionCall:
			_, body, arg := ir.FunctionCallOperands(r, ref)
			visit(body, d)
			visit(arg, nilDest)

		case ir.KRecursionBranch:
			_, body, arg := ir.RecursionBranchOperands(r, ref)
			visit(body, d)
			visit(arg, nilDest)

		case ir.KFunctionSequence:
			_, gen, arg := ir.FunctionSequenceOperands(r, ref)
			visit(gen, d)
			visit(arg, nilDest)

		case ir.KMerge:
			for _, e := range ir.MergeElements(r, ref) {
				visit(e, d)
			}

		case ir.KImpose:
			clock, signal := ir.ImposeOperands(r, ref)
			visit(clock, nilDest)
			visit(signal, d)

		case ir.KGate:
			signal, gate := ir.GateOperands(r, ref)
			visit(signal, d)
			visit(gate, nilDest)

		case ir.KRateChange:
			_, signal := ir.RateChangeFactor(r, ref)
			visit(signal, d)

		case ir.KRelativePriority:
			_, signal, from := ir.RelativePriorityOperands(r, ref)
			visit(signal, d)
			visit(from, nilDest)

		case ir.KSetGlobal:
			value := ir.SetGlobalValue(r, ref)
			visit(value, nilDest)

		case ir.KRingBuffer:
			_, _, input, init := ir.RingBufferOperands(r, ref)
			visit(input, nilDest)
			if init != arena.Invalid {
				visit(init, nilDest)
			}

		case ir.KBoundary:
			up, _, _ := ir.BoundaryOperands(r, ref)
			visit(up, nilDest)

		default:
			// Argument, Constant, ExternalRead, Tick, GetGlobal,
			// BaseRateProbe are leaves/native producers: elision
			// aborts here (spec §4.5 "Most leaf/native operators abort
			// elision").
		}
	}
	visit(root, dest)
	return m
}

func derefOrInvalid(d Dest) arena.Ref {
	if d.Nil {
		return arena.Invalid
	}
	return d.Ref
}
