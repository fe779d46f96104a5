package compiler

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

// evalState is one run of the reference interpreter: a single
// Initialize or Process_T call against a Module's compiled graph. It
// mirrors codegen/bytecode/lower.go's emit/emitLoad dispatch -- the
// same hazard-chain-then-lazy-load structure Target Emission uses --
// but performs the load/store directly against the module's
// persistent-state map instead of appending instructions, so it can
// report the literal values a compiled module produces without a
// separate bytecode or native runtime to execute.
//
// Values here are flattened to []float64: one entry per scalar leaf of
// a DataSource's type, in the type's own Size/leafCount order. This
// keeps the interpreter proportionate to what the reactive-signal
// scenarios actually need -- scalar streams through delay lines,
// globals, and subroutine calls -- rather than reimplementing a
// byte-exact memory model. A composite (two-operand Offset) accessor or
// destination is read and written through its first leg only, the same
// simplification codegen/bytecode/lower.go's emitLoad makes; its second
// leg is not evaluated.
type evalState struct {
	m      *Module
	region *arena.Region

	argRef arena.Ref
	argVal []float64

	execDone map[arena.Ref]bool
	valMemo  map[arena.Ref][]float64
}

// argumentRefOf finds the KArgument leaf a compiled body's outermost
// caller binds its argument to, mirroring sidefx's own
// argumentRefOf(body) (package-private there) so Process can bind the
// top-level frame the same way compileSubroutine binds a callee's.
func argumentRefOf(g *ir.Graph, body arena.Ref) arena.Ref {
	var found arena.Ref
	g.Walk(body, func(ref arena.Ref) {
		if ir.KindOf(g.Region, ref) == ir.KArgument {
			found = ref
		}
	})
	return found
}

func newEvalState(m *Module, argRef arena.Ref, argVal []float64) *evalState {
	return &evalState{
		m:        m,
		region:   m.region,
		argRef:   argRef,
		argVal:   argVal,
		execDone: make(map[arena.Ref]bool),
		valMemo:  make(map[arena.Ref][]float64),
	}
}

// exec runs a hazard-chain node for its side effect only, same
// traversal emit() makes in codegen/bytecode/lower.go.
func (e *evalState) exec(ref arena.Ref) error {
	if ref == arena.Invalid || e.execDone[ref] {
		return nil
	}
	e.execDone[ref] = true
	if !sidefx.IsNode(e.region, ref) {
		return fmt.Errorf("compiler: eval: ref %v is not a hazard-chain node", ref)
	}
	n := sidefx.NodeAt(e.region, ref)
	switch n.Kind {
	case sidefx.IDeps:
		if err := e.exec(n.Ops[0]); err != nil {
			return err
		}
		return e.exec(n.Ops[1])

	case sidefx.IStore:
		val, err := e.eval(n.Ops[1])
		if err != nil {
			return err
		}
		if len(n.Ops) == 3 {
			// The write index is resolved for evaluation-order fidelity
			// even though this interpreter, like compileRingBuffer's
			// current lowering, has no rotating index to honor yet.
			if _, err := e.eval(n.Ops[2]); err != nil {
				return err
			}
		}
		return e.writeTo(n.Ops[0], val)

	case sidefx.IMemCpy:
		val, err := e.eval(n.Ops[1])
		if err != nil {
			return err
		}
		return e.writeTo(n.Ops[0], val)

	case sidefx.ISubroutine:
		res, err := e.callSubroutine(n)
		if err != nil {
			return err
		}
		e.valMemo[ref] = res
		if !sidefx.IsNode(e.region, n.Ops[1]) {
			// The destination is a bare value-domain leaf, not a
			// pointer: this call was compiled with no destination
			// threaded in (elision.Dest{Nil: true}), so there is
			// nowhere to store through -- a later eval of this same
			// call ref returns the memoized result above directly.
			return nil
		}
		return e.writeTo(n.Ops[1], res)

	case sidefx.IBoundaryBuf:
		val, err := e.eval(n.Ops[0])
		if err != nil {
			return err
		}
		e.m.mem[n.Slot] = val
		return nil

	case sidefx.IStateMark:
		return nil

	default:
		return fmt.Errorf("compiler: eval: %s is not a hazard-chain node", n.Kind)
	}
}

// eval resolves the value named by ref, memoized per run, mirroring
// emitLoad()'s dispatch in codegen/bytecode/lower.go. ref may name
// either a sidefx imperative node or a bare value-domain leaf
// (Argument/Constant/ExternalRead) shared from package ir.
func (e *evalState) eval(ref arena.Ref) ([]float64, error) {
	if ref == arena.Invalid {
		return []float64{0}, nil
	}
	if v, ok := e.valMemo[ref]; ok {
		return v, nil
	}

	var out []float64
	var err error
	switch {
	case sidefx.IsNode(e.region, ref):
		n := sidefx.NodeAt(e.region, ref)
		switch n.Kind {
		case sidefx.IGetSlot:
			out = e.m.mem[n.Slot]
			if out == nil {
				out = []float64{0}
			}

		case sidefx.IOffset:
			if len(n.Ops) == 0 {
				return nil, fmt.Errorf("compiler: eval: Offset node with no operand")
			}
			// Same "first leg only" simplification codegen/bytecode's
			// emitLoad documents for a split composite accessor: nothing
			// S1-S6 exercises reaches the second leg of a multi-operand
			// Offset, since writeToDest always materializes a composite
			// result into one physical buffer before it is read back.
			out, err = e.eval(n.Ops[0])

		case sidefx.ILoad:
			out, err = e.eval(n.Ops[0])
			if err == nil && len(n.Ops) == 2 {
				if _, ierr := e.eval(n.Ops[1]); ierr != nil {
					err = ierr
				}
			}

		case sidefx.IBoundaryBuf:
			if err = e.exec(ref); err == nil {
				out = e.m.mem[n.Slot]
				if out == nil {
					out = []float64{0}
				}
			}

		case sidefx.ISubroutine:
			if err = e.exec(ref); err == nil {
				out = e.valMemo[ref]
			}

		default:
			err = fmt.Errorf("compiler: eval: %s is not a value-producing node", n.Kind)
		}

	case ir.IsNode(e.region, ref):
		out, err = e.evalLeaf(ref)

	default:
		err = fmt.Errorf("compiler: eval: ref %v belongs to neither the imperative nor the value domain", ref)
	}
	if err != nil {
		return nil, err
	}
	e.valMemo[ref] = out
	return out, nil
}

// evalLeaf resolves a bare value-domain leaf: the compiled function's
// own Argument, a compile-time Constant, or an unresolved
// ExternalRead (the asset linker has no interpreter-side counterpart
// here, so a reachable ExternalRead is reported rather than guessed
// at).
func (e *evalState) evalLeaf(ref arena.Ref) ([]float64, error) {
	switch ir.KindOf(e.region, ref) {
	case ir.KArgument:
		if ref == e.argRef {
			return e.argVal, nil
		}
		return nil, fmt.Errorf("compiler: eval: argument %v is not bound in this frame", ref)

	case ir.KConstant:
		_, inv := ir.ConstantValue(e.region, ref)
		if inv.Rat == nil {
			return nil, fmt.Errorf("compiler: eval: unsupported non-numeric constant")
		}
		f, _ := inv.Rat.Float64()
		return []float64{f}, nil

	case ir.KExternalRead:
		name, _ := ir.ExternalReadName(e.region, ref)
		return nil, fmt.Errorf("compiler: eval: unresolved external read %q", name)

	default:
		return nil, fmt.Errorf("compiler: eval: unsupported leaf kind %s", ir.KindOf(e.region, ref))
	}
}

// callSubroutine evaluates the argument in the caller's frame, then
// runs the callee body in a fresh frame bound to its own ArgRef --
// exactly what codegen/bytecode's OpCall would do at a runtime this
// repository doesn't otherwise ship an interpreter for.
func (e *evalState) callSubroutine(n sidefx.Node) ([]float64, error) {
	sub, ok := e.m.subs[n.Symbol]
	if !ok {
		return nil, fmt.Errorf("compiler: eval: unknown subroutine %q", n.Symbol)
	}
	argVal, err := e.eval(n.Ops[0])
	if err != nil {
		return nil, err
	}
	child := newEvalState(e.m, sub.ArgRef, argVal)
	if err := child.exec(sub.Deps); err != nil {
		return nil, err
	}
	return child.eval(sub.Result.Accessor)
}

// writeTo resolves dst to a persistent-state slot and stores val
// there. A composite (IOffset) destination writes through its first
// leg only, the same simplification codegen/bytecode's emitLoad makes
// for a split Pair accessor.
func (e *evalState) writeTo(dst arena.Ref, val []float64) error {
	if !sidefx.IsNode(e.region, dst) {
		return fmt.Errorf("compiler: eval: store destination %v is not an imperative node", dst)
	}
	n := sidefx.NodeAt(e.region, dst)
	switch n.Kind {
	case sidefx.IGetSlot, sidefx.IBoundaryBuf:
		e.m.mem[n.Slot] = val
		return nil
	case sidefx.IOffset:
		if len(n.Ops) == 0 {
			return fmt.Errorf("compiler: eval: Offset destination with no operand")
		}
		return e.writeTo(n.Ops[0], val)
	default:
		return fmt.Errorf("compiler: eval: unsupported store destination kind %s", n.Kind)
	}
}

// Initialize runs the module's one-time seed stores -- global
// variable initializers and ring-buffer init operands -- exactly
// once, ahead of any trigger. Process and Evaluate call it automatically
// on first use, so a driver only needs to call it directly when it
// wants initialization to happen at a specific time (e.g. before
// reading GetSize-allocated state from outside).
func (m *Module) Initialize() error {
	if m.initialized {
		return nil
	}
	e := newEvalState(m, arena.Invalid, nil)
	if err := e.exec(m.inits); err != nil {
		return fmt.Errorf("compiler: initialize: %w", err)
	}
	m.initialized = true
	return nil
}

// Evaluate runs the module's default per-trigger computation once
// against arg and returns the flattened result.
func (m *Module) Evaluate(arg []float64) ([]float64, error) {
	return m.Process("default", arg)
}

// Process runs the module's computation for the named trigger, one
// compiled entry point per reactive driver. This interpreter -- like
// codegen/native's scheduler (native.go's single "default" Schedule
// call) -- only ever compiles the implicit default driver, so any
// other trigger name is rejected rather than silently misevaluated;
// modeling per-driver entry points is out of scope for now.
func (m *Module) Process(trigger string, arg []float64) ([]float64, error) {
	if trigger != "default" {
		return nil, fmt.Errorf("compiler: process: unknown trigger %q", trigger)
	}
	if !m.initialized {
		if err := m.Initialize(); err != nil {
			return nil, err
		}
	}
	e := newEvalState(m, m.argRef, arg)
	if err := e.exec(m.deps); err != nil {
		return nil, fmt.Errorf("compiler: process: %w", err)
	}
	return e.eval(m.Value.Accessor)
}
