package sidefx

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/diagnostics"
	"github.com/kronoslang/kronos-sub002/elision"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

// Subroutine is a compiled FunctionCall body: a self-contained
// imperative graph with its own argument/result accessors, memoized by
// (body, argument-type, destination-shape) so that two call sites with
// identical shapes share one compiled body.
type Subroutine struct {
	Name       string
	Body       arena.Ref // the value-domain body this subroutine was compiled from, in Graph
	ArgRef     arena.Ref // the KArgument leaf within Body this call binds its argument to
	Arg        DataSource
	Result     DataSource
	Deps       arena.Ref // this body's own resolved hazard chain, run before Result is read
	HasState   bool      // allocates from the module state layout (ring buffer, global, or nested stateful call)
	byValueArg bool
}

// Compiler lowers one function body's value DAG (already annotated by
// elision.Map) into Graph's imperative node space, threading a shared
// StateLayout across every call.
//
// Grounded on vm/exprcompile.go's single-pass "compile an expr node,
// consult a memo table, emit VM ops" walker, generalized from
// expression-to-bytecode to expression-to-imperative-graph.
type Compiler struct {
	g       *ir.Graph
	elided  *elision.Map
	state   *StateLayout
	subs    map[string]*Subroutine
	memo    map[arena.Ref]DataSource
	hazards []arena.Ref // per-trigger side effects that must be sequenced (spec §4.6.5)
	inits   []arena.Ref // one-time seed stores (global initializers, ring-buffer init) run only by Initialize

	hasStatefulCall bool // this body (directly or transitively) touches persistent state
}

func NewCompiler(g *ir.Graph, elided *elision.Map, state *StateLayout) *Compiler {
	return &Compiler{
		g:      g,
		elided: elided,
		state:  state,
		subs:   make(map[string]*Subroutine),
		memo:   make(map[arena.Ref]DataSource),
	}
}

// Compile lowers ref into the imperative graph, writing into dest when
// elision provided one, and returns the DataSource callers should read
// the value from.
func (c *Compiler) Compile(ref arena.Ref) (DataSource, error) {
	if ds, ok := c.memo[ref]; ok {
		return ds, nil
	}
	r := c.g.Region
	dest := c.elided.Of(ref)

	var out DataSource
	var err error
	switch ir.KindOf(r, ref) {
	case ir.KArgument:
		t := ir.ArgumentType(r, ref)
		out = DataSource{Accessor: ref, Layout: t}

	case ir.KConstant:
		t, _ := ir.ConstantValue(r, ref)
		out = DataSource{Accessor: ref, Layout: t}

	case ir.KExternalRead:
		_, t := ir.ExternalReadName(r, ref)
		out = DataSource{Accessor: ref, Layout: t}

	case ir.KPair:
		out, err = c.compilePair(ref, dest)

	case ir.KFirst:
		p, perr := c.Compile(ir.FirstOperand(r, ref))
		if perr != nil {
			return DataSource{}, perr
		}
		out = c.project(p, true)

	case ir.KRest:
		p, perr := c.Compile(ir.RestOperand(r, ref))
		if perr != nil {
			return DataSource{}, perr
		}
		out = c.project(p, false)

	case ir.KFunctionCall:
		out, err = c.compileCall(ref, dest)

	case ir.KRecursionBranch:
		out, err = c.compileRecursion(ref, dest)

	case ir.KFunctionSequence:
		out, err = c.compileSequence(ref, dest)

	case ir.KGetGlobal:
		uid := ir.GlobalUID(r, ref)
		t := ir.GlobalType(r, ref)
		size := int64(types.Size(t))
		slot := c.state.SlotFor(uid, size)
		acc := r.Intern(&inode{kind: IGetSlot, slot: int(slot), uid: uid})
		// Capture into a dedicated snapshot slot rather than returning
		// acc directly: a KSetGlobal writer to the same uid reached
		// anywhere else in this same compiled body would otherwise race
		// this read under Target Emission's run-all-hazards-then-load
		// evaluation order, the same hazard compileRingBuffer guards
		// against.
		snapSlot := c.state.SlotFor(uid+".snap", size)
		snap := r.Intern(&inode{kind: IGetSlot, slot: int(snapSlot), uid: uid + ".snap"})
		capture := r.Intern(&inode{kind: IStore, ops: []arena.Ref{snap, acc}, size: size})
		c.hazards = append(c.hazards, capture)
		out = DataSource{Accessor: snap, Layout: t}
		c.hasStatefulCall = true

	case ir.KSetGlobal:
		out, err = c.compileSetGlobal(ref)

	case ir.KRingBuffer:
		out, err = c.compileRingBuffer(ref)

	case ir.KBoundary:
		up, _, _ := ir.BoundaryOperands(r, ref)
		out, err = c.compileBoundary(ref, up)

	case ir.KTick, ir.KRateChange, ir.KGate, ir.KMerge, ir.KImpose, ir.KRelativePriority, ir.KBaseRateProbe:
		// These are purely reactive-domain annotations the Side-Effect
		// Compiler does not itself execute: by the time this pass runs,
		// Reactive Analysis has already consumed them to decide *when*
		// code runs, and the scheduler they describe lives outside this
		// per-trigger lowering. A node of this kind reaching here without
		// first being rewritten away is an invariant violation.
		return DataSource{}, &diagnostics.InternalError{
			Msg: fmt.Sprintf("sidefx: unexpected reactive-only node kind %s reached lowering", ir.KindOf(r, ref)),
		}

	default:
		return DataSource{}, &diagnostics.InternalError{Msg: "sidefx: unhandled node kind in Compile"}
	}
	if err != nil {
		return DataSource{}, err
	}

	out = c.writeToDest(ref, out, dest)
	c.memo[ref] = out
	return out, nil
}

// compilePair lowers a structural Pair. Each leg goes through Compile
// (so a leg that copy elision gave its own split destination is
// written there), and the two DataSources are carried forward as a
// synthetic composite accessor (an Offset pair reusing the value
// domain's own Pair node, since an imperative "where do I read this
// from" expression is itself just a small tree over accessors). When
// the Pair itself has a destination, Compile's writeToDest then copies
// the composite into it with one MemCpy.
func (c *Compiler) compilePair(ref arena.Ref, dest elision.Dest) (DataSource, error) {
	r := c.g.Region
	a, b := ir.PairOperands(r, ref)
	da, err := c.Compile(a)
	if err != nil {
		return DataSource{}, err
	}
	db, err := c.Compile(b)
	if err != nil {
		return DataSource{}, err
	}
	t := types.NewPair(da.Layout, db.Layout)
	acc := r.Intern(&inode{kind: IOffset, ops: []arena.Ref{da.Accessor, db.Accessor}})
	return DataSource{Accessor: acc, Layout: t}, nil
}

// project reads one leg back out of a composite Pair DataSource
// produced by compilePair (or, for a by-value scalar incorrectly
// projected, panics -- that would be a type-checking bug upstream of
// this pass).
func (c *Compiler) project(p DataSource, first bool) DataSource {
	r := c.g.Region
	n, ok := r.Get(p.Accessor).(*inode)
	if ok && n.kind == IOffset && len(n.ops) == 2 {
		if first {
			return DataSource{Accessor: n.ops[0], Layout: p.Layout.First()}
		}
		return DataSource{Accessor: n.ops[1], Layout: p.Layout.Rest()}
	}
	// Fallback: the pair arrived already collapsed into one physical
	// buffer (it was written through a shared destination); project by
	// byte offset into it instead.
	if first {
		return DataSource{Accessor: r.Intern(&inode{kind: IOffset, ops: []arena.Ref{p.Accessor}, offset: 0}), Layout: p.Layout.First()}
	}
	off := int64(types.Size(p.Layout.First())) * int64(p.Layout.RunCount())
	return DataSource{Accessor: r.Intern(&inode{kind: IOffset, ops: []arena.Ref{p.Accessor}, offset: off}), Layout: p.Layout.Rest()}
}

// writeToDest emits the MemCpy/Store that copies a computed value into
// its threaded destination, when elision provided one and the producer
// did not already write there directly (Argument/Constant/ExternalRead
// reads and pass-through GetGlobal reads never get a copy of their
// own; every other producer's result, Boundary included, is
// materialized once here).
func (c *Compiler) writeToDest(ref arena.Ref, out DataSource, dest elision.Dest) DataSource {
	if dest.Nil || out.Accessor == dest.Ref {
		return out
	}
	switch ir.KindOf(c.g.Region, ref) {
	case ir.KArgument, ir.KConstant, ir.KExternalRead, ir.KGetGlobal:
		return out
	}
	size := int64(types.Size(out.Layout))
	if size == 0 {
		return out
	}
	store := c.g.Region.Intern(&inode{kind: IMemCpy, ops: []arena.Ref{dest.Ref, out.Accessor}, size: size})
	c.hazards = append(c.hazards, store)
	return DataSource{Accessor: dest.Ref, Layout: out.Layout}
}

// Hazards returns every per-trigger side-effecting lowering emitted so
// far, in emission order, for ResolveHazards to re-sequence.
func (c *Compiler) Hazards() []arena.Ref { return c.hazards }

// Inits returns every one-time seed store emitted so far (global
// variable initializers, spec §4.6.4's ring-buffer init operand),
// which belong under the module's Initialize entry point rather than
// in the per-trigger hazard chain.
func (c *Compiler) Inits() []arena.Ref { return c.inits }

// Subroutines returns every compiled callee keyed by its symbol name,
// so that a consumer reached only the symbol recorded on an
// ISubroutine node (Target Emission, or an interpreter) can still find
// the callee's own Body/Result/Deps to evaluate it.
func (c *Compiler) Subroutines() map[string]*Subroutine {
	out := make(map[string]*Subroutine, len(c.subs))
	for _, sub := range c.subs {
		out[sub.Name] = sub
	}
	return out
}
