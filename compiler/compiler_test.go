package compiler

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/kronoslang/kronos-sub002/diagnostics"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

func newTestContext() *Context {
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf)
	return NewContext(func(ir.SourceAddr) diagnostics.Position { return diagnostics.Position{} }, sink)
}

func TestMakeCompilesIdentityToBytecode(t *testing.T) {
	a := arena.New()
	r := a.Current()
	root := ir.NewArgument(r, types.TF64)
	g := ir.NewGraph(r, root)
	g.SetType(root, types.TF64)

	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf)
	ctx := NewContext(func(ir.SourceAddr) diagnostics.Position { return diagnostics.Position{} }, sink)

	m, err := ctx.Make(g, root, ir.Null, BackendBytecode, Flags{})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if m.GetSize() != 0 {
		t.Fatalf("identity function should need no persistent state, got %d", m.GetSize())
	}
	if m.Bytecode == nil || len(m.Bytecode.Code) == 0 {
		t.Fatalf("expected a non-empty bytecode program")
	}
}

func TestMakeCompilesRingBufferToNative(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := ir.NewRingBuffer(r, 1, false, arg, arena.Invalid)
	g := ir.NewGraph(r, root)
	g.SetType(arg, types.TF64)

	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf)
	ctx := NewContext(func(ir.SourceAddr) diagnostics.Position { return diagnostics.Position{} }, sink)

	m, err := ctx.Make(g, root, ir.Null, BackendNative, Flags{OptimizationLevel: 2})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if m.GetSize() == 0 {
		t.Fatalf("a ring buffer should require persistent state")
	}
	if m.Native == nil || len(m.Native.Blocks) == 0 {
		t.Fatalf("expected a non-empty native schedule")
	}
}

// Recompiling the same graph (same arena.Region, same post-Code-Motion
// root) should reuse the first compile's persistent-state slot table
// rather than bump-allocating a second, independent one: a driver
// recompiling after a live-reload expects an existing module's state
// buffer to stay addressable at the same offsets.
func TestMakeReusesStateLayoutAcrossRecompiles(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := ir.NewRingBuffer(r, 1, false, arg, arena.Invalid)
	g := ir.NewGraph(r, root)
	g.SetType(arg, types.TF64)

	ctx := newTestContext()

	m1, err := ctx.Make(g, root, ir.Null, BackendNative, Flags{})
	if err != nil {
		t.Fatalf("Make (first): %v", err)
	}
	if len(ctx.layoutCache) != 1 {
		t.Fatalf("expected one cached layout after the first Make, got %d", len(ctx.layoutCache))
	}

	m2, err := ctx.Make(g, root, ir.Null, BackendNative, Flags{})
	if err != nil {
		t.Fatalf("Make (second): %v", err)
	}
	if m2.GetSize() != m1.GetSize() {
		t.Fatalf("recompiled layout size changed: %d vs %d", m1.GetSize(), m2.GetSize())
	}
	for _, key := range m1.State.Keys() {
		off1, _ := m1.State.SymbolOffset(key)
		off2, ok := m2.State.SymbolOffset(key)
		if !ok || off1 != off2 {
			t.Fatalf("slot %q moved across recompiles: %d vs %d", key, off1, off2)
		}
	}
}

// A no-argument constant function: Evaluate should produce the
// constant's literal value with no input at all.
func TestEvaluateConstantFunction(t *testing.T) {
	a := arena.New()
	r := a.Current()
	root := ir.NewConstant(r, types.TF64, types.Invariant{Rat: big.NewRat(42, 1)})
	g := ir.NewGraph(r, root)

	ctx := newTestContext()
	m, err := ctx.Make(g, root, ir.Null, BackendBytecode, Flags{})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	out, err := m.Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(out) != 1 || out[0] != 42 {
		t.Fatalf("got %v, want [42]", out)
	}
}

// An identity function over a composite argument: Evaluate must
// return every leaf of the argument unchanged and in order.
func TestEvaluatePassThroughComposite(t *testing.T) {
	a := arena.New()
	r := a.Current()
	pairType := types.NewPair(types.TF32, types.TF32)
	arg := ir.NewArgument(r, pairType)
	g := ir.NewGraph(r, arg)
	g.SetType(arg, pairType)

	ctx := newTestContext()
	m, err := ctx.Make(g, arg, ir.Null, BackendBytecode, Flags{})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	out, err := m.Evaluate([]float64{3, 4})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(out) != 2 || out[0] != 3 || out[1] != 4 {
		t.Fatalf("got %v, want [3 4]", out)
	}
}

// A single-sample delay line seeded at zero: three successive Process
// calls with inputs 1, 2, 3 must read back 0, 1, 2 -- the output lags
// the input by exactly one trigger, never observing its own write.
func TestProcessDelayLineLagsByOneTrigger(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF32)
	zero := ir.NewConstant(r, types.TF32, types.Invariant{Rat: big.NewRat(0, 1)})
	root := ir.NewRingBuffer(r, 1, false, arg, zero)
	g := ir.NewGraph(r, root)
	g.SetType(arg, types.TF32)

	ctx := newTestContext()
	m, err := ctx.Make(g, root, ir.Null, BackendBytecode, Flags{})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}

	inputs := []float64{1, 2, 3}
	want := []float64{0, 1, 2}
	for i, in := range inputs {
		out, err := m.Process("default", []float64{in})
		if err != nil {
			t.Fatalf("Process(%d): %v", i, err)
		}
		if len(out) != 1 || out[0] != want[i] {
			t.Fatalf("tick %d: got %v, want [%v]", i, out, want[i])
		}
	}
}

// A tail-recursive, statically unrolled RecursionBranch chain sharing
// one compiled body: with an identity step this is the nearest
// literal exercise of the unrolling machinery a numeric
// factorial would need, since this IR has no arithmetic/multiply
// operator anywhere to actually multiply the unrolled accumulator --
// only structural, call, and state-allocating node kinds exist. Every
// iteration must still share one compiled Subroutine rather than
// compiling loopCount separate copies.
func TestEvaluateRecursionUnrollsSharedSubroutine(t *testing.T) {
	a := arena.New()
	r := a.Current()
	stepArg := ir.NewArgument(r, types.TF64)
	arg := ir.NewArgument(r, types.TF64)
	const loopCount = 5
	root := ir.NewRecursionBranch(r, loopCount, stepArg, arg)
	g := ir.NewGraph(r, root)
	g.SetType(arg, types.TF64)

	ctx := newTestContext()
	m, err := ctx.Make(g, root, ir.Null, BackendBytecode, Flags{})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	out, err := m.Evaluate([]float64{5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(out) != 1 || out[0] != 5 {
		t.Fatalf("got %v, want [5] (identity step unrolled %d times)", out, loopCount)
	}
	if len(m.subs) != 1 {
		t.Fatalf("expected one compiled subroutine shape shared across %d unrolled calls, got %d", loopCount, len(m.subs))
	}
}

func TestRegisterSpecializationCallbackReceivesCompiledEvent(t *testing.T) {
	a := arena.New()
	r := a.Current()
	root := ir.NewArgument(r, types.TF64)
	g := ir.NewGraph(r, root)
	g.SetType(root, types.TF64)

	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf)
	ctx := NewContext(func(ir.SourceAddr) diagnostics.Position { return diagnostics.Position{} }, sink)

	var events []SpecializationEvent
	ctx.RegisterSpecializationCallback("test", func(ev SpecializationEvent) { events = append(events, ev) })

	if _, err := ctx.Make(g, root, ir.Null, BackendBytecode, Flags{}); err != nil {
		t.Fatalf("Make: %v", err)
	}
	if len(events) != 1 || events[0].Message != "compiled" {
		t.Fatalf("expected one 'compiled' event, got %+v", events)
	}
}
