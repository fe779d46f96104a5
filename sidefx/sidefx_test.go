package sidefx

import (
	"math/big"
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

func TestRunIdentityIsStateless(t *testing.T) {
	a := arena.New()
	r := a.Current()
	root := ir.NewArgument(r, types.TF64)
	g := ir.NewGraph(r, root)

	state := NewStateLayout()
	res, err := Run(g, root, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasState {
		t.Fatalf("identity function should not touch persistent state")
	}
	if res.Value.Accessor != root {
		t.Fatalf("identity function should return its argument unchanged, got %v", res.Value.Accessor)
	}
	if state.Size() != 0 {
		t.Fatalf("identity function should allocate no state, got %d bytes", state.Size())
	}
}

func TestRunRingBufferAllocatesState(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	zero := ir.NewConstant(r, types.TF64, types.Invariant{Rat: big.NewRat(0, 1)})
	root := ir.NewRingBuffer(r, 1, false, arg, zero)
	g := ir.NewGraph(r, root)

	state := NewStateLayout()
	res, err := Run(g, root, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.HasState {
		t.Fatalf("a ring buffer should mark its enclosing function stateful")
	}
	if state.Size() == 0 {
		t.Fatalf("a length-1 ring buffer should allocate at least one slot")
	}
}

func TestRunGlobalRoundTrip(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	write := ir.NewSetGlobal(r, "acc", arg)
	read := ir.NewGetGlobal(r, "acc", types.TF64)
	root := ir.NewRest(r, ir.NewPair(r, write, read))
	g := ir.NewGraph(r, root)

	state := NewStateLayout()
	res, err := Run(g, root, state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.HasState {
		t.Fatalf("a global write/read pair should mark the function stateful")
	}
	if _, ok := state.SymbolOffset("acc"); !ok {
		t.Fatalf("global %q should have been allocated a slot", "acc")
	}
}

// A read that aliases a write elsewhere in the hazard list must be
// swallowed into the chain (ahead of that write, since it was emitted
// first) rather than left out as pass-through: this is the read-
// before-write edge spec §4.6.5 requires.
func TestResolveHazardsSwallowsAliasingRead(t *testing.T) {
	a := arena.New()
	r := a.Current()
	g := ir.NewGraph(r, arena.Invalid)
	slotX := r.Intern(&inode{kind: IGetSlot, slot: 0, uid: "x"})
	load := r.Intern(&inode{kind: ILoad, ops: []arena.Ref{slotX}, size: 8})
	store := r.Intern(&inode{kind: IStore, ops: []arena.Ref{slotX, load}, size: 8})

	chain := ResolveHazards(g, []arena.Ref{load, store})
	want := r.Intern(&inode{kind: IDeps, ops: []arena.Ref{load, store}})
	if chain != want {
		t.Fatalf("aliasing read should be swallowed ahead of its write, got %v want %v", chain, want)
	}
}

// A read of a slot no write in the list ever touches carries no
// ordering obligation and is left out of the chain entirely.
func TestResolveHazardsSkipsUnrelatedRead(t *testing.T) {
	a := arena.New()
	r := a.Current()
	g := ir.NewGraph(r, arena.Invalid)
	slotX := r.Intern(&inode{kind: IGetSlot, slot: 0, uid: "x"})
	slotY := r.Intern(&inode{kind: IGetSlot, slot: 8, uid: "y"})
	load := r.Intern(&inode{kind: ILoad, ops: []arena.Ref{slotY}, size: 8})
	constVal := r.Intern(&inode{kind: IGetSlot, slot: 16, uid: "c"})
	store := r.Intern(&inode{kind: IStore, ops: []arena.Ref{slotX, constVal}, size: 8})

	chain := ResolveHazards(g, []arena.Ref{load, store})
	if chain != store {
		t.Fatalf("a read of an unwritten slot should be pass-through, got %v want %v", chain, store)
	}
}
