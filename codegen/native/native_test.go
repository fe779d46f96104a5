package native

import (
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

func TestScheduleFlattensRingBufferHazards(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := ir.NewRingBuffer(r, 1, false, arg, arena.Invalid)
	g := ir.NewGraph(r, root)

	res, err := sidefx.Run(g, root, sidefx.NewStateLayout())
	if err != nil {
		t.Fatalf("sidefx.Run: %v", err)
	}

	sched := NewScheduler(r).Schedule(res.Deps, res.Value.Accessor, "default")
	if len(sched.Blocks) != 1 {
		t.Fatalf("expected a single straight-line block, got %d", len(sched.Blocks))
	}
	if len(sched.Blocks[0].Ops) == 0 {
		t.Fatalf("expected the ring buffer's store hazard to be scheduled")
	}
	if err := Verify(sched); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestAllocateAssignsRegisters(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := ir.NewRingBuffer(r, 1, false, arg, arena.Invalid)
	g := ir.NewGraph(r, root)

	res, err := sidefx.Run(g, root, sidefx.NewStateLayout())
	if err != nil {
		t.Fatalf("sidefx.Run: %v", err)
	}
	sched := NewScheduler(r).Schedule(res.Deps, res.Value.Accessor, "default")
	alloc := Allocate(r, sched)
	if alloc.NumRegs == 0 {
		t.Fatalf("expected at least one virtual register to be allocated")
	}
}
