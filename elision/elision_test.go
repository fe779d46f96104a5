package elision

import (
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

func TestRunSplitsDestinationAcrossPair(t *testing.T) {
	r := arena.New().Current()
	a := ir.NewArgument(r, types.TF32)
	b := ir.NewArgument(r, types.TF64)
	root := ir.NewPair(r, a, b)
	sink := ir.NewArgument(r, types.NewPair(types.TF32, types.NewPair(types.TF64, types.Nil)))

	m := Run(ir.NewGraph(r, root), root, Dest{Ref: sink})

	da := m.Of(a)
	if da.Nil {
		t.Fatalf("first leg of a destined Pair should inherit a non-Nil destination")
	}
	db := m.Of(b)
	if db.Nil {
		t.Fatalf("second leg of a destined Pair should inherit a non-Nil destination")
	}
	if da.Ref == db.Ref {
		t.Fatalf("First and Rest destinations should be distinct expressions")
	}
}

func TestRunAbortsAtLeaves(t *testing.T) {
	r := arena.New().Current()
	leaf := ir.NewArgument(r, types.TF32)
	m := Run(ir.NewGraph(r, leaf), leaf, Dest{Nil: true})
	if !m.Of(leaf).Nil {
		t.Fatalf("a leaf given a Nil destination should remain Nil")
	}
}

func TestMergeKeepsNonNilAndLastWriterWins(t *testing.T) {
	if got := merge(Dest{Nil: true}, Dest{Ref: arena.Ref(5)}); got.Nil {
		t.Fatalf("merge should keep the non-Nil side when one side is Nil")
	}
	a := Dest{Ref: arena.Ref(1)}
	b := Dest{Ref: arena.Ref(2)}
	if got := merge(a, b); got.Ref != b.Ref {
		t.Fatalf("merge of two non-Nil destinations should keep the new (second) side, got %v want %v", got.Ref, b.Ref)
	}
}

func TestRunMergesDestinationsAtMergeNode(t *testing.T) {
	r := arena.New().Current()
	shared := ir.NewArgument(r, types.TF32)
	root := ir.NewMerge(r, shared, shared)
	sink := ir.NewArgument(r, types.TF32)

	m := Run(ir.NewGraph(r, root), root, Dest{Ref: sink})
	if m.Of(shared).Nil {
		t.Fatalf("a node reached from both arms of a Merge should retain a non-Nil destination")
	}
}
