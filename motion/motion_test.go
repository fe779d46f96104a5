package motion

import (
	"math/big"
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

func TestFoldInvariantsCollapsesFirstOfPair(t *testing.T) {
	r := arena.New().Current()
	c := ir.NewConstant(r, types.TF32, types.Invariant{Rat: big.NewRat(1, 1)})
	other := ir.NewArgument(r, types.TF64)
	pair := ir.NewPair(r, c, other)
	first := ir.NewFirst(r, pair)

	a := NewAnalyzer(nil)
	folded := a.foldInvariants(ir.NewGraph(r, first), first)
	if folded != c {
		t.Fatalf("First(Pair(c, other)) should fold directly to c, got a different ref")
	}
}

func TestRunMaterializesWithoutError(t *testing.T) {
	r := arena.New().Current()
	arg := ir.NewArgument(r, types.TF32)
	body := ir.NewPair(r, arg, arg)
	g := ir.NewGraph(r, body)

	out, err := Run(g, body)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out == arena.Invalid {
		t.Fatalf("Run should return a valid materialized root")
	}
}

func TestArgumentOfFindsArgumentLeaf(t *testing.T) {
	r := arena.New().Current()
	arg := ir.NewArgument(r, types.TF64)
	body := ir.NewFirst(r, ir.NewPair(r, arg, arg))
	g := ir.NewGraph(r, body)
	if got := argumentOf(g, body); got != arg {
		t.Fatalf("argumentOf should locate the Argument leaf within the body")
	}
}

func TestTrackedRespectsMaxDistance(t *testing.T) {
	ref := arena.Ref(1)
	if eq := tracked(ref, MaxTrackDistance+1); eq.known {
		t.Fatalf("tracking beyond MaxTrackDistance should yield an unknown equivalence")
	}
	if eq := tracked(ref, MaxTrackDistance); !eq.known {
		t.Fatalf("tracking at exactly MaxTrackDistance should still be known")
	}
}
