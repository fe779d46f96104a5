package bytecode

import (
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

func TestAssembleRingBufferEndsInReturn(t *testing.T) {
	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := ir.NewRingBuffer(r, 1, false, arg, arena.Invalid)
	g := ir.NewGraph(r, root)

	res, err := sidefx.Run(g, root, sidefx.NewStateLayout())
	if err != nil {
		t.Fatalf("sidefx.Run: %v", err)
	}

	prog, err := NewAssembler(r).Assemble(res.Deps, res.Value)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Code) == 0 {
		t.Fatalf("expected non-empty instruction stream")
	}
	if Op(prog.Code[len(prog.Code)-1]) != OpRet {
		t.Fatalf("expected program to end with ret, last byte was %d", prog.Code[len(prog.Code)-1])
	}
}

func TestSymbolTableDeduplicatesCallees(t *testing.T) {
	as := NewAssembler(nil)
	i1 := as.symbol("f")
	i2 := as.symbol("g")
	i3 := as.symbol("f")
	if i1 != i3 {
		t.Fatalf("expected repeated symbol to reuse its index, got %d and %d", i1, i3)
	}
	if i2 == i1 {
		t.Fatalf("expected distinct symbols to get distinct indices")
	}
	if len(as.symbols) != 2 {
		t.Fatalf("expected 2 unique symbols, got %d", len(as.symbols))
	}
}
