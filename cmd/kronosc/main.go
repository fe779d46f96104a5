// Command kronosc is an example driver exercising the compiler
// package's public API end to end: it builds a small identity-style
// function by hand (this binary has no parser/specializer of its own;
// that stage is an external collaborator per spec §1's scope boundary)
// and compiles it with the backend selected by -backend, printing the
// instance size and a short summary of the emitted artifact (bytecode
// length, symbol count and stack depth, or the native block count).
//
// Grounded on the teacher's cmd/ convention of a thin main wiring
// flags to one library call and printing a short report.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/kronoslang/kronos-sub002/compiler"
	"github.com/kronoslang/kronos-sub002/diagnostics"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

func main() {
	backend := flag.String("backend", "bytecode", "target backend: bytecode|native")
	ringLen := flag.Int("delay", 0, "wrap the example function in a ring buffer of this length (0 = identity)")
	optLevel := flag.Int("O", 1, "optimization level 0..3")
	flag.Parse()

	a := arena.New()
	r := a.Current()
	arg := ir.NewArgument(r, types.TF64)
	root := arg
	if *ringLen > 0 {
		zero := ir.NewConstant(r, types.TF64, types.Invariant{Rat: big.NewRat(0, 1)})
		root = ir.NewRingBuffer(r, *ringLen, false, arg, zero)
	}
	g := ir.NewGraph(r, root)
	g.SetType(arg, types.TF64)

	sink := diagnostics.NewSink(os.Stderr)
	ctx := compiler.NewContext(func(ir.SourceAddr) diagnostics.Position { return diagnostics.Position{} }, sink)
	ctx.RegisterSpecializationCallback("kronosc", func(ev compiler.SpecializationEvent) {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "kronosc: %s: %v\n", ev.Name, ev.Err)
		}
	})

	var be compiler.Backend
	switch *backend {
	case "bytecode":
		be = compiler.BackendBytecode
	case "native":
		be = compiler.BackendNative
	default:
		fmt.Fprintf(os.Stderr, "kronosc: unknown backend %q\n", *backend)
		os.Exit(2)
	}

	m, err := ctx.Make(g, root, ir.Null, be, compiler.Flags{OptimizationLevel: *optLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kronosc: compile failed: %v\n", err)
		os.Exit(1)
	}
	sink.Flush()

	fmt.Printf("instance size: %d bytes\n", m.GetSize())
	switch be {
	case compiler.BackendBytecode:
		fmt.Printf("bytecode: %d bytes, %d callee symbols, max stack depth %d\n",
			len(m.Bytecode.Code), len(m.Bytecode.Symbols), m.Bytecode.StackSz)
	case compiler.BackendNative:
		fmt.Printf("native: %d scheduled blocks\n", len(m.Native.Blocks))
	}
}
