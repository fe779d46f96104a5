// Package bytecode implements the stack-machine Target Emission
// backend (spec §4.7's bytecode target): a linear, interpretable
// instruction stream with a flat operand stack, chosen when the host
// requests portability over peak throughput (the Backend argument of
// compiler.Context.Make selects between the native and bytecode
// backends).
//
// Grounded on the teacher's vm package: a register/stack hybrid
// bytecode with a fixed opcode table and a simple one-pass assembler
// emitting into a byte buffer (vm/bytecode.go's opcode enum,
// vm/assembler.go's emit-and-patch pattern for forward jumps).
package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

// Op is the stack machine's opcode.
type Op byte

const (
	OpNop Op = iota
	OpLoadArg
	OpLoadConst
	OpLoadSlot  // push state[slot:slot+size]
	OpStoreSlot // pop top, store at state[slot:slot+size]
	OpMemCpy    // pop src, dst; copy size bytes
	OpCall      // call subroutine by symbol table index
	OpLoadIdx   // push state[slot + idx*size]
	OpStoreIdx  // pop top, idx; store at state[slot + idx*size]
	OpDup
	OpPop
	OpRet
)

func (o Op) String() string {
	names := [...]string{"nop", "load.arg", "load.const", "load.slot", "store.slot",
		"memcpy", "call", "load.idx", "store.idx", "dup", "pop", "ret"}
	if int(o) < len(names) {
		return names[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

// Program is one compiled subroutine's linear instruction stream plus
// the symbol table of callees it invokes (vm/bytecode.go's Prog,
// generalized from SQL operators to arbitrary named subroutines).
type Program struct {
	Code    []byte
	Symbols []string // indices referenced by OpCall operands
	StackSz int       // max operand-stack depth reached, for stack pre-allocation
}

// Assembler lowers a sidefx imperative graph into a Program by
// emitting instructions in dependency order (the order ResolveHazards
// already fixed) and tracking operand-stack depth so codegen can
// pre-size the interpreter's stack once at module load rather than
// growing it per call.
type Assembler struct {
	g       *arena.Region
	code    []byte
	symbols []string
	symIdx  map[string]int
	depth   int
	maxDepth int
	memo    map[arena.Ref]bool // emitted-once guard for shared (hash-consed) sub-expressions
}

func NewAssembler(g *arena.Region) *Assembler {
	return &Assembler{g: g, symIdx: make(map[string]int), memo: make(map[arena.Ref]bool)}
}

func (as *Assembler) push(op Op, operands ...int64) {
	as.code = append(as.code, byte(op))
	for _, v := range operands {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		as.code = append(as.code, buf[:]...)
	}
}

func (as *Assembler) enter() {
	as.depth++
	if as.depth > as.maxDepth {
		as.maxDepth = as.depth
	}
}
func (as *Assembler) leave(n int) { as.depth -= n }

func (as *Assembler) symbol(name string) int64 {
	if i, ok := as.symIdx[name]; ok {
		return int64(i)
	}
	i := len(as.symbols)
	as.symbols = append(as.symbols, name)
	as.symIdx[name] = i
	return int64(i)
}

// Assemble walks the imperative graph rooted at deps (the
// ResolveHazards dependency chain) followed by value (the result
// accessor), appending instructions for each hazard node and finally
// pushing the result, and returns the finished Program.
func (as *Assembler) Assemble(deps arena.Ref, value sidefx.DataSource) (*Program, error) {
	if deps != arena.Invalid {
		if err := as.emit(deps); err != nil {
			return nil, err
		}
	}
	if err := as.emitLoad(value.Accessor); err != nil {
		return nil, err
	}
	as.push(OpRet)
	return &Program{Code: as.code, Symbols: as.symbols, StackSz: as.maxDepth}, nil
}
