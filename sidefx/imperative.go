// Package sidefx implements the Side-Effect Compiler (spec §4.6): it
// lowers a value-returning DAG (after Copy Elision has annotated it
// with destinations) into an imperative graph of pointer offsets,
// loads, stores, MemCpy, buffer allocations, subroutine calls, and
// dependency-ordering markers, and allocates the module's state
// layout.
//
// Grounded on vm/exprcompile.go (compiling an expression tree into the
// VM's imperative operations, including buffer/stack allocation
// decisions) and vm/bytecode.go's operand/stack-slot model for "value
// vs. pointer-backed data source".
package sidefx

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

// IKind enumerates imperative-graph node varieties (spec §4.6.1). It
// is a separate, smaller tagged-union space from ir.Kind: the
// imperative graph is a different representation produced by
// lowering, not a further annotation of the value DAG.
type IKind uint16

const (
	IInvalid IKind = iota
	IOffset        // pointer + constant byte offset
	ILoad          // read a scalar from a DataSource
	IStore         // write a scalar/buffer into a DataSource
	IMemCpy        // bulk copy between two DataSources
	IAllocStack    // stack-allocated buffer
	IAllocZeroStack
	IAllocModule // module-state-backed buffer (persists across calls)
	IAllocEmpty  // zero-size placeholder buffer
	ISubroutine  // a compiled FunctionCall
	IStateMark   // subroutine-local state allocation marker (bump pointer)
	IGetSlot     // slot-indirection load (global variable / ring buffer)
	IBoundaryBuf // write-on-upstream-tick/read-on-downstream-tick cache
	IMultiDispatch
	IForeignCall
	IDeps // explicit dependency-ordering marker
	ISelect
)

func (k IKind) String() string {
	names := map[IKind]string{
		IOffset: "Offset", ILoad: "Load", IStore: "Store", IMemCpy: "MemCpy",
		IAllocStack: "AllocStack", IAllocZeroStack: "AllocZeroStack", IAllocModule: "AllocModule",
		IAllocEmpty: "AllocEmpty", ISubroutine: "Subroutine", IStateMark: "StateMark",
		IGetSlot: "GetSlot", IBoundaryBuf: "BoundaryBuffer", IMultiDispatch: "MultiDispatch",
		IForeignCall: "ForeignFunction", IDeps: "Deps", ISelect: "Select",
	}
	if n, ok := names[k]; ok {
		return n
	}
	return "Invalid"
}

// inode is the imperative graph's tagged-union node (mirrors ir.node's
// approach, REDESIGN FLAGS spec §9).
type inode struct {
	kind IKind
	ops  []arena.Ref

	offset     int64      // IOffset
	size       int64      // IAlloc*, ILoad, IStore, IMemCpy
	slot       int        // IGetSlot
	uid        string     // IGetSlot (diagnostic)
	numBranches int       // IMultiDispatch
	symbol     string     // IForeignCall
	sideEffect bool       // IForeignCall, ISubroutine
	hasLocal   bool       // ISubroutine: callee has_local_state
	typ        types.Type // ILoad/IStore scalar type
}

var _ arena.Node = (*inode)(nil)

func (n *inode) Kind() uint16          { return uint16(n.kind) }
func (n *inode) Operands() []arena.Ref { return n.ops }
func (n *inode) WithOperands(ops []arena.Ref) arena.Node {
	c := *n
	c.ops = ops
	return &c
}
func (n *inode) LocalHash(seed uint64) uint64 {
	mix := func(v uint64) uint64 { seed ^= v; return seed * 1099511628211 }
	switch n.kind {
	case IOffset:
		seed = mix(uint64(n.offset))
	case ILoad, IStore, IMemCpy, IAllocStack, IAllocZeroStack, IAllocModule:
		seed = mix(uint64(n.size))
	case IGetSlot:
		seed = mix(uint64(n.slot))
	case IMultiDispatch:
		seed = mix(uint64(n.numBranches))
	case IForeignCall:
		for _, c := range n.symbol {
			seed = mix(uint64(c))
		}
	}
	return seed
}
func (n *inode) LocalEqual(other arena.Node) bool {
	o := other.(*inode)
	switch n.kind {
	case IOffset:
		return n.offset == o.offset
	case ILoad, IStore, IMemCpy, IAllocStack, IAllocZeroStack, IAllocModule:
		return n.size == o.size
	case IGetSlot:
		return n.slot == o.slot
	case IMultiDispatch:
		return n.numBranches == o.numBranches
	case IForeignCall:
		return n.symbol == o.symbol && n.sideEffect == o.sideEffect
	default:
		return true
	}
}

// Node is a read-only view onto one imperative-graph node, returned by
// NodeAt for the Target Emission backends (codegen/bytecode,
// codegen/native) to introspect without reaching into this package's
// unexported node representation.
type Node struct {
	Kind        IKind
	Ops         []arena.Ref
	Offset      int64
	Size        int64
	Slot        int
	UID         string
	NumBranches int
	Symbol      string
	SideEffect  bool
	HasLocal    bool
	Type        types.Type
}

// IsNode reports whether ref names an imperative-graph node produced
// by this package, as opposed to a value-domain ref from package ir
// sharing the same arena.Region.
func IsNode(region *arena.Region, ref arena.Ref) bool {
	if ref == arena.Invalid {
		return false
	}
	_, ok := region.Get(ref).(*inode)
	return ok
}

// NodeAt resolves ref within region into a Node view. It panics if ref
// does not name an imperative-graph node (i.e. it is a value-DAG ref
// from package ir, not one produced by this package).
func NodeAt(region *arena.Region, ref arena.Ref) Node {
	n := region.Get(ref).(*inode)
	return Node{
		Kind: n.kind, Ops: n.ops, Offset: n.offset, Size: n.size, Slot: n.slot,
		UID: n.uid, NumBranches: n.numBranches, Symbol: n.symbol,
		SideEffect: n.sideEffect, HasLocal: n.hasLocal, Type: n.typ,
	}
}

// DataSource pairs a pointer expression (accessor) with a type-shaped
// layout describing what lives there (spec §4.6.2). A by-value result
// (a scalar carried in a register rather than behind a pointer) is
// represented by Accessor == arena.Invalid.
type DataSource struct {
	Accessor   arena.Ref
	Layout     types.Type
	Referenced bool // an outer Reference wrapper is present
}

// Reference and Dereference are compile-time operations that compose:
// reference(dereference(x)) == x (spec §4.6.2).
func Reference(d DataSource) DataSource {
	c := d
	c.Referenced = true
	return c
}

func Dereference(d DataSource) DataSource {
	c := d
	c.Referenced = false
	return c
}

// ByValue reports whether d represents a register value rather than a
// pointer-backed location.
func (d DataSource) ByValue() bool { return d.Accessor == arena.Invalid }
