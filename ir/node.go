package ir

import (
	"hash/fnv"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
)

// node is the single concrete representation backing every Kind: a
// tagged union (REDESIGN FLAGS, spec §9) rather than a class per
// kind. Only the fields relevant to node.kind are populated; accessor
// functions below do not check the kind: called against the wrong
// kind they return its unset fields, or panic where they index an
// operand the node does not have.
type node struct {
	kind Kind
	ops  []arena.Ref

	driver    *Driver       // Tick
	factor    int           // RateChange
	relOp     RelPriorityOp // RelativePriority
	loopCount int           // RecursionBranch, FunctionSequence
	uid       string        // GetGlobal, SetGlobal
	typ       types.Type    // Argument, Constant, ExternalRead, GetGlobal
	constant  types.Invariant
	extName   string // ExternalRead
	funcName  string // FunctionCall (diagnostic label only)
	downRx    Rx     // Boundary
	upRx      Rx     // Boundary

	ringLen     int  // RingBuffer
	configurable bool // RingBuffer: length may change at run time
	probeDriver *Driver // BaseRateProbe
}

var _ arena.Node = (*node)(nil)

func (n *node) Kind() uint16        { return uint16(n.kind) }
func (n *node) Operands() []arena.Ref { return n.ops }

func (n *node) WithOperands(ops []arena.Ref) arena.Node {
	c := *n
	c.ops = ops
	return &c
}

func (n *node) LocalHash(seed uint64) uint64 {
	mix := func(v uint64) uint64 {
		seed ^= v
		return seed * 1099511628211
	}
	mixStr := func(s string) uint64 {
		h := fnv.New64a()
		h.Write([]byte(s))
		return mix(h.Sum64())
	}
	switch n.kind {
	case KTick:
		seed = mixStr(n.driver.ID.String())
	case KRateChange:
		seed = mix(uint64(int64(n.factor)))
	case KRelativePriority:
		seed = mix(uint64(n.relOp))
	case KRecursionBranch, KFunctionSequence:
		seed = mix(uint64(int64(n.loopCount)))
	case KGetGlobal, KSetGlobal:
		seed = mixStr(n.uid)
		seed = mix(types.Hash(n.typ))
	case KArgument, KConstant, KExternalRead:
		seed = mix(types.Hash(n.typ))
		if n.kind == KConstant {
			seed = mixStr(n.constant.Rat.String())
		}
		if n.kind == KExternalRead {
			seed = mixStr(n.extName)
		}
	case KBoundary:
		if n.downRx != nil {
			seed = mixStr(n.downRx.(interface{ fingerprint() string }).fingerprint())
		}
		if n.upRx != nil {
			seed = mixStr(n.upRx.(interface{ fingerprint() string }).fingerprint())
		}
	case KRingBuffer:
		seed = mix(uint64(int64(n.ringLen)))
		if n.configurable {
			seed = mix(1)
		}
	case KBaseRateProbe:
		seed = mixStr(n.probeDriver.ID.String())
	}
	return seed
}

func (n *node) LocalEqual(other arena.Node) bool {
	o := other.(*node)
	switch n.kind {
	case KTick:
		return n.driver.ID == o.driver.ID
	case KRateChange:
		return n.factor == o.factor
	case KRelativePriority:
		return n.relOp == o.relOp
	case KRecursionBranch, KFunctionSequence:
		return n.loopCount == o.loopCount
	case KGetGlobal, KSetGlobal:
		return n.uid == o.uid && types.Equal(n.typ, o.typ)
	case KArgument, KExternalRead:
		return types.Equal(n.typ, o.typ) && n.extName == o.extName
	case KConstant:
		return types.Equal(n.typ, o.typ) && n.constant.Equal(o.constant)
	case KBoundary:
		return Equal(n.downRx, o.downRx) && Equal(n.upRx, o.upRx)
	case KRingBuffer:
		return n.ringLen == o.ringLen && n.configurable == o.configurable
	case KBaseRateProbe:
		return n.probeDriver.ID == o.probeDriver.ID
	default:
		return true
	}
}

// --- constructors -----------------------------------------------------

// NewArgument returns the single externally-supplied argument leaf for
// a function body (spec §2 "whose leaves are ... a single argument
// node").
func NewArgument(r *arena.Region, t types.Type) arena.Ref {
	return r.Intern(&node{kind: KArgument, typ: t})
}

// NewConstant returns a compile-time constant leaf.
func NewConstant(r *arena.Region, t types.Type, v types.Invariant) arena.Ref {
	return r.Intern(&node{kind: KConstant, typ: t, constant: v})
}

// NewExternalRead returns a read of an external (host-supplied)
// variable, named per spec §6.2's external-variable-slot table.
func NewExternalRead(r *arena.Region, name string, t types.Type) arena.Ref {
	return r.Intern(&node{kind: KExternalRead, typ: t, extName: name})
}

// NewPair constructs Pair(a, b).
func NewPair(r *arena.Region, a, b arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KPair, ops: []arena.Ref{a, b}})
}

// NewFirst/NewRest project a pair.
func NewFirst(r *arena.Region, p arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KFirst, ops: []arena.Ref{p}})
}
func NewRest(r *arena.Region, p arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KRest, ops: []arena.Ref{p}})
}

// NewTick allocates a fused reactivity node naming a single user
// driver (spec §4.3 rule 5).
func NewTick(r *arena.Region, d *Driver) arena.Ref {
	return r.Intern(&node{kind: KTick, driver: d})
}

// NewRateChange rewrites the drivers underlying signal by factor
// (spec §4.3 rule 6).
func NewRateChange(r *arena.Region, factor int, signal arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KRateChange, factor: factor, ops: []arena.Ref{signal}})
}

// NewGate attaches a gate's signal-mask bit to signal (spec §4.3 rule 7).
func NewGate(r *arena.Region, signal, gate arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KGate, ops: []arena.Ref{signal, gate}})
}

// NewMerge unions the reactivities of elements (spec §4.3 rule 8).
func NewMerge(r *arena.Region, elements ...arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KMerge, ops: elements})
}

// NewImpose forces signal onto clock's reactivity, inserting a
// boundary if needed during reconstruction (spec §4.3 rule 9).
func NewImpose(r *arena.Region, clock, signal arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KImpose, ops: []arena.Ref{clock, signal}})
}

// NewRelativePriority rewrites signal's driver priorities relative to
// from (spec §4.3 rule 10).
func NewRelativePriority(r *arena.Region, op RelPriorityOp, signal, from arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KRelativePriority, relOp: op, ops: []arena.Ref{signal, from}})
}

// NewFunctionCall applies body to arg (spec §4.3 rule 11).
func NewFunctionCall(r *arena.Region, name string, body, arg arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KFunctionCall, funcName: name, ops: []arena.Ref{body, arg}})
}

// NewRecursionBranch models one step of a recursive function, tagged
// with its static loop count (spec §3.2 "Recursive functions are
// represented by explicit recursion-point nodes carrying a loop
// count").
func NewRecursionBranch(r *arena.Region, loopCount int, body, arg arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KRecursionBranch, loopCount: loopCount, ops: []arena.Ref{body, arg}})
}

// NewFunctionSequence models a tail-recursive loop of num_iterations
// steps over a generator body (spec §4.3 rule 12, §4.6.4).
func NewFunctionSequence(r *arena.Region, numIterations int, generator, arg arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KFunctionSequence, loopCount: numIterations, ops: []arena.Ref{generator, arg}})
}

// NewGetGlobal reads a global/UID-addressed variable (spec §4.3 rule
// 13, §4.4 Rewrite).
func NewGetGlobal(r *arena.Region, uid string, t types.Type) arena.Ref {
	return r.Intern(&node{kind: KGetGlobal, uid: uid, typ: t})
}

// NewSetGlobal writes value into the global/UID-addressed slot (spec
// §4.3 rule 14).
func NewSetGlobal(r *arena.Region, uid string, value arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KSetGlobal, uid: uid, ops: []arena.Ref{value}})
}

// NewRingBuffer represents a delay / z-1 operator of length length
// over input. init is the compile-time value the backing slot (or
// every slot of a multi-sample delay line) is seeded with during the
// initialization pass, before the first regular tick ever runs; pass
// arena.Invalid for an implicit all-zero seed. configurable marks
// whether length may change at run time via a configuration slot.
func NewRingBuffer(r *arena.Region, length int, configurable bool, input, init arena.Ref) arena.Ref {
	return r.Intern(&node{kind: KRingBuffer, ringLen: length, configurable: configurable, ops: []arena.Ref{input, init}})
}

// NewBaseRateProbe reads a driver's native rate at compile time; used
// by Code Motion's non-triviality test (spec §4.4 "reactive base-rate
// probe").
func NewBaseRateProbe(r *arena.Region, d *Driver) arena.Ref {
	return r.Intern(&node{kind: KBaseRateProbe, probeDriver: d})
}

// NewBoundary marks a reactivity-domain crossing discovered during
// reconstruction (spec §4.3 "Boundary insertion").
func NewBoundary(r *arena.Region, up arena.Ref, downRx, upRx Rx) arena.Ref {
	return r.Intern(&node{kind: KBoundary, ops: []arena.Ref{up}, downRx: downRx, upRx: upRx})
}

// --- accessors ---------------------------------------------------------

func KindOf(r *arena.Region, ref arena.Ref) Kind { return r.Get(ref).(*node).kind }

// IsNode reports whether ref names a value-domain node in this
// package's arena, as opposed to a ref from another package's own
// tagged-union space (e.g. sidefx's imperative graph) sharing the
// same arena.Region. Callers that walk a ref without first knowing
// which domain produced it (the interpreter stitching the value
// domain and the imperative domain back together at evaluation time)
// use this instead of a blind type assertion.
func IsNode(r *arena.Region, ref arena.Ref) bool {
	if ref == arena.Invalid {
		return false
	}
	_, ok := r.Get(ref).(*node)
	return ok
}

func ArgumentType(r *arena.Region, ref arena.Ref) types.Type  { return r.Get(ref).(*node).typ }
func ConstantValue(r *arena.Region, ref arena.Ref) (types.Type, types.Invariant) {
	n := r.Get(ref).(*node)
	return n.typ, n.constant
}
func ExternalReadName(r *arena.Region, ref arena.Ref) (string, types.Type) {
	n := r.Get(ref).(*node)
	return n.extName, n.typ
}
func TickDriver(r *arena.Region, ref arena.Ref) *Driver { return r.Get(ref).(*node).driver }
func RateChangeFactor(r *arena.Region, ref arena.Ref) (int, arena.Ref) {
	n := r.Get(ref).(*node)
	return n.factor, n.ops[0]
}
func GateOperands(r *arena.Region, ref arena.Ref) (signal, gate arena.Ref) {
	n := r.Get(ref).(*node)
	return n.ops[0], n.ops[1]
}
func MergeElements(r *arena.Region, ref arena.Ref) []arena.Ref { return r.Get(ref).(*node).ops }
func ImposeOperands(r *arena.Region, ref arena.Ref) (clock, signal arena.Ref) {
	n := r.Get(ref).(*node)
	return n.ops[0], n.ops[1]
}
func RelativePriorityOperands(r *arena.Region, ref arena.Ref) (op RelPriorityOp, signal, from arena.Ref) {
	n := r.Get(ref).(*node)
	return n.relOp, n.ops[0], n.ops[1]
}
func FunctionCallOperands(r *arena.Region, ref arena.Ref) (name string, body, arg arena.Ref) {
	n := r.Get(ref).(*node)
	return n.funcName, n.ops[0], n.ops[1]
}
func RecursionBranchOperands(r *arena.Region, ref arena.Ref) (loopCount int, body, arg arena.Ref) {
	n := r.Get(ref).(*node)
	return n.loopCount, n.ops[0], n.ops[1]
}
func FunctionSequenceOperands(r *arena.Region, ref arena.Ref) (numIterations int, generator, arg arena.Ref) {
	n := r.Get(ref).(*node)
	return n.loopCount, n.ops[0], n.ops[1]
}
func GlobalUID(r *arena.Region, ref arena.Ref) string { return r.Get(ref).(*node).uid }
func GlobalType(r *arena.Region, ref arena.Ref) types.Type { return r.Get(ref).(*node).typ }
func SetGlobalValue(r *arena.Region, ref arena.Ref) arena.Ref { return r.Get(ref).(*node).ops[0] }
func BoundaryOperands(r *arena.Region, ref arena.Ref) (up arena.Ref, downRx, upRx Rx) {
	n := r.Get(ref).(*node)
	return n.ops[0], n.downRx, n.upRx
}

// PairOperands/FirstOperand/RestOperand decompose structural nodes.
func PairOperands(r *arena.Region, ref arena.Ref) (a, b arena.Ref) {
	n := r.Get(ref).(*node)
	return n.ops[0], n.ops[1]
}
func FirstOperand(r *arena.Region, ref arena.Ref) arena.Ref { return r.Get(ref).(*node).ops[0] }
func RestOperand(r *arena.Region, ref arena.Ref) arena.Ref  { return r.Get(ref).(*node).ops[0] }

func RingBufferOperands(r *arena.Region, ref arena.Ref) (length int, configurable bool, input, init arena.Ref) {
	n := r.Get(ref).(*node)
	return n.ringLen, n.configurable, n.ops[0], n.ops[1]
}

// NonTrivial reports whether the node at ref contains at least one
// function call, ring buffer, global variable read, or reactive
// base-rate probe at its own level (not recursively), the threshold
// Code Motion uses to decide whether an expression is worth tracking
// for hoisting (spec §4.4 "Analysis").
func NonTrivial(r *arena.Region, ref arena.Ref) bool {
	switch r.Get(ref).(*node).kind {
	case KFunctionCall, KRingBuffer, KGetGlobal, KBaseRateProbe:
		return true
	default:
		return false
	}
}
