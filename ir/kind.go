// Package ir defines the typed, directed acyclic dataflow graph
// shared by the Reactive Analysis, Code Motion, and Copy Elision
// passes (spec §3.2, §4.3-§4.5). Every node is hash-consed through
// internal/arena; node kinds are a closed tagged-union enum rather
// than a class hierarchy with virtual dispatch, per the REDESIGN
// FLAGS in spec §9 ("replace with a tagged-union node enum plus
// per-variant operand accessors").
package ir

// Kind enumerates every value-level DAG node variety.
type Kind uint16

const (
	InvalidKind Kind = iota
	KArgument
	KConstant
	KExternalRead
	KPair
	KFirst
	KRest
	KTick
	KRateChange
	KGate
	KMerge
	KImpose
	KRelativePriority
	KFunctionCall
	KRecursionBranch
	KFunctionSequence
	KGetGlobal
	KSetGlobal
	KBoundary
	KRingBuffer
	KBaseRateProbe
)

func (k Kind) String() string {
	switch k {
	case KArgument:
		return "Argument"
	case KConstant:
		return "Constant"
	case KExternalRead:
		return "ExternalRead"
	case KPair:
		return "Pair"
	case KFirst:
		return "First"
	case KRest:
		return "Rest"
	case KTick:
		return "Tick"
	case KRateChange:
		return "RateChange"
	case KGate:
		return "Gate"
	case KMerge:
		return "Merge"
	case KImpose:
		return "Impose"
	case KRelativePriority:
		return "RelativePriority"
	case KFunctionCall:
		return "FunctionCall"
	case KRecursionBranch:
		return "RecursionBranch"
	case KFunctionSequence:
		return "FunctionSequence"
	case KGetGlobal:
		return "GetGlobalVariable"
	case KSetGlobal:
		return "SetGlobalVariable"
	case KBoundary:
		return "Boundary"
	case KRingBuffer:
		return "RingBuffer"
	case KBaseRateProbe:
		return "BaseRateProbe"
	default:
		return "Invalid"
	}
}

// RelPriorityOp enumerates the RelativePriority opcodes of spec §4.3
// rule 10.
type RelPriorityOp uint8

const (
	Abdicate RelPriorityOp = iota
	Cohabit
	Share
	Supercede
)
