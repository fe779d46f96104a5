package reactive

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
)

// reconstruct rebuilds the DAG bottom-up, inserting Boundary nodes at
// every "real" consuming edge (as opposed to the purely structural
// Pair/First/Rest edges, which never force a clock-domain crossing by
// themselves) whose operand's reactivity differs from the consumer's,
// per spec §4.3 "Boundary insertion":
//
//	If r_u = r_n, reuse u.
//	If every driver in r_u appears in r_n with identical metadata and
//	ratio, reuse u.
//	Otherwise insert Boundary(up=u, downstream_rx=r_n, upstream_rx=r_u).
func (a *Analyzer) reconstruct(g *ir.Graph, root arena.Ref) (arena.Ref, error) {
	memo := make(map[arena.Ref]arena.Ref)
	var rec func(arena.Ref) arena.Ref
	r := g.Region

	wrap := func(consumerRx ir.Rx, operand arena.Ref) arena.Ref {
		newOperand := rec(operand)
		opRx, _ := g.Rx(operand)
		if ir.Equal(opRx, consumerRx) {
			return newOperand
		}
		if ir.SupersetRatioMatch(opRx, consumerRx) {
			return newOperand
		}
		b := ir.NewBoundary(r, newOperand, consumerRx, opRx)
		g.SetRx(b, consumerRx)
		return b
	}

	rec = func(ref arena.Ref) arena.Ref {
		if ref == arena.Invalid {
			return arena.Invalid
		}
		if out, ok := memo[ref]; ok {
			return out
		}
		rx, _ := g.Rx(ref)
		var out arena.Ref
		switch ir.KindOf(r, ref) {
		case ir.KArgument, ir.KConstant, ir.KExternalRead, ir.KTick, ir.KBaseRateProbe:
			out = ref

		case ir.KPair:
			x, y := ir.PairOperands(r, ref)
			out = ir.NewPair(r, rec(x), rec(y))

		case ir.KFirst:
			out = ir.NewFirst(r, rec(ir.FirstOperand(r, ref)))
		case ir.KRest:
			out = ir.NewRest(r, rec(ir.RestOperand(r, ref)))

		case ir.KRateChange:
			factor, signal := ir.RateChangeFactor(r, ref)
			out = ir.NewRateChange(r, factor, wrap(rx, signal))

		case ir.KGate:
			signal, gate := ir.GateOperands(r, ref)
			out = ir.NewGate(r, wrap(rx, signal), rec(gate))

		case ir.KMerge:
			elems := ir.MergeElements(r, ref)
			newElems := make([]arena.Ref, len(elems))
			for i, e := range elems {
				newElems[i] = wrap(rx, e)
			}
			out = ir.NewMerge(r, newElems...)

		case ir.KImpose:
			clock, signal := ir.ImposeOperands(r, ref)
			out = ir.NewImpose(r, rec(clock), wrap(rx, signal))

		case ir.KRelativePriority:
			op, signal, from := ir.RelativePriorityOperands(r, ref)
			out = ir.NewRelativePriority(r, op, wrap(rx, signal), rec(from))

		case ir.KFunctionCall:
			name, body, arg := ir.FunctionCallOperands(r, ref)
			out = ir.NewFunctionCall(r, name, rec(body), rec(arg))

		case ir.KRecursionBranch:
			n, body, arg := ir.RecursionBranchOperands(r, ref)
			out = ir.NewRecursionBranch(r, n, rec(body), rec(arg))

		case ir.KFunctionSequence:
			n, gen, arg := ir.FunctionSequenceOperands(r, ref)
			out = ir.NewFunctionSequence(r, n, rec(gen), rec(arg))

		case ir.KGetGlobal:
			out = ref

		case ir.KSetGlobal:
			uid := ir.GlobalUID(r, ref)
			value := ir.SetGlobalValue(r, ref)
			out = ir.NewSetGlobal(r, uid, wrap(rx, value))

		case ir.KRingBuffer:
			length, configurable, input, init := ir.RingBufferOperands(r, ref)
			out = ir.NewRingBuffer(r, length, configurable, wrap(rx, input), rec(init))

		case ir.KBoundary:
			up, downRx, upRx := ir.BoundaryOperands(r, ref)
			out = ir.NewBoundary(r, rec(up), downRx, upRx)

		default:
			out = ref
		}
		g.SetRx(out, rx)
		memo[ref] = out
		return out
	}

	newRoot := rec(root)
	return newRoot, nil
}
