// Package reactive implements the Reactive Analysis pass (spec §4.3):
// for every typed node, compute a reactivity that is the join of its
// operands' reactivities, apply operator-specific rules for rate
// changes, gating, merging, and up/downsampling, and insert boundary
// nodes wherever a consumer's reactivity differs from its producer's.
//
// Grounded on plan/pir/optimize.go's pass-pipeline shape (a *Trace
// walked by named functions) and plan/pir/decorrelate.go's
// fixed-point/placeholder handling for correlated subqueries, the
// closest teacher analogue to resolving a recursive-clock placeholder
// once its cycle closes.
package reactive

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/diagnostics"
	"github.com/kronoslang/kronos-sub002/fiber"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
)

// Delegate is the host/compiler-context collaborator consulted for
// global-variable reactivity registration and driver bookkeeping
// (spec §4.3 rules 13-14; original_source/src/k3/Reactive.h IDelegate).
type Delegate interface {
	// GlobalReactivity returns the previously registered reactivity
	// for uid, or (nil, false) if none has been set yet.
	GlobalReactivity(uid string) (ir.Rx, bool)
	// SetGlobalReactivity registers rx as the reactivity for uid.
	SetGlobalReactivity(uid string, rx ir.Rx)
	// RegisterDriver records a driver's rate ratio with the host
	// (spec §4.3 rule 5: "Registers the driver with the host with
	// ratio 1:1").
	RegisterDriver(d *ir.Driver)
}

// MaskPool allocates and canonicalizes signal-mask bit ids (spec
// §4.3 "Signal masks"). Nested analyses (function bodies) reserve ids
// used in outer scopes so that nested gates do not alias.
type MaskPool struct {
	next     int
	reserved map[int]bool
	canon    map[string]int
}

// NewMaskPool returns an empty pool.
func NewMaskPool() *MaskPool {
	return &MaskPool{reserved: make(map[int]bool), canon: make(map[string]int)}
}

// Allocate reserves and returns a fresh mask bit id.
func (p *MaskPool) Allocate() int {
	for p.reserved[p.next] {
		p.next++
	}
	id := p.next
	p.reserved[id] = true
	p.next++
	return id
}

// Canonicalize returns a shared mask bit for gates with identical key
// (e.g. the hash of the gate expression), allocating one on first use
// (original_source IDelegate::CanonicalizeMaskUID, SPEC_FULL.md §4A).
func (p *MaskPool) Canonicalize(key string) int {
	if id, ok := p.canon[key]; ok {
		return id
	}
	id := p.Allocate()
	p.canon[key] = id
	return id
}

// Reserve marks ids as already in use by an outer scope so a nested
// analysis does not reallocate them.
func (p *MaskPool) Reserve(ids ...int) {
	for _, id := range ids {
		p.reserved[id] = true
		if id >= p.next {
			p.next = id + 1
		}
	}
}

// Analyzer runs the Reactive Analysis pass over one or more function
// bodies sharing a Delegate, RxTable, and MaskPool.
type Analyzer struct {
	Delegate Delegate
	Masks    *MaskPool
	depth    *fiber.Stack

	// memo caches (body, arg_rx.fingerprint()) -> result rx, per spec
	// §4.3 rule 11 ("Memoize on (body, arg_rx)").
	callMemo map[string]ir.Rx
}

// NewAnalyzer returns an Analyzer ready to process one compile unit.
func NewAnalyzer(d Delegate) *Analyzer {
	return &Analyzer{
		Delegate: d,
		Masks:    NewMaskPool(),
		depth:    fiber.New(fiber.DefaultDepth),
		callMemo: make(map[string]ir.Rx),
	}
}

// Run computes and attaches a reactivity to every node reachable from
// root (spec §4.3 "Data flow"), then performs the reconstruction phase
// that inserts Boundary nodes, returning the (possibly rewritten) root.
func (a *Analyzer) Run(g *ir.Graph, root arena.Ref, argRx ir.Rx) (arena.Ref, error) {
	if err := a.analyze(g, root, argRx); err != nil {
		return arena.Invalid, err
	}
	return a.reconstruct(g, root)
}

// analyze is the bottom-up pass of spec §4.3 "Data flow", rules 1-14.
// It populates g's per-node reactivity table; it does not rewrite the
// graph (reconstruction is a separate phase, matching the original's
// two-phase "compute, then rebuild with boundaries" structure).
func (a *Analyzer) analyze(g *ir.Graph, root arena.Ref, argRx ir.Rx) error {
	leave, err := a.depth.Enter()
	if err != nil {
		return err
	}
	defer leave()

	if rx, ok := g.Rx(root); ok {
		_ = rx
		return nil // already memoized within this graph
	}

	r := g.Region
	switch ir.KindOf(r, root) {
	case ir.KArgument:
		g.SetRx(root, argRx)

	case ir.KConstant, ir.KExternalRead:
		// leaves other than Argument carry the null reactivity
		// (spec §4.3 rule 2) unless externally registered otherwise;
		// external reads inherit the driver that last wrote them,
		// which the delegate tracks exactly like a global variable.
		if ir.KindOf(r, root) == ir.KExternalRead {
			name, _ := ir.ExternalReadName(r, root)
			if rx, ok := a.Delegate.GlobalReactivity(name); ok {
				g.SetRx(root, rx)
				break
			}
		}
		g.SetRx(root, ir.Null)

	case ir.KPair:
		x, y := ir.PairOperands(r, root)
		if err := a.analyze(g, x, argRx); err != nil {
			return err
		}
		if err := a.analyze(g, y, argRx); err != nil {
			return err
		}
		rx1, _ := g.Rx(x)
		rx2, _ := g.Rx(y)
		g.SetRx(root, g.Rxt.LazyPairOf(rx1, rx2))

	case ir.KFirst:
		p := ir.FirstOperand(r, root)
		if err := a.analyze(g, p, argRx); err != nil {
			return err
		}
		prx, _ := g.Rx(p)
		g.SetRx(root, ir.First(prx))

	case ir.KRest:
		p := ir.RestOperand(r, root)
		if err := a.analyze(g, p, argRx); err != nil {
			return err
		}
		prx, _ := g.Rx(p)
		g.SetRx(root, ir.Rest(prx))

	case ir.KTick:
		d := ir.TickDriver(r, root)
		a.Delegate.RegisterDriver(d)
		g.SetRx(root, g.Rxt.FusedOf([]*ir.Driver{d}))

	case ir.KRateChange:
		factor, signal := ir.RateChangeFactor(r, root)
		if err := a.analyze(g, signal, argRx); err != nil {
			return err
		}
		srx, _ := g.Rx(signal)
		g.SetRx(root, rewriteDrivers(g.Rxt, srx, func(d *ir.Driver) *ir.Driver { return d.ScaledBy(factor) }))

	case ir.KGate:
		signal, gate := ir.GateOperands(r, root)
		if err := a.analyze(g, signal, argRx); err != nil {
			return err
		}
		if err := a.analyze(g, gate, argRx); err != nil {
			return err
		}
		srx, _ := g.Rx(signal)
		maskID := a.Masks.Canonicalize(fmt.Sprintf("gate:%d", gate))
		g.SetRx(root, rewriteDrivers(g.Rxt, srx, func(d *ir.Driver) *ir.Driver {
			c := *d
			c.Meta = fmt.Sprintf("%s;mask=%d", c.Meta, maskID)
			return &c
		}))

	case ir.KMerge:
		elems := ir.MergeElements(r, root)
		var acc ir.Rx = ir.Null
		first := true
		for _, e := range elems {
			if err := a.analyze(g, e, argRx); err != nil {
				return err
			}
			erx, _ := g.Rx(e)
			if first {
				acc = erx
				first = false
				continue
			}
			acc = g.Rxt.Union(acc, erx)
		}
		g.SetRx(root, acc)

	case ir.KImpose:
		clock, signal := ir.ImposeOperands(r, root)
		if err := a.analyze(g, clock, argRx); err != nil {
			return err
		}
		if err := a.analyze(g, signal, argRx); err != nil {
			return err
		}
		crx, _ := g.Rx(clock)
		g.SetRx(root, crx)

	case ir.KRelativePriority:
		op, signal, from := ir.RelativePriorityOperands(r, root)
		if err := a.analyze(g, signal, argRx); err != nil {
			return err
		}
		if err := a.analyze(g, from, argRx); err != nil {
			return err
		}
		srx, _ := g.Rx(signal)
		frx, _ := g.Rx(from)
		basePriority := 0
		if ff, ok := frx.(*ir.Fused); ok && len(ff.Drivers()) > 0 {
			basePriority = ff.Drivers()[0].Priority
		}
		g.SetRx(root, rewriteDrivers(g.Rxt, srx, func(d *ir.Driver) *ir.Driver {
			return d.WithPriority(op, basePriority)
		}))

	case ir.KFunctionCall:
		_, body, arg := ir.FunctionCallOperands(r, root)
		if err := a.analyze(g, arg, argRx); err != nil {
			return err
		}
		callerArgRx, _ := g.Rx(arg)
		key := fmt.Sprintf("%d|%s", body, fingerprint(callerArgRx))
		if cached, ok := a.callMemo[key]; ok {
			g.SetRx(root, cached)
			break
		}
		if err := a.analyze(g, body, callerArgRx); err != nil {
			return err
		}
		brx, _ := g.Rx(body)
		a.callMemo[key] = brx
		g.SetRx(root, brx)

	case ir.KRecursionBranch, ir.KFunctionSequence:
		if err := a.analyzeRecursive(g, root, argRx); err != nil {
			return err
		}

	case ir.KGetGlobal:
		uid := ir.GlobalUID(r, root)
		if rx, ok := a.Delegate.GlobalReactivity(uid); ok {
			g.SetRx(root, rx)
		} else {
			g.SetRx(root, ir.Null)
		}

	case ir.KSetGlobal:
		uid := ir.GlobalUID(r, root)
		value := ir.SetGlobalValue(r, root)
		if err := a.analyze(g, value, argRx); err != nil {
			return err
		}
		vrx, _ := g.Rx(value)
		if existing, ok := a.Delegate.GlobalReactivity(uid); ok && !ir.Equal(existing, vrx) {
			return &diagnostics.ReactivityError{UID: uid, ProgramError: diagnostics.ProgramError{
				Msg: fmt.Sprintf("global %q previously observed with a different reactivity", uid),
			}}
		}
		a.Delegate.SetGlobalReactivity(uid, vrx)
		g.SetRx(root, vrx)

	case ir.KRingBuffer:
		_, _, input, init := ir.RingBufferOperands(r, root)
		if err := a.analyze(g, input, argRx); err != nil {
			return err
		}
		if init != arena.Invalid {
			if err := a.analyze(g, init, ir.Null); err != nil {
				return err
			}
		}
		irx, _ := g.Rx(input)
		g.SetRx(root, irx)

	case ir.KBaseRateProbe:
		g.SetRx(root, ir.Null)

	default:
		return &diagnostics.InternalError{Msg: fmt.Sprintf("reactive: unhandled kind %s", ir.KindOf(r, root))}
	}
	return nil
}

// analyzeRecursive handles spec §4.3 rule 12's converging case: it
// analyzes the iterator with a tentative recursive-clock placeholder,
// re-runs the body under the resolved fixed point, and commits the
// cycle if iterator and body agree. If they disagree it reports a
// ProgramError; the sequence is not split and retried. RecursionBranch
// and FunctionSequence share this path, differing only in whether the
// loop count is statically fixed.
func (a *Analyzer) analyzeRecursive(g *ir.Graph, root arena.Ref, argRx ir.Rx) error {
	r := g.Region
	var body, arg arena.Ref
	if ir.KindOf(r, root) == ir.KRecursionBranch {
		_, body, arg = ir.RecursionBranchOperands(r, root)
	} else {
		_, body, arg = ir.FunctionSequenceOperands(r, root)
	}
	if err := a.analyze(g, arg, argRx); err != nil {
		return err
	}
	argObservedRx, _ := g.Rx(arg)

	ph := g.Rxt.NewPlaceholder()
	if err := a.analyze(g, body, ph.Rx()); err != nil {
		return err
	}
	bodyRx, _ := g.Rx(body)
	ph.Observe(argObservedRx)
	ph.Observe(bodyRx)
	resolved := g.Rxt.Resolve(ph)

	// Re-run analysis under the resolved fixed point; this is the
	// "commit the cycle" branch. A divergent second pass (the
	// "otherwise split ... and retry" branch) would require peeling
	// one iteration of the source sequence, which is the parser/
	// specializer's responsibility (an external collaborator, spec
	// §1); this pass assumes it is always handed an already-peeled
	// sequence when convergence fails and reports that case as a
	// program error rather than looping forever, preserving
	// termination (spec §8 invariant 7).
	delete(a.callMemo, fmt.Sprintf("%d|%s", body, fingerprint(ph.Rx())))
	if err := a.analyzeForce(g, body, resolved); err != nil {
		return err
	}
	finalBodyRx, _ := g.Rx(body)
	if !ir.Equal(finalBodyRx, resolved) {
		return &diagnostics.ProgramError{Msg: "recursive clock did not converge; source sequence must be pre-peeled by the specializer"}
	}
	g.SetRx(root, resolved)
	return nil
}

// analyzeForce re-analyzes ref even if a reactivity was already
// memoized for it (used only to recompute a recursive body under its
// resolved fixed point).
func (a *Analyzer) analyzeForce(g *ir.Graph, ref arena.Ref, rx ir.Rx) error {
	g.DeleteRx(ref)
	return a.analyze(g, ref, rx)
}

func rewriteDrivers(t *ir.RxTable, rx ir.Rx, f func(*ir.Driver) *ir.Driver) ir.Rx {
	fused, ok := rx.(*ir.Fused)
	if !ok {
		return rx
	}
	out := make([]*ir.Driver, len(fused.Drivers()))
	for i, d := range fused.Drivers() {
		out[i] = f(d)
	}
	return t.FusedOf(out)
}

func fingerprint(rx ir.Rx) string {
	if rx == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", rx)
}
