package reactive

import (
	"testing"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

type fakeDelegate struct {
	globals    map[string]ir.Rx
	registered []*ir.Driver
}

func newFakeDelegate() *fakeDelegate {
	return &fakeDelegate{globals: make(map[string]ir.Rx)}
}

func (d *fakeDelegate) GlobalReactivity(uid string) (ir.Rx, bool) {
	rx, ok := d.globals[uid]
	return rx, ok
}

func (d *fakeDelegate) SetGlobalReactivity(uid string, rx ir.Rx) {
	d.globals[uid] = rx
}

func (d *fakeDelegate) RegisterDriver(dr *ir.Driver) {
	d.registered = append(d.registered, dr)
}

func TestAnalyzePropagatesArgumentReactivity(t *testing.T) {
	r := arena.New().Current()
	arg := ir.NewArgument(r, types.TF32)
	g := ir.NewGraph(r, arg)
	a := NewAnalyzer(newFakeDelegate())

	driverRx := g.Rxt.FusedOf([]*ir.Driver{ir.WellKnownDrivers.Argument})
	if err := a.analyze(g, arg, driverRx); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	rx, ok := g.Rx(arg)
	if !ok || !ir.Equal(rx, driverRx) {
		t.Fatalf("Argument node should carry the argument reactivity bound by its caller")
	}
}

func TestAnalyzeRegistersTickDriver(t *testing.T) {
	r := arena.New().Current()
	d := ir.NewDriver("clock", "")
	tick := ir.NewTick(r, d)
	g := ir.NewGraph(r, tick)
	delegate := newFakeDelegate()
	a := NewAnalyzer(delegate)

	if err := a.analyze(g, tick, ir.Null); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(delegate.registered) != 1 || delegate.registered[0].ID != d.ID {
		t.Fatalf("Tick should register exactly its own driver with the delegate")
	}
}

func TestReconstructInsertsBoundaryOnRateMismatch(t *testing.T) {
	r := arena.New().Current()
	d := ir.NewDriver("clock", "")
	tick := ir.NewTick(r, d)
	root := ir.NewRateChange(r, 2, tick)
	g := ir.NewGraph(r, root)
	a := NewAnalyzer(newFakeDelegate())

	out, err := a.Run(g, root, ir.Null)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ir.KindOf(r, out) != ir.KRateChange {
		t.Fatalf("reconstructed root should still be a RateChange node")
	}
	_, signal := ir.RateChangeFactor(r, out)
	if ir.KindOf(r, signal) != ir.KBoundary {
		t.Fatalf("a rate-scaled signal whose ratio no longer matches its producer should be wrapped in a Boundary, got kind %v", ir.KindOf(r, signal))
	}
}

func TestReconstructReusesMatchingReactivity(t *testing.T) {
	r := arena.New().Current()
	arg := ir.NewArgument(r, types.TF32)
	root := ir.NewPair(r, arg, arg)
	g := ir.NewGraph(r, root)
	a := NewAnalyzer(newFakeDelegate())

	out, err := a.Run(g, root, ir.Null)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	x, _ := ir.PairOperands(r, out)
	if ir.KindOf(r, x) == ir.KBoundary {
		t.Fatalf("a Pair's structural operand edges should never force a Boundary by themselves")
	}
}

func TestMaskPoolCanonicalizeIsStable(t *testing.T) {
	p := NewMaskPool()
	a := p.Canonicalize("gate:1")
	b := p.Canonicalize("gate:1")
	if a != b {
		t.Fatalf("Canonicalize should return the same id for the same key")
	}
	c := p.Canonicalize("gate:2")
	if c == a {
		t.Fatalf("distinct keys should canonicalize to distinct ids")
	}
}
