package sidefx

import (
	"github.com/kronoslang/kronos-sub002/elision"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
)

// Result is the Side-Effect Compiler's output for one compiled
// function: its imperative graph's result accessor, the dependency
// chain every call into it must run before reading the result, and
// whether it touches the module's persistent state at all (a
// stateless function can be re-evaluated any number of times with no
// observable difference).
type Result struct {
	Value    DataSource
	Deps     arena.Ref
	Inits    arena.Ref // one-time seed stores, run once by Initialize before any trigger
	HasState bool
	Subs     map[string]*Subroutine // every compiled callee, by symbol name
}

// Run is the Side-Effect Compiler's entry point (spec §4.6.3's pass
// outline): run Copy Elision from root with an empty destination (a
// top-level result always returns by value to the caller, so the
// outermost node gets no destination of its own), then lower the
// resulting DAG into imperative form against the supplied persistent
// StateLayout.
func Run(g *ir.Graph, root arena.Ref, state *StateLayout) (Result, error) {
	elided := elision.Run(g, root, elision.Dest{Nil: true})
	c := NewCompiler(g, elided, state)
	val, err := c.Compile(root)
	if err != nil {
		return Result{}, err
	}
	deps := ResolveHazards(g, c.Hazards())
	inits := ResolveHazards(g, c.Inits())
	return Result{Value: val, Deps: deps, Inits: inits, HasState: c.hasStatefulCall, Subs: c.Subroutines()}, nil
}
