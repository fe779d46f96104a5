// Package native implements the native Target Emission backend (spec
// §4.7): rather than an interpreted instruction stream, it schedules
// the imperative graph into a sequence of basic blocks keyed by
// reactive mask group, merging values produced under different masks
// at a gate boundary with an explicit phi-style Merge block, and
// memoizing subroutine bodies by (body, signature) exactly once (the
// compiled-once-per-shape discipline sidefx.Compiler already applies
// one level up is mirrored here for the lower-level block schedule
// itself, since two distinct call sites sharing a compiled Subroutine
// must also share one compiled Block sequence).
//
// Grounded on vm's assembler.go/exprcompile.go pairing (a linear list
// of typed "ops" grouped into blocks keyed by a predicate mask, with
// an explicit merge op joining two predecessor blocks) and
// plan/pir/optimize.go's fixed small pipeline of
// rewrite-until-fixed-point passes, adapted here to a fixed (not
// iterated) three-stage native lowering pipeline: schedule, allocate
// registers, emit.
package native

import (
	"fmt"
	"sort"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

// BlockKind distinguishes a straight-line block from a Merge block
// joining its mask-group predecessors (one per fused schedule).
type BlockKind int

const (
	BlockStraightLine BlockKind = iota
	BlockMerge
)

// Block is one scheduled unit of the native lowering: an ordered list
// of imperative-graph refs to execute, keyed by the mask group whose
// driver set must be active for the block to run.
type Block struct {
	Kind    BlockKind
	Mask    string // canonicalized reactive mask group key (opaque, used only for equality/ordering)
	Ops     []arena.Ref
	Preds   []int // predecessor block indices (BlockMerge has one per schedule passed to ScheduleFused)
}

// Schedule is the ordered basic-block list produced by scheduling one
// compiled function's hazard chain.
type Schedule struct {
	Blocks []Block
	Result arena.Ref
}

// Scheduler groups a hazard chain's nodes into per-mask-group blocks.
// In this backend every node already carries the single reactive mask
// group of its enclosing function (the Side-Effect Compiler runs
// per-trigger, so all of a Schedule's nodes share one mask group by
// construction); the Merge block kind is reserved for the case where
// Target Emission is asked to fuse two triggers' schedules into one
// compiled entry point (spec §4.7 "distinct trigger functions may be
// fused into a single native entry point when profitable").
type Scheduler struct {
	region *arena.Region
}

func NewScheduler(region *arena.Region) *Scheduler {
	return &Scheduler{region: region}
}

// Schedule lowers one hazard chain (already linearized by
// sidefx.ResolveHazards) and a result accessor into a Schedule. The
// chain is flattened into one straight-line block: true basic-block
// splitting only becomes observable once two or more trigger
// schedules are fused (ScheduleFused below), which this compiler
// supports but does not require.
func (s *Scheduler) Schedule(deps, result arena.Ref, mask string) *Schedule {
	var ops []arena.Ref
	seen := make(map[arena.Ref]bool)
	var walk func(arena.Ref)
	walk = func(ref arena.Ref) {
		if ref == arena.Invalid || seen[ref] {
			return
		}
		seen[ref] = true
		n := sidefx.NodeAt(s.region, ref)
		if n.Kind == sidefx.IDeps {
			walk(n.Ops[0])
			walk(n.Ops[1])
			return
		}
		ops = append(ops, ref)
	}
	walk(deps)
	return &Schedule{
		Blocks: []Block{{Kind: BlockStraightLine, Mask: mask, Ops: ops}},
		Result: result,
	}
}

// ScheduleFused merges two independently scheduled triggers sharing no
// data dependency into one Schedule with a trailing Merge block, used
// when Target Emission decides two triggers are profitable to run from
// a single native entry point (spec §4.7). Each input schedule's own
// block list is kept intact and ordered by ascending mask key so the
// result is deterministic across compiles of the same source.
func ScheduleFused(schedules ...*Schedule) *Schedule {
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].Blocks[0].Mask < schedules[j].Blocks[0].Mask
	})
	var blocks []Block
	preds := make([]int, 0, len(schedules))
	for _, sc := range schedules {
		base := len(blocks)
		for _, b := range sc.Blocks {
			shifted := b
			shifted.Preds = make([]int, len(b.Preds))
			for i, p := range b.Preds {
				shifted.Preds[i] = p + base
			}
			blocks = append(blocks, shifted)
		}
		preds = append(preds, base+len(sc.Blocks)-1)
	}
	blocks = append(blocks, Block{Kind: BlockMerge, Mask: "fused", Preds: preds})
	return &Schedule{Blocks: blocks, Result: arena.Invalid}
}

// Verify reports an InternalError-shaped error if the schedule's Merge
// blocks reference predecessor indices out of range -- the invariant a
// corrupt fusion would violate.
func Verify(s *Schedule) error {
	for i, b := range s.Blocks {
		if b.Kind != BlockMerge {
			continue
		}
		for _, p := range b.Preds {
			if p < 0 || p >= i {
				return fmt.Errorf("native: block %d merges from out-of-range predecessor %d", i, p)
			}
		}
	}
	return nil
}
