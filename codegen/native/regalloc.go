package native

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

// Reg is a virtual register assigned to one imperative-graph ref. The
// allocator below is a simple linear-scan over the block's single
// pass (no loops to iterate: a Schedule's blocks are already
// topologically ordered), sufficient because this backend does not
// target a fixed physical register file -- the eventual native
// assembler (out of scope for this package; it is owned by whatever
// host toolchain this module is embedded in) consumes virtual
// registers and performs its own physical allocation.
type Reg int

// Allocation assigns a virtual register to every ref a Schedule's
// blocks reference, reusing a register once its last consumer has run
// (spec §4.7 "native emission performs straightforward linear-scan
// allocation since block schedules are already in dependency order").
type Allocation struct {
	RegOf    map[arena.Ref]Reg
	NumRegs  int
}

// Allocate computes an Allocation over every block in s.
func Allocate(region *arena.Region, s *Schedule) *Allocation {
	regOf := make(map[arena.Ref]Reg)
	lastUse := make(map[arena.Ref]int)
	var order []arena.Ref

	pos := 0
	for _, b := range s.Blocks {
		for _, ref := range b.Ops {
			order = append(order, ref)
			pos++
			for _, op := range sidefx.NodeAt(region, ref).Ops {
				lastUse[op] = pos
			}
		}
	}

	free := []Reg{}
	next := Reg(0)
	expireBy := make(map[int][]arena.Ref)
	for i, ref := range order {
		for _, dead := range expireBy[i] {
			free = append(free, regOf[dead])
		}
		var r Reg
		if len(free) > 0 {
			r = free[len(free)-1]
			free = free[:len(free)-1]
		} else {
			r = next
			next++
		}
		regOf[ref] = r
		if last, ok := lastUse[ref]; ok {
			expireBy[last] = append(expireBy[last], ref)
		}
	}
	return &Allocation{RegOf: regOf, NumRegs: int(next)}
}
