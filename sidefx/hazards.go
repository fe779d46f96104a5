package sidefx

import (
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/ir"
)

// access describes one hazard candidate's effect on persistent state,
// extracted by baseOf so ResolveHazards can reason about aliasing
// instead of trusting emission order alone (spec §4.6.5's "a read of
// a state slot must never be scheduled ahead of the write that
// logically precedes it in source order").
//
// base identifies a StateLayout allocation: since StateLayout.Alloc
// and SlotFor share one monotonic bump cursor and never hand out
// overlapping ranges, the integer slot offset is itself a sound
// base identity -- two accesses through the same offset always touch
// the same allocation, and two different offsets never overlap.
// universal marks a node whose true footprint this level cannot
// bound (IMemCpy/ISubroutine/IStateMark move or execute an unknown
// amount of state), so it is conservatively treated as aliasing
// everything.
type access struct {
	ref       arena.Ref
	writeBase int
	hasWrite  bool
	readBase  int
	hasRead   bool
	universal bool
}

// baseOf classifies one imperative node's effect on persistent state.
func baseOf(r *arena.Region, ref arena.Ref) access {
	n, ok := r.Get(ref).(*inode)
	if !ok {
		return access{ref: ref}
	}
	switch n.kind {
	case IStore:
		a := access{ref: ref}
		if slot, ok := slotBase(r, n.ops[0]); ok {
			a.writeBase, a.hasWrite = slot, true
		} else {
			a.universal = true
		}
		if len(n.ops) > 1 {
			if slot, ok := slotBase(r, n.ops[1]); ok {
				a.readBase, a.hasRead = slot, true
			}
		}
		return a

	case ILoad:
		if slot, ok := slotBase(r, n.ops[0]); ok {
			return access{ref: ref, readBase: slot, hasRead: true}
		}
		return access{ref: ref, universal: true}

	case IBoundaryBuf:
		return access{ref: ref, writeBase: n.slot, hasWrite: true, readBase: n.slot, hasRead: true}

	case IMemCpy, ISubroutine, IStateMark:
		return access{ref: ref, universal: true}

	default:
		return access{ref: ref}
	}
}

// slotBase reports the persistent-state slot a value expression reads
// through, when it is a direct IGetSlot accessor.
func slotBase(r *arena.Region, ref arena.Ref) (int, bool) {
	n, ok := r.Get(ref).(*inode)
	if !ok || n.kind != IGetSlot {
		return 0, false
	}
	return n.slot, true
}

// aliases reports whether a and b could touch the same bytes: either
// is universal, or they share a write/write, write/read, or read/write
// base (the three orderings a data hazard can arise from; read/read
// never conflicts).
func aliases(a, b access) bool {
	if a.universal || b.universal {
		return true
	}
	if a.hasWrite && b.hasWrite && a.writeBase == b.writeBase {
		return true
	}
	if a.hasWrite && b.hasRead && a.writeBase == b.readBase {
		return true
	}
	if a.hasRead && b.hasWrite && a.readBase == b.writeBase {
		return true
	}
	return false
}

// ResolveHazards orders hazard-chain nodes by data dependency rather
// than bare emission order (spec §4.6.5): every write is always
// sequenced (a protector for whatever alias queries later in the list
// may need to run after it); a read is swallowed into the chain only
// when some other access in the list could alias it -- i.e. a write
// to the same base is present, so the read must be pinned ahead of
// (or behind, per emission order) that write -- and is otherwise left
// out entirely (pass-through), since nothing downstream can observe
// its timing. Because hazards is already in program-emission order,
// folding swallowed accesses into the chain in that same order gives
// the read-before-write edge directly: a read appended before its
// aliasing write lands earlier in the chain, and vice versa.
//
// Grounded on plan/pir's filterelim.go/projectelim.go passes needing
// an explicit "barrier" concept to stop eliminations from reordering
// past a side-effecting boundary; the alias query here plays the same
// role projectelim.go's column-liveness check does, but over state
// slots instead of projected columns.
func ResolveHazards(g *ir.Graph, hazards []arena.Ref) arena.Ref {
	r := g.Region

	var accesses []access
	seen := map[arena.Ref]bool{}
	for _, h := range hazards {
		if h == arena.Invalid || seen[h] {
			continue
		}
		seen[h] = true
		a := baseOf(r, h)
		if !a.hasWrite && !a.hasRead && !a.universal {
			continue
		}
		accesses = append(accesses, a)
	}

	swallowed := func(i int) bool {
		if accesses[i].hasWrite || accesses[i].universal {
			return true
		}
		for j, other := range accesses {
			if j == i {
				continue
			}
			if (other.hasWrite || other.universal) && aliases(accesses[i], other) {
				return true
			}
		}
		return false
	}

	var chain arena.Ref = arena.Invalid
	for i, a := range accesses {
		if !swallowed(i) {
			continue
		}
		if chain == arena.Invalid {
			chain = a.ref
			continue
		}
		chain = r.Intern(&inode{kind: IDeps, ops: []arena.Ref{chain, a.ref}})
	}
	return chain
}
