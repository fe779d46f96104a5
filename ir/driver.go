package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

// Driver is a user-visible update source: a named clock carrying
// metadata, a rate multiplier/divisor, and a scheduling priority
// (spec §3.3, GLOSSARY "Driver"). Drivers are compared by ID; Mul/Div
// and Priority travel with a particular *use* of a driver within a
// reactivity set; RateChange and RelativePriority rewrite these per
// spec §4.3 rules 6 and 10.
type Driver struct {
	ID       uuid.UUID
	Name     string
	Meta     string
	Mul, Div int
	Priority int
}

// WellKnownDrivers are the driver identities the original compiler's
// delegate interface exposes as distinguished type descriptors
// (original_source/src/k3/Reactive.h: ArgumentDriver,
// InitializationDriver, SizingDriver, NullDriver, RecursiveDriver).
// They are ordinary *Driver values; no pass in this repository
// compiles under them (Initialize runs the module's one-time
// seed-store chain instead; see SPEC_FULL.md §4A).
var WellKnownDrivers = struct {
	Argument, Initialization, Sizing, Null, Recursive *Driver
}{
	Argument:       &Driver{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Name: "$argument"},
	Initialization: &Driver{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Name: "$init"},
	Sizing:         &Driver{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Name: "$sizing"},
	Null:           &Driver{ID: uuid.MustParse("00000000-0000-0000-0000-000000000004"), Name: "$null"},
	Recursive:      &Driver{ID: uuid.MustParse("00000000-0000-0000-0000-000000000005"), Name: "$recursive"},
}

// NewDriver allocates a fresh user driver with a 1:1 rate ratio and
// default priority, as registered by Tick (spec §4.3 rule 5:
// "Registers the driver with the host with ratio 1:1").
func NewDriver(name, meta string) *Driver {
	return &Driver{ID: uuid.New(), Name: name, Meta: meta, Mul: 1, Div: 1}
}

// ScaledBy returns a copy of d with its rate ratio multiplied (factor
// > 0) or divided (factor < 0) and reduced by GCD, per spec §4.3 rule
// 6 (RateChange).
func (d *Driver) ScaledBy(factor int) *Driver {
	c := *d
	if factor > 0 {
		c.Mul *= factor
	} else if factor < 0 {
		c.Div *= -factor
	}
	g := gcd(c.Mul, c.Div)
	if g > 1 {
		c.Mul /= g
		c.Div /= g
	}
	return &c
}

// WithPriority returns a copy of d with Priority rewritten relative to
// from, per spec §4.3 rule 10 (RelativePriority).
func (d *Driver) WithPriority(op RelPriorityOp, from int) *Driver {
	c := *d
	switch op {
	case Abdicate:
		c.Priority = minInt(from, c.Priority) - 1
	case Cohabit:
		c.Priority = from
	case Share:
		c.Priority = maxInt(from, c.Priority)
	case Supercede:
		c.Priority = maxInt(from, c.Priority) + 1
	}
	return &c
}

// sameDriverUse reports whether two driver uses refer to the same
// identity with identical ratio and priority metadata (used by
// boundary-insertion's "identical metadata and ratio" check, spec
// §4.3).
func sameDriverUse(a, b *Driver) bool {
	return a.ID == b.ID && a.Mul == b.Mul && a.Div == b.Div && a.Priority == b.Priority
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CompareDrivers implements the delegate's OrdinalCompare from the
// original (original_source/src/k3/Reactive.h IDelegate::OrdinalCompare):
// drivers are ordered first by Priority (higher first, since "higher
// priority fires first within one host tick", spec §5), then by ID for
// a stable tiebreak.
func CompareDrivers(a, b *Driver) int {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// Rx is a reactivity: either a fused set of drivers, a lazy pair of
// two independent reactivities, or the null (leaf) reactivity (spec
// §3.3).
type Rx interface {
	// Fused reports whether every value tagged with this reactivity
	// updates atomically (spec §3.3 "A reactivity node is fused
	// when...").
	Fused() bool
	fingerprint() string
}

// leafRx is the "no updates" reactivity of constants (spec §4.3 rule 2).
type leafRx struct{}

func (leafRx) Fused() bool        { return true }
func (leafRx) fingerprint() string { return "leaf" }

// Null is the shared leaf/null reactivity value.
var Null Rx = leafRx{}

// Fused is a canonical, ordered, deduplicated set of driver uses
// (spec §3.3 "Reactivity nodes form a fused set").
type Fused struct {
	drivers []*Driver // sorted by ID, deduplicated
}

func (f *Fused) Fused() bool { return true }
func (f *Fused) fingerprint() string {
	s := ""
	for _, d := range f.drivers {
		s += fmt.Sprintf("%s:%d/%d:%d|", d.ID, d.Mul, d.Div, d.Priority)
	}
	return s
}

// Drivers returns the canonical driver list (do not mutate).
func (f *Fused) Drivers() []*Driver { return f.drivers }

// lazyPair is the reactivity of a Pair whose two sides are not fused
// (spec §4.3 rule 3).
type lazyPair struct {
	a, b Rx
}

func (p *lazyPair) Fused() bool { return false }
func (p *lazyPair) fingerprint() string {
	return "lazy(" + p.a.fingerprint() + "," + p.b.fingerprint() + ")"
}

// First and Rest project a lazy pair reactivity (spec §4.3 rule 4).
func First(r Rx) Rx {
	if lp, ok := r.(*lazyPair); ok {
		return lp.a
	}
	return r
}

func Rest(r Rx) Rx {
	if lp, ok := r.(*lazyPair); ok {
		return lp.b
	}
	return r
}

// placeholderRx is a recursive-clock placeholder (spec §4.3
// "Recursive clocks"): emitted when a cycle is detected during
// bottom-up analysis. No true cycle is ever stored (spec §9 REDESIGN
// FLAGS); the placeholder instead accumulates every reactivity it is
// compared against until the cycle closes.
type placeholderRx struct {
	id         int
	comparedTo []Rx
}

func (p *placeholderRx) Fused() bool         { return true }
func (p *placeholderRx) fingerprint() string { return fmt.Sprintf("placeholder(%d)", p.id) }

// RxTable canonicalizes reactivities (spec §3.3 "Two reactivity nodes
// compare equal iff their canonical driver sets are equal"), acting
// as the hash-cons table for the (small, separate) reactivity
// identity space.
type RxTable struct {
	fused   map[string]*Fused
	pairs   map[string]*lazyPair
	nextPH  int
}

// NewRxTable creates an empty canonicalization table. One RxTable is
// owned per compiler context (analogous to the per-compiler-instance
// memoization caches of spec §5).
func NewRxTable() *RxTable {
	return &RxTable{fused: make(map[string]*Fused), pairs: make(map[string]*lazyPair)}
}

// FusedOf canonicalizes a set of driver uses into a *Fused, sorting
// and deduplicating (spec §3.3 invariant: "A driver may appear at
// most once in any fused set").
func (t *RxTable) FusedOf(drivers []*Driver) *Fused {
	dedup := make(map[uuid.UUID]*Driver, len(drivers))
	for _, d := range drivers {
		if existing, ok := dedup[d.ID]; !ok || !sameDriverUse(existing, d) {
			dedup[d.ID] = d
		}
	}
	out := maps.Values(dedup)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	f := &Fused{drivers: out}
	key := f.fingerprint()
	if existing, ok := t.fused[key]; ok {
		return existing
	}
	t.fused[key] = f
	return f
}

// Union merges the driver sets of two reactivities (spec §4.3 rule 8,
// Merge).
func (t *RxTable) Union(a, b Rx) Rx {
	af, aok := a.(*Fused)
	bf, bok := b.(*Fused)
	if !aok || !bok {
		// a lazy pair or placeholder participating in a union is
		// treated structurally by lazily pairing instead, matching
		// spec §4.3 rule 3's fallback for non-fused operands.
		return t.LazyPairOf(a, b)
	}
	all := append(append([]*Driver{}, af.drivers...), bf.drivers...)
	return t.FusedOf(all)
}

// LazyPairOf canonicalizes a lazy pair, collapsing to a shared fused
// reactivity when both sides are equal (spec §4.3 rule 3: "unless the
// two are equal and fused, in which case reuse rx(a)").
func (t *RxTable) LazyPairOf(a, b Rx) Rx {
	if Equal(a, b) && a.Fused() {
		return a
	}
	key := "lazy(" + a.fingerprint() + "," + b.fingerprint() + ")"
	if existing, ok := t.pairs[key]; ok {
		return existing
	}
	p := &lazyPair{a: a, b: b}
	t.pairs[key] = p
	return p
}

// NewPlaceholder allocates a fresh recursive-clock placeholder.
func (t *RxTable) NewPlaceholder() *placeholderRxHandle {
	t.nextPH++
	return &placeholderRxHandle{rx: &placeholderRx{id: t.nextPH}}
}

// placeholderRxHandle lets the Reactive Analysis pass resolve a
// placeholder once its cycle closes without exposing the
// placeholderRx type outside this package's Rx interface surface.
type placeholderRxHandle struct {
	rx *placeholderRx
}

// Rx returns the placeholder as an Rx value to thread through
// analysis while the cycle is open.
func (h *placeholderRxHandle) Rx() Rx { return h.rx }

// Observe records that the placeholder was compared against other
// during analysis, accumulating the set the fixed point will be
// computed from (spec §4.3 "Collect all driver sets the placeholder
// is compared against").
func (h *placeholderRxHandle) Observe(other Rx) {
	if _, isSelf := other.(*placeholderRx); isSelf {
		return
	}
	h.rx.comparedTo = append(h.rx.comparedTo, other)
}

// Resolve computes the fixed point for the placeholder by unioning
// everything it was compared against and canonicalizing, per spec
// §4.3 "when the cycle closes, replace the placeholder with the
// collected set and canonicalize."
func (t *RxTable) Resolve(h *placeholderRxHandle) Rx {
	if len(h.rx.comparedTo) == 0 {
		return Null
	}
	result := h.rx.comparedTo[0]
	for _, other := range h.rx.comparedTo[1:] {
		result = t.Union(result, other)
	}
	return result
}

// Equal reports whether two reactivities have equal canonical driver
// sets (spec §3.3).
func Equal(a, b Rx) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.fingerprint() == b.fingerprint()
}

// SupersetRatioMatch reports whether every driver in sub appears in
// sup with identical metadata and ratio (spec §4.3 boundary-insertion
// rule: "If every driver in r_u appears in r_n with identical
// metadata and ratio, reuse u").
func SupersetRatioMatch(sub, sup Rx) bool {
	sf, ok1 := sub.(*Fused)
	pf, ok2 := sup.(*Fused)
	if !ok1 || !ok2 {
		return Equal(sub, sup)
	}
	for _, d := range sf.drivers {
		found := false
		for _, e := range pf.drivers {
			if sameDriverUse(d, e) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
