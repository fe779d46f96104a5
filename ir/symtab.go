package ir

import "sort"

// SymbolTable maps UIDs to slot indices within the module's state
// buffer (spec §3.4 "The symbol table maps UIDs to slot indices and
// is consulted by both the compiler and the host at run time", GLOSSARY
// "Slot"). It is append-only; compiler.Context holds one, but no pass
// in this repository consults it (the Side-Effect Compiler assigns
// global slots through sidefx.StateLayout).
type SymbolTable struct {
	index map[string]int
	order []string
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{index: make(map[string]int)}
}

// Slot returns the slot index for uid, allocating a fresh one (in
// registration order) on first use.
func (t *SymbolTable) Slot(uid string) int {
	if i, ok := t.index[uid]; ok {
		return i
	}
	i := len(t.order)
	t.index[uid] = i
	t.order = append(t.order, uid)
	return i
}

// Lookup reports the slot for uid without allocating one.
func (t *SymbolTable) Lookup(uid string) (int, bool) {
	i, ok := t.index[uid]
	return i, ok
}

// Len returns the number of registered slots.
func (t *SymbolTable) Len() int { return len(t.order) }

// UIDs returns registered UIDs in slot order.
func (t *SymbolTable) UIDs() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Sorted returns UID/slot pairs ordered by UID, used when the
// compiler needs a deterministic diagnostic dump independent of
// registration order.
func (t *SymbolTable) Sorted() []struct {
	UID  string
	Slot int
} {
	out := make([]struct {
		UID  string
		Slot int
	}, 0, len(t.order))
	for uid, slot := range t.index {
		out = append(out, struct {
			UID  string
			Slot int
		}{uid, slot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
