package sidefx

// StateLayout is the module's persistent-state bump allocator: every
// ring buffer, global-variable slot, and subroutine-local state block
// gets a fixed byte offset into one contiguous state buffer that
// survives across evaluation calls (ring buffers and recursive state
// must retain their value between triggers; everything else computed
// during a trigger lives on the native stack instead).
//
// Grounded on vm/ssastack.go's slot-allocation bookkeeping (fixed byte
// offsets handed out from a bump cursor, deduplicated by a stable key)
// repurposed from VM operand-stack slots to module persistent state.
type StateLayout struct {
	cursor int64
	slots  map[string]int64
	sizes  map[string]int64
	order  []string
}

func NewStateLayout() *StateLayout {
	return &StateLayout{slots: make(map[string]int64), sizes: make(map[string]int64)}
}

const stateAlign = 16

func alignUp(v, align int64) int64 {
	return (v + align - 1) / align * align
}

// Alloc reserves size bytes and returns their offset. Each call gets a
// fresh, non-overlapping region; SlotFor calls it on a key's first
// use.
func (s *StateLayout) Alloc(size int64) int64 {
	off := s.cursor
	s.cursor = alignUp(s.cursor+size, stateAlign)
	return off
}

// SlotFor returns the offset for a named slot (a global variable's
// UID), allocating it on first use and returning the same offset on
// every subsequent call with the same key -- the state-layout
// equivalent of the arena's hash-consing, keyed by UID instead of
// structural hash since two SetGlobalVariable writers to the same UID
// must share one slot by construction (spec §4.3 rule 14's "same-UID
// reads and writes always observe the same state").
func (s *StateLayout) SlotFor(key string, size int64) int64 {
	if off, ok := s.slots[key]; ok {
		return off
	}
	off := s.Alloc(size)
	s.slots[key] = off
	s.sizes[key] = size
	s.order = append(s.order, key)
	return off
}

// Size is the total number of persistent-state bytes the compiled
// module must allocate (spec §6.4 "GetSize").
func (s *StateLayout) Size() int64 { return s.cursor }

// SymbolOffset resolves a named slot's offset for the compiled
// module's symbol table (spec §6.4 "GetSymbolOffset"), reporting
// false if key was never allocated.
func (s *StateLayout) SymbolOffset(key string) (int64, bool) {
	off, ok := s.slots[key]
	return off, ok
}

// Keys returns every named slot in allocation order, for diagnostic
// dumps and the compiled module's symbol enumeration.
func (s *StateLayout) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
