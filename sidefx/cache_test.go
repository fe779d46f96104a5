package sidefx

import "testing"

func TestCacheRoundTrip(t *testing.T) {
	layout := NewStateLayout()
	layout.SlotFor("acc", 8)
	layout.SlotFor("ring|1", 32)

	blob, err := EncodeCache(layout)
	if err != nil {
		t.Fatalf("EncodeCache: %v", err)
	}
	slots, err := DecodeCache(blob)
	if err != nil {
		t.Fatalf("DecodeCache: %v", err)
	}
	restored := Restore(slots)

	if restored.Size() != layout.Size() {
		t.Fatalf("restored size %d != original %d", restored.Size(), layout.Size())
	}
	for _, key := range layout.Keys() {
		want, _ := layout.SymbolOffset(key)
		got, ok := restored.SymbolOffset(key)
		if !ok || got != want {
			t.Fatalf("slot %q: want offset %d, got %d (ok=%v)", key, want, got, ok)
		}
	}
}
