package sidefx

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CacheBlob is a compressed snapshot of a StateLayout's slot table: the
// (UID, offset, size) triples in allocation order. A driver that
// recompiles the same graph repeatedly (e.g. an IDE's live-reload
// loop) can stash this blob keyed by the graph's structural hash and
// skip re-deriving slot offsets when the hash is unchanged, the same
// compressed-block-cache trick the teacher applies to repeatedly
// re-read columnar blocks.
type CacheBlob []byte

// EncodeCache serializes and compresses layout's slot table.
func EncodeCache(layout *StateLayout) (CacheBlob, error) {
	var raw bytes.Buffer
	keys := layout.Keys()
	if err := binary.Write(&raw, binary.LittleEndian, int64(len(keys))); err != nil {
		return nil, err
	}
	for _, k := range keys {
		off, _ := layout.SymbolOffset(k)
		size := layout.sizes[k]
		if err := writeString(&raw, k); err != nil {
			return nil, err
		}
		if err := binary.Write(&raw, binary.LittleEndian, off); err != nil {
			return nil, err
		}
		if err := binary.Write(&raw, binary.LittleEndian, size); err != nil {
			return nil, err
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("sidefx: opening zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil), nil
}

// DecodeCache reverses EncodeCache, reconstructing the (key, offset,
// size) triples without re-running allocation. The caller is
// responsible for checking the cache's graph-hash key still matches
// before trusting these offsets.
func DecodeCache(blob CacheBlob) ([]CachedSlot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("sidefx: opening zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("sidefx: decompressing cache blob: %w", err)
	}

	buf := bytes.NewReader(raw)
	var n int64
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]CachedSlot, 0, n)
	for i := int64(0); i < n; i++ {
		key, err := readString(buf)
		if err != nil {
			return nil, err
		}
		var off, size int64
		if err := binary.Read(buf, binary.LittleEndian, &off); err != nil {
			return nil, err
		}
		if err := binary.Read(buf, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		out = append(out, CachedSlot{Key: key, Offset: off, Size: size})
	}
	return out, nil
}

// CachedSlot is one decoded (UID, offset, size) triple.
type CachedSlot struct {
	Key    string
	Offset int64
	Size   int64
}

// Restore repopulates an empty StateLayout from a decoded cache,
// preserving the original allocation order and cursor position.
func Restore(slots []CachedSlot) *StateLayout {
	s := NewStateLayout()
	for _, sl := range slots {
		s.slots[sl.Key] = sl.Offset
		s.sizes[sl.Key] = sl.Size
		s.order = append(s.order, sl.Key)
		if end := sl.Offset + sl.Size; end > s.cursor {
			s.cursor = alignUp(end, stateAlign)
		}
	}
	return s
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, int64(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(buf *bytes.Reader) (string, error) {
	var n int64
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := buf.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
