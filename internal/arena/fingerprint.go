package arena

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// memoKey is the fixed siphash key used for memoization fingerprints.
// It does not need to be secret (the fingerprint is never used for
// anything security-sensitive); it only needs to be stable across a
// process so that repeated calls to Fingerprint for the same subgraph
// agree, which is what the per-compiler-instance memoization caches
// in spec §5 rely on ("a subgraph processed twice returns the same
// output object").
var memoKey0, memoKey1 = uint64(0x6b726f6e6f732d31), uint64(0x7375623030322d32)

// Fingerprint returns a 128-bit siphash digest of the node at ref,
// combined with the supplied context salt. Passes use this to key
// memoization caches by (subgraph, context) per spec §5, where
// "context" (e.g. an argument reactivity, or a destination shape) is
// folded in via salt rather than requiring every cache to be keyed on
// a full Ref pair.
func (r *Region) Fingerprint(ref Ref, salt uint64) [16]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.Hash(ref)^salt)
	lo, hi := siphash.Hash128(memoKey0, memoKey1, buf[:])
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], lo)
	binary.LittleEndian.PutUint64(out[8:16], hi)
	return out
}
