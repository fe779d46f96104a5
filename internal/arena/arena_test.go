package arena

import "testing"

type leafNode struct {
	tag uint16
	val int
}

func (n *leafNode) Kind() uint16                 { return n.tag }
func (n *leafNode) Operands() []Ref              { return nil }
func (n *leafNode) WithOperands(_ []Ref) Node    { return n }
func (n *leafNode) LocalHash(seed uint64) uint64 { return seed ^ uint64(n.val) }
func (n *leafNode) LocalEqual(other Node) bool   { return n.val == other.(*leafNode).val }

type pairNode struct {
	ops []Ref
}

func (n *pairNode) Kind() uint16                 { return 1 }
func (n *pairNode) Operands() []Ref              { return n.ops }
func (n *pairNode) WithOperands(ops []Ref) Node  { return &pairNode{ops: ops} }
func (n *pairNode) LocalHash(seed uint64) uint64 { return seed }
func (n *pairNode) LocalEqual(_ Node) bool       { return true }

func TestInternDeduplicatesStructurallyEqualNodes(t *testing.T) {
	r := newRegion(nil)
	a := r.Intern(&leafNode{tag: 0, val: 42})
	b := r.Intern(&leafNode{tag: 0, val: 42})
	if a != b {
		t.Fatalf("structurally equal nodes should intern to the same Ref, got %v and %v", a, b)
	}
	c := r.Intern(&leafNode{tag: 0, val: 43})
	if a == c {
		t.Fatalf("distinct nodes should not collide to the same Ref")
	}
}

func TestHashStableAfterIntern(t *testing.T) {
	r := newRegion(nil)
	ref := r.Intern(&leafNode{tag: 0, val: 7})
	h1 := r.Hash(ref)
	r.Intern(&leafNode{tag: 0, val: 8})
	h2 := r.Hash(ref)
	if h1 != h2 {
		t.Fatalf("a node's hash must not change once interned")
	}
}

func TestPopCopiesLiveNodesAndRehashes(t *testing.T) {
	a := New()
	root := a.Current().Intern(&leafNode{tag: 0, val: 1})
	child := a.Push()
	leaf := child.Intern(&leafNode{tag: 0, val: 2})
	pair := child.Intern(&pairNode{ops: []Ref{root, leaf}})

	live := a.Pop(pair)
	if len(live) != 1 {
		t.Fatalf("expected one promoted ref, got %d", len(live))
	}
	promoted := live[0]
	n := a.Current().Get(promoted)
	if n.Kind() != 1 {
		t.Fatalf("expected promoted node to still be a pairNode")
	}
}

func TestPopPanicsOnRootRegion(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Pop on the root region to panic")
		}
	}()
	New().Pop()
}

func TestFingerprintDeterministic(t *testing.T) {
	r := newRegion(nil)
	ref := r.Intern(&leafNode{tag: 0, val: 99})
	f1 := r.Fingerprint(ref, 1)
	f2 := r.Fingerprint(ref, 1)
	if f1 != f2 {
		t.Fatalf("fingerprint must be deterministic for the same ref and salt")
	}
	f3 := r.Fingerprint(ref, 2)
	if f1 == f3 {
		t.Fatalf("different salts should (almost certainly) produce different fingerprints")
	}
}
