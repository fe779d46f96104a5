package types

import "testing"

func TestSizeAlgebra(t *testing.T) {
	v, err := NewVector(TF32, 4)
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	if got, want := Size(v), 16; got != want {
		t.Fatalf("size(vector(f32,4)) = %d, want %d", got, want)
	}

	p := NewPair(TF64, NewPair(TI32, Nil))
	if got, want := Size(p), 12; got != want {
		t.Fatalf("size(pair(f64,pair(i32,nil))) = %d, want %d", got, want)
	}

	av, err := NewArrayView(TI64)
	if err != nil {
		t.Fatalf("NewArrayView: %v", err)
	}
	if got, want := Size(av), 16; got != want {
		t.Fatalf("size(array_view) = %d, want %d", got, want)
	}
}

func TestPairRunLengthCompression(t *testing.T) {
	p := NewPair(TF32, NewPair(TF32, NewPair(TF32, Nil)))
	if p.RunCount() != 3 {
		t.Fatalf("three repeated elements should fold into one run of 3, got run count %d", p.RunCount())
	}
	if !Equal(p.First(), TF32) {
		t.Fatalf("run's element should be f32")
	}
	rest := p.Rest()
	if rest.RunCount() != 2 {
		t.Fatalf("Rest of a run-3 pair should be a run-2 pair, got %d", rest.RunCount())
	}
	restRest := rest.Rest()
	if restRest.RunCount() != 1 {
		t.Fatalf("Rest of a run-2 pair should be a run-1 pair, got %d", restRest.RunCount())
	}
	if !Equal(restRest.Rest(), Nil) {
		t.Fatalf("Rest of a run-1 pair should be the pair's original tail")
	}
}

func TestCountLeading(t *testing.T) {
	p := NewPair(TI32, NewPair(TI32, NewPair(TF64, Nil)))
	if got := CountLeading(p, TI32); got != 2 {
		t.Fatalf("CountLeading(i32) = %d, want 2", got)
	}
	if got := CountLeading(p, TF64); got != 0 {
		t.Fatalf("CountLeading(f64) at head = %d, want 0", got)
	}
}

func TestEqualAndHashAgree(t *testing.T) {
	a := NewPair(TF32, NewPair(TI64, Nil))
	b := NewPair(TF32, NewPair(TI64, Nil))
	if !Equal(a, b) {
		t.Fatalf("structurally identical pair types should be Equal")
	}
	if Hash(a) != Hash(b) {
		t.Fatalf("Equal types must hash equal")
	}
}

func TestLessIsAntisymmetricAcrossTags(t *testing.T) {
	if !Less(TF32, Vector0()) && !Less(Vector0(), TF32) {
		t.Fatalf("distinct-tag types must be ordered one way or the other")
	}
	if Less(TF32, Vector0()) && Less(Vector0(), TF32) {
		t.Fatalf("distinct-tag types must not be ordered both ways")
	}
}

func Vector0() Type {
	v, _ := NewVector(TF32, 2)
	return v
}
