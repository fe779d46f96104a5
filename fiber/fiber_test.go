package fiber

import "testing"

func TestEnterLeaveTracksDepth(t *testing.T) {
	s := New(2)
	leave1, err := s.Enter()
	if err != nil {
		t.Fatalf("first Enter should succeed: %v", err)
	}
	leave2, err := s.Enter()
	if err != nil {
		t.Fatalf("second Enter should succeed: %v", err)
	}
	if _, err := s.Enter(); err == nil {
		t.Fatalf("third Enter should exceed the depth-2 limit")
	}
	leave2()
	if _, err := s.Enter(); err != nil {
		t.Fatalf("Enter after a Leave should succeed again: %v", err)
	}
	leave1()
}

func TestNewDefaultsNonPositiveLimit(t *testing.T) {
	s := New(0)
	if s.limit != DefaultDepth {
		t.Fatalf("New(0) should fall back to DefaultDepth, got %d", s.limit)
	}
}

func TestRunCombinesChildrenBeforeParent(t *testing.T) {
	// A small tree: root -> {a, b}, a -> {}, b -> {}.
	children := map[string][]string{
		"root": {"a", "b"},
		"a":    nil,
		"b":    nil,
	}
	visited := map[string]bool{}
	result, err := Run("root", 16,
		func(n string) []string { return children[n] },
		func(n string, childResults []int) int {
			for _, c := range children[n] {
				if !visited[c] {
					t.Fatalf("combine for %q ran before child %q was visited", n, c)
				}
			}
			visited[n] = true
			sum := 1
			for _, r := range childResults {
				sum += r
			}
			return sum
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != 3 {
		t.Fatalf("expected root result 3 (1 root + 1 a + 1 b), got %d", result)
	}
}

func TestRunReturnsDepthExceeded(t *testing.T) {
	// A deep chain of 10 nodes against a worklist limit of 2.
	next := func(n int) []int {
		if n >= 10 {
			return nil
		}
		return []int{n + 1}
	}
	_, err := Run(0, 2, next, func(n int, r []int) int { return n })
	if err == nil {
		t.Fatalf("expected DepthExceeded for a chain deeper than the limit")
	}
	if _, ok := err.(*DepthExceeded); !ok {
		t.Fatalf("expected *DepthExceeded, got %T", err)
	}
}
