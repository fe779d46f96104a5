// Package fiber provides a bounded-depth iterative worklist standing
// in for the original compiler's cooperative fiber-stack recursion
// trick (spec §5 "Stack growth": "recursive descent into deeply
// nested function calls is performed on a separately allocated fiber
// stack"). Spec §9 REDESIGN FLAGS names the portable replacement
// directly: "a bounded-depth iterative worklist over the DAG with
// explicit continuation frames." Grounded on plan/pir/decorrelate.go's
// explicit recursion-guard counters in the teacher, generalized into a
// reusable helper.
package fiber

import "fmt"

// DefaultDepth bounds compile-time recursion depth independent of Go's
// dynamically growing goroutine stacks, so that a program's observable
// compile-time behavior (whether it terminates, spec §8 invariant 7)
// does not depend on host stack size.
const DefaultDepth = 4096

// DepthExceeded is returned when a Run's continuation stack would
// exceed its configured depth limit.
type DepthExceeded struct {
	Limit int
}

func (e *DepthExceeded) Error() string {
	return fmt.Sprintf("fiber: recursion depth exceeded limit of %d", e.Limit)
}

// Frame is one entry of an explicit continuation stack: Resume is
// called once all of a frame's children have produced results, and
// returns this frame's own result.
type Frame[T any] struct {
	// Children enumerates the sub-computations this frame depends on.
	Children []T
	// Resume is invoked with the results of visiting each of Children,
	// in order, and returns this frame's result.
	Resume func(childResults []any) any
}

// Stack is an explicit continuation-frame worklist with a bounded
// depth; reactive.Analyzer uses it to bound its recursion depth.
type Stack struct {
	limit int
	depth int
}

// New returns a Stack bounded at limit (use DefaultDepth when unsure).
func New(limit int) *Stack {
	if limit <= 0 {
		limit = DefaultDepth
	}
	return &Stack{limit: limit}
}

// Enter increments the current depth, returning DepthExceeded if the
// limit would be exceeded; call the returned Leave (if err is nil)
// when the recursive step completes.
func (s *Stack) Enter() (leave func(), err error) {
	if s.depth >= s.limit {
		return func() {}, &DepthExceeded{Limit: s.limit}
	}
	s.depth++
	return func() { s.depth-- }, nil
}

// Run drives a depth-first, post-order evaluation of a DAG described
// by expand (given a node, returns its children) and combine (given a
// node and its already-evaluated children's results, returns this
// node's result), using an explicit worklist rather than Go call-stack
// recursion, bounded by limit.
func Run[N comparable, R any](root N, limit int, expand func(N) []N, combine func(N, []R) R) (R, error) {
	if limit <= 0 {
		limit = DefaultDepth
	}
	type frame struct {
		node     N
		children []N
		results  []R
		next     int
	}
	var zero R
	memo := make(map[N]R)
	done := make(map[N]bool)
	stack := []*frame{{node: root, children: expand(root)}}
	for len(stack) > 0 {
		if len(stack) > limit {
			return zero, &DepthExceeded{Limit: limit}
		}
		top := stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			r := combine(top.node, top.results)
			memo[top.node] = r
			done[top.node] = true
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.results = append(parent.results, r)
			} else {
				return r, nil
			}
			continue
		}
		child := top.children[top.next]
		top.next++
		if done[child] {
			top.results = append(top.results, memo[child])
			continue
		}
		stack = append(stack, &frame{node: child, children: expand(child)})
	}
	return zero, nil
}
