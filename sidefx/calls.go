package sidefx

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/elision"
	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

// compileCall lowers a FunctionCall: compile the argument in the
// caller's frame, memoize the callee body by (body ref, argument
// layout, whether a destination was threaded in), and emit a
// Subroutine invocation (spec's equivalent of the generic function-
// pointer-with-closure call, lowered here to a single direct-call
// imperative node since every callee is known at compile time --
// there is no runtime dispatch in this language).
func (c *Compiler) compileCall(ref arena.Ref, dest elision.Dest) (DataSource, error) {
	r := c.g.Region
	name, body, arg := ir.FunctionCallOperands(r, ref)
	argDS, err := c.Compile(arg)
	if err != nil {
		return DataSource{}, err
	}

	key := fmt.Sprintf("%d|%d|%v", body, types.Hash(argDS.Layout), !dest.Nil)
	sub, ok := c.subs[key]
	if !ok {
		sub, err = c.compileSubroutine(name, body, argDS, dest)
		if err != nil {
			return DataSource{}, err
		}
		c.subs[key] = sub
	}

	resultAcc := sub.Result.Accessor
	if !dest.Nil {
		resultAcc = dest.Ref
	}
	call := r.Intern(&inode{
		kind:       ISubroutine,
		ops:        []arena.Ref{argDS.Accessor, resultAcc},
		symbol:     sub.Name,
		sideEffect: sub.HasState,
		hasLocal:   sub.HasState,
	})
	c.hazards = append(c.hazards, call)
	if sub.HasState {
		c.hasStatefulCall = true
	}
	return DataSource{Accessor: call, Layout: sub.Result.Layout}, nil
}

// compileSubroutine compiles a callee body exactly once per memoized
// shape, using a fresh per-call Compiler so that its internal
// bookkeeping (the local hazards list, the per-ref memo) doesn't leak
// across call sites, while sharing the module-wide StateLayout and
// elision map (ring buffers and globals reached from the callee must
// resolve to the same persistent slots regardless of which call site
// reaches them).
func (c *Compiler) compileSubroutine(name string, body arena.Ref, argDS DataSource, callerDest elision.Dest) (*Subroutine, error) {
	inner := NewCompiler(c.g, c.elided, c.state)
	argRef := argumentRefOf(c.g, body)
	inner.memo[argRef] = argDS

	// A memoized subroutine body is compiled exactly once regardless of
	// how many call sites share its shape, so it cannot bake in any one
	// caller's destination; each call site's own MemCpy (writeToDest)
	// carries the result into that caller's destination instead.
	result, err := inner.Compile(body)
	if err != nil {
		return nil, err
	}
	deps := ResolveHazards(c.g, inner.Hazards())
	c.inits = append(c.inits, inner.Inits()...)
	for key, nested := range inner.subs {
		c.subs[key] = nested
	}
	if name == "" {
		name = fmt.Sprintf("$fn.%d", body)
	}
	return &Subroutine{
		Name:     name,
		Body:     body,
		ArgRef:   argRef,
		Arg:      argDS,
		Result:   result,
		Deps:     deps,
		HasState: len(inner.state.order) > 0 || inner.hasStatefulCall,
	}, nil
}

func argumentRefOf(g *ir.Graph, body arena.Ref) arena.Ref {
	var found arena.Ref
	g.Walk(body, func(ref arena.Ref) {
		if ir.KindOf(g.Region, ref) == ir.KArgument {
			found = ref
		}
	})
	return found
}

// compileRecursion lowers a RecursionBranch: a statically bounded
// unrolled chain of loopCount applications of body to arg, each
// iteration reusing the same compiled Subroutine so the unrolled chain
// costs one compile, not loopCount compiles (spec §4.6.4's
// "RecursionBranch(loop_count, body, arg)... lowered to loop_count
// unrolled applications sharing one compiled body").
func (c *Compiler) compileRecursion(ref arena.Ref, dest elision.Dest) (DataSource, error) {
	r := c.g.Region
	loopCount, body, arg := ir.RecursionBranchOperands(r, ref)
	cur, err := c.Compile(arg)
	if err != nil {
		return DataSource{}, err
	}
	var sub *Subroutine
	for i := 0; i < loopCount; i++ {
		key := fmt.Sprintf("rec|%d|%v", body, types.Size(cur.Layout))
		s, ok := c.subs[key]
		if !ok {
			s, err = c.compileSubroutine("", body, cur, elision.Dest{Nil: true})
			if err != nil {
				return DataSource{}, err
			}
			c.subs[key] = s
		}
		sub = s
		call := r.Intern(&inode{kind: ISubroutine, ops: []arena.Ref{cur.Accessor, sub.Result.Accessor}, symbol: sub.Name, sideEffect: sub.HasState})
		c.hazards = append(c.hazards, call)
		if sub.HasState {
			c.hasStatefulCall = true
		}
		cur = DataSource{Accessor: call, Layout: sub.Result.Layout}
	}
	if sub == nil {
		return cur, nil
	}
	return cur, nil
}

// compileSequence lowers a FunctionSequence (a tail-recursive loop of
// numIterations steps over a generator), emitting one IStateMark per
// iteration's local state so that a generator that itself allocates a
// RingBuffer gets one physical slot per unrolled iteration rather than
// aliasing them (spec §4.6.4 "FunctionSequence ... each of the
// numIterations steps gets its own local-state allocation unless the
// generator is stateless").
func (c *Compiler) compileSequence(ref arena.Ref, dest elision.Dest) (DataSource, error) {
	r := c.g.Region
	numIterations, gen, arg := ir.FunctionSequenceOperands(r, ref)
	cur, err := c.Compile(arg)
	if err != nil {
		return DataSource{}, err
	}
	for i := 0; i < numIterations; i++ {
		mark := r.Intern(&inode{kind: IStateMark, offset: int64(i)})
		c.hazards = append(c.hazards, mark)
		key := fmt.Sprintf("seq|%d|%d|%v", gen, i, types.Size(cur.Layout))
		s, ok := c.subs[key]
		if !ok {
			s, err = c.compileSubroutine("", gen, cur, elision.Dest{Nil: true})
			if err != nil {
				return DataSource{}, err
			}
			c.subs[key] = s
		}
		call := r.Intern(&inode{kind: ISubroutine, ops: []arena.Ref{cur.Accessor, s.Result.Accessor}, symbol: s.Name, sideEffect: s.HasState})
		c.hazards = append(c.hazards, call)
		if s.HasState {
			c.hasStatefulCall = true
		}
		cur = DataSource{Accessor: call, Layout: s.Result.Layout}
	}
	return cur, nil
}

// compileSetGlobal lowers a SetGlobalVariable write: the value is
// compiled directly into the global's own slot as its destination
// (spec §4.4's hoisted synthetic globals and spec §4.3 rule 14's
// explicit globals share this same lowering), and the store is
// recorded as a hazard so ResolveHazards can order it ahead of any
// reader.
func (c *Compiler) compileSetGlobal(ref arena.Ref) (DataSource, error) {
	r := c.g.Region
	uid := ir.GlobalUID(r, ref)
	value := ir.SetGlobalValue(r, ref)
	valDS, err := c.Compile(value)
	if err != nil {
		return DataSource{}, err
	}
	size := int64(types.Size(valDS.Layout))
	slot := c.state.SlotFor(uid, size)
	slotAcc := r.Intern(&inode{kind: IGetSlot, slot: int(slot), uid: uid})
	store := r.Intern(&inode{kind: IStore, ops: []arena.Ref{slotAcc, valDS.Accessor}, size: size})
	c.hazards = append(c.hazards, store)
	c.hasStatefulCall = true
	return DataSource{Accessor: slotAcc, Layout: valDS.Layout}, nil
}

// compileRingBuffer allocates a length-deep delay line in persistent
// state (a single slot when length==1, otherwise a circular buffer
// addressed by a module-owned write index) and emits the per-trigger
// "capture the old value, then write input at the current index" pair
// as hazards (spec §4.6.4 "RingBuffer(len, input) -- a single-slot
// register when len==1; a circular buffer with a wraparound write
// index otherwise").
//
// A delay line's output is the slot's value as it stood *before* this
// trigger's write, never the value just written. Target Emission
// (codegen/bytecode.Assembler.Assemble, codegen/native) always runs
// every hazard first and only then lazily resolves the result
// accessor, so returning the mutable slot itself as the output would
// let the final read observe the write that was meant to happen
// "after" it. The fix is to capture the pre-write value into a
// dedicated snapshot slot -- written only by this capture, never by
// the regular per-trigger write -- ahead of the real store, and
// return the snapshot as the output DataSource; a read of a never-
// rewritten slot is safe to resolve lazily at any later point.
func (c *Compiler) compileRingBuffer(ref arena.Ref) (DataSource, error) {
	r := c.g.Region
	length, configurable, input, init := ir.RingBufferOperands(r, ref)
	inDS, err := c.Compile(input)
	if err != nil {
		return DataSource{}, err
	}
	elemSize := int64(types.Size(inDS.Layout))
	key := fmt.Sprintf("ring|%d", ref)
	bufSlot := c.state.SlotFor(key, elemSize*int64(length))
	buf := r.Intern(&inode{kind: IGetSlot, slot: int(bufSlot), uid: key})
	c.hasStatefulCall = true

	if init != arena.Invalid {
		initDS, err := c.Compile(init)
		if err != nil {
			return DataSource{}, err
		}
		// Seeding runs once, under the module's Initialize entry point
		// (compiler.Module.Initialize), never on a regular trigger, so
		// it is tracked separately from the per-trigger hazard chain.
		seed := r.Intern(&inode{kind: IStore, ops: []arena.Ref{buf, initDS.Accessor}, size: elemSize * int64(length)})
		c.inits = append(c.inits, seed)
	}

	snapSlot := c.state.SlotFor(key+".prev", elemSize)
	snap := r.Intern(&inode{kind: IGetSlot, slot: int(snapSlot), uid: key + ".prev"})

	if length == 1 && !configurable {
		capture := r.Intern(&inode{kind: IStore, ops: []arena.Ref{snap, buf}, size: elemSize})
		c.hazards = append(c.hazards, capture)
		store := r.Intern(&inode{kind: IStore, ops: []arena.Ref{buf, inDS.Accessor}, size: elemSize})
		c.hazards = append(c.hazards, store)
		return DataSource{Accessor: snap, Layout: inDS.Layout}, nil
	}

	// TODO: the write index never advances here -- this IR has no
	// arithmetic node to express "idx = (idx+1) mod length" in the
	// value domain, only structural/foreign-call operators, so a
	// configurable or length>1 delay line only ever addresses slot 0.
	// The capture-before-write ordering below is still correct for
	// whatever index is in play once that gap is closed.
	idxSlot := c.state.SlotFor(key+".idx", 8)
	idx := r.Intern(&inode{kind: IGetSlot, slot: int(idxSlot), uid: key + ".idx"})
	read := r.Intern(&inode{kind: ILoad, ops: []arena.Ref{buf, idx}, size: elemSize})
	capture := r.Intern(&inode{kind: IStore, ops: []arena.Ref{snap, read}, size: elemSize})
	c.hazards = append(c.hazards, capture)
	write := r.Intern(&inode{kind: IStore, ops: []arena.Ref{buf, inDS.Accessor, idx}, size: elemSize})
	c.hazards = append(c.hazards, write)
	return DataSource{Accessor: snap, Layout: inDS.Layout}, nil
}

// compileBoundary lowers a reactivity Boundary (spec §4.3's crossing
// marker) into a BoundaryBuffer: the upstream value is cached in
// persistent state on its own tick and read back unconditionally on
// the downstream tick, since the two clocks no longer run in lockstep
// once a boundary was found necessary.
func (c *Compiler) compileBoundary(ref, up arena.Ref) (DataSource, error) {
	r := c.g.Region
	upDS, err := c.Compile(up)
	if err != nil {
		return DataSource{}, err
	}
	key := fmt.Sprintf("boundary|%d", ref)
	size := int64(types.Size(upDS.Layout))
	slot := c.state.SlotFor(key, size)
	acc := r.Intern(&inode{kind: IBoundaryBuf, ops: []arena.Ref{upDS.Accessor}, slot: int(slot), size: size})
	c.hazards = append(c.hazards, acc)
	c.hasStatefulCall = true
	return DataSource{Accessor: acc, Layout: upDS.Layout}, nil
}
