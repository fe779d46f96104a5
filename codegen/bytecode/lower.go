package bytecode

import (
	"fmt"

	"github.com/kronoslang/kronos-sub002/internal/arena"
	"github.com/kronoslang/kronos-sub002/sidefx"
)

// emit lowers a hazard-chain node (and its operand chain) for side
// effect only, leaving the operand stack exactly as it found it.
func (as *Assembler) emit(ref arena.Ref) error {
	if ref == arena.Invalid || as.memo[ref] {
		return nil
	}
	as.memo[ref] = true
	n := sidefx.NodeAt(as.g, ref)
	switch n.Kind {
	case sidefx.IDeps:
		if err := as.emit(n.Ops[0]); err != nil {
			return err
		}
		return as.emit(n.Ops[1])

	case sidefx.IStore:
		if err := as.emitLoad(n.Ops[0]); err != nil {
			return err
		}
		if err := as.emitLoad(n.Ops[1]); err != nil {
			return err
		}
		if len(n.Ops) == 3 { // indexed store (ring buffer)
			if err := as.emitLoad(n.Ops[2]); err != nil {
				return err
			}
			as.push(OpStoreIdx, n.Size)
			as.leave(3)
			return nil
		}
		as.push(OpStoreSlot, n.Size)
		as.leave(2)
		return nil

	case sidefx.IMemCpy:
		if err := as.emitLoad(n.Ops[0]); err != nil {
			return err
		}
		if err := as.emitLoad(n.Ops[1]); err != nil {
			return err
		}
		as.push(OpMemCpy, n.Size)
		as.leave(2)
		return nil

	case sidefx.ISubroutine:
		if err := as.emitLoad(n.Ops[0]); err != nil {
			return err
		}
		if err := as.emitLoad(n.Ops[1]); err != nil {
			return err
		}
		as.push(OpCall, as.symbol(n.Symbol))
		as.leave(2)
		return nil

	case sidefx.IBoundaryBuf:
		if err := as.emitLoad(n.Ops[0]); err != nil {
			return err
		}
		as.push(OpStoreSlot, n.Size)
		as.leave(1)
		return nil

	case sidefx.IStateMark:
		as.push(OpNop)
		return nil

	default:
		return fmt.Errorf("bytecode: %s is not a hazard-chain node", n.Kind)
	}
}

// emitLoad pushes the value named by ref onto the operand stack.
func (as *Assembler) emitLoad(ref arena.Ref) error {
	if ref == arena.Invalid {
		as.push(OpLoadConst, 0)
		as.enter()
		return nil
	}
	if !sidefx.IsNode(as.g, ref) {
		// a bare value-domain ref (Argument/Constant/ExternalRead):
		// treat it as an opaque immediate load keyed by its own Ref,
		// resolved by the caller's constant/argument table at module
		// load time.
		as.push(OpLoadArg, int64(ref))
		as.enter()
		return nil
	}
	n := sidefx.NodeAt(as.g, ref)
	switch n.Kind {
	case sidefx.IGetSlot:
		as.push(OpLoadSlot, int64(n.Slot))
		as.enter()

	case sidefx.IOffset:
		if len(n.Ops) == 1 {
			if err := as.emitLoad(n.Ops[0]); err != nil {
				return err
			}
			return nil
		}
		// A composite (split) Pair accessor. The
		// bytecode target has no struct-by-value stack cell, so a
		// composite load pushes its first leg only and relies on the
		// caller (writeToDest's MemCpy already having materialized the
		// pair into one physical buffer) rather than carrying two
		// pointers through one stack slot.
		return as.emitLoad(n.Ops[0])

	case sidefx.ILoad:
		if err := as.emitLoad(n.Ops[0]); err != nil {
			return err
		}
		if len(n.Ops) == 2 {
			if err := as.emitLoad(n.Ops[1]); err != nil {
				return err
			}
			as.push(OpLoadIdx, n.Size)
			as.leave(2)
			as.enter()
			return nil
		}
		as.leave(1)
		as.enter()

	case sidefx.IBoundaryBuf:
		if err := as.emit(ref); err != nil {
			return err
		}
		as.push(OpLoadSlot, int64(n.Slot))
		as.enter()

	case sidefx.ISubroutine:
		if err := as.emit(ref); err != nil {
			return err
		}
		if err := as.emitLoad(n.Ops[1]); err != nil {
			return err
		}

	default:
		// any other imperative node: load it as an opaque immediate
		// keyed by its own Ref, like a bare value-domain ref above.
		as.push(OpLoadArg, int64(ref))
		as.enter()
	}
	return nil
}
