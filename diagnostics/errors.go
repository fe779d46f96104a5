// Package diagnostics implements the four error kinds of spec §7 and
// the structured diagnostic event stream consumed by IDEs, following
// expr.TypeError/expr.SyntaxError's "At Node, Msg string" shape and
// plan/pir.CompileError's WriteTo(io.Writer) pretty-printing
// convention from the teacher.
package diagnostics

import (
	"fmt"
	"io"

	"github.com/kronoslang/kronos-sub002/internal/types"
	"github.com/kronoslang/kronos-sub002/ir"
)

// Position is a resolved source location, produced from a
// ir.SourceAddr by a driver-supplied Resolver (spec §7 "Source
// positions: ... The resolver maps that address back to
// (file, line, column) at error-reporting time").
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Resolver maps a source address back to a human-readable position.
// It is supplied once per compile (spec §6.1 create_context's
// path_resolver serves an analogous role for imports; this resolver
// is the companion for error reporting).
type Resolver func(ir.SourceAddr) Position

// ProgramError is a user source bug (spec §7 "ProgramError — user
// source bug with a source position").
type ProgramError struct {
	At  ir.SourceAddr
	Pos Position
	Msg string
}

func (e *ProgramError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

func (e *ProgramError) WriteTo(w io.Writer) (int, error) {
	return fmt.Fprintf(w, "program error at %s: %s\n", e.Pos, e.Msg)
}

// TypeError is a specialization-time type mismatch (spec §7
// "TypeError — ... carries the received and expected types").
type TypeError struct {
	At               ir.SourceAddr
	Pos              Position
	Expected, Received types.Type
	Msg              string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s: %s", e.Pos, e.Expected.Tag(), e.Received.Tag(), e.Msg)
}

func (e *TypeError) WriteTo(w io.Writer) (int, error) {
	return fmt.Fprintf(w, "type error at %s: expected %s, got %s (%s)\n", e.Pos, e.Expected.Tag(), e.Received.Tag(), e.Msg)
}

// RuntimeError is an I/O or asset-loading failure during compilation
// (spec §7 "RuntimeError — I/O or asset-loading failure during
// compilation").
type RuntimeError struct {
	Msg   string
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("runtime error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("runtime error: %s", e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// InternalError is a violated compiler invariant; not user-recoverable
// (spec §7 "InternalError — compiler invariant violated").
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal compiler error: %s", e.Msg) }

// ReactivityError is raised for ambiguous or inconsistent reactivity
// on a GetGlobal/SetGlobal pair (spec §4.3 "Failure: Ambiguous or
// inconsistent reactivity for GetGlobal/SetGlobal pairs is reported
// with error kind ReactivityError"). It is a ProgramError variant
// (the inconsistency is a property of the source program, not the
// compiler), distinguished by its concrete type and carrying the
// offending global's UID.
type ReactivityError struct {
	ProgramError
	UID string
}

func (e *ReactivityError) Error() string {
	return fmt.Sprintf("%s: inconsistent reactivity for global %q: %s", e.Pos, e.UID, e.Msg)
}
