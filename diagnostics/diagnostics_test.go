package diagnostics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSinkNodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	if err := s.NodeStart("compile"); err != nil {
		t.Fatalf("NodeStart: %v", err)
	}
	if err := s.Attr("backend", "native"); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if err := s.NodeEnd(); err != nil {
		t.Fatalf("NodeEnd: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "compile") {
		t.Fatalf("expected encoded output to mention the node name, got %q", out)
	}
	if !strings.Contains(out, "native") {
		t.Fatalf("expected encoded output to carry the attribute value, got %q", out)
	}
}

func TestSinkEmitWrapsErrorAsEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	if err := s.Emit("type-error", errors.New("mismatched rank"), Position{File: "a.k", Line: 3, Column: 1}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "mismatched rank") || !strings.Contains(out, "a.k") {
		t.Fatalf("expected emitted event to carry message and position, got %q", out)
	}
}

func TestPositionStringUnknownWhenUnresolved(t *testing.T) {
	var p Position
	if p.String() != "<unknown>" {
		t.Fatalf("zero-value Position should render as <unknown>, got %q", p.String())
	}
}

func TestRuntimeErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("division by zero")
	re := &RuntimeError{Msg: "asset load failed", Cause: cause}
	if !errors.Is(re, cause) {
		t.Fatalf("errors.Is should find the wrapped cause through Unwrap")
	}
}
