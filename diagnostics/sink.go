package diagnostics

import (
	"encoding/xml"
	"io"
)

// Sink is a structured diagnostic event stream for IDE consumption
// (spec §7 "errors are ... logged into a user-supplied XML-like
// diagnostic stream for IDE consumption"). It replaces the original's
// std::ostream-based formatting with the builder-object pattern spec
// §9 calls for: NodeStart/Attr/NodeEnd events consumed by a
// user-supplied sink, here realized as an xml.Encoder writing a
// streaming element tree.
type Sink struct {
	enc   *xml.Encoder
	stack []string
}

// NewSink wraps w as an XML diagnostic stream.
func NewSink(w io.Writer) *Sink {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &Sink{enc: enc}
}

// NodeStart opens a named diagnostic element (e.g. the kind of IR
// node an error or progress event concerns).
func (s *Sink) NodeStart(name string) error {
	s.stack = append(s.stack, name)
	return s.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}})
}

// attrElement is a nested <attr key="..">value</attr> child. A
// streaming xml.Encoder can only set attributes at StartElement time,
// so Attr emits a child element instead, keeping NodeStart/Attr/
// NodeEnd order-independent of how many attributes a caller emits.
type attrElement struct {
	XMLName xml.Name `xml:"attr"`
	Key     string   `xml:"key,attr"`
	Value   string   `xml:",chardata"`
}

// Attr emits a key/value attribute on the current open element.
func (s *Sink) Attr(key, value string) error {
	return s.enc.Encode(attrElement{Key: key, Value: value})
}

// NodeEnd closes the most recently opened element.
func (s *Sink) NodeEnd() error {
	if len(s.stack) == 0 {
		return nil
	}
	name := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return s.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

// Flush flushes any buffered output.
func (s *Sink) Flush() error { return s.enc.Flush() }

// Emit reports a diagnostic event as a self-contained <diagnostic>
// element: kind, message, and resolved position.
func (s *Sink) Emit(kind string, err error, pos Position) error {
	type diag struct {
		XMLName xml.Name `xml:"diagnostic"`
		Kind    string   `xml:"kind,attr"`
		File    string   `xml:"file,attr"`
		Line    int      `xml:"line,attr"`
		Column  int      `xml:"column,attr"`
		Message string   `xml:",chardata"`
	}
	d := diag{Kind: kind, File: pos.File, Line: pos.Line, Column: pos.Column, Message: err.Error()}
	if e := s.enc.Encode(d); e != nil {
		return e
	}
	return s.enc.Flush()
}
