// Package types implements the closed algebraic type universe of
// spec §3.1 / §4.2: native scalars and vectors, run-length-compressed
// pairs, the two unit types, compile-time invariants, type tags, user
// types, and array views.
package types

import (
	"fmt"
	"math/big"
)

// Tag is the closed enumeration of type kinds. It is analogous to
// ion's closed set of value-type tags and to expr's AggregateOp: a
// small dense enum with an authoritative size table, rather than an
// open interface hierarchy, because the universe is genuinely closed
// (spec §3.1 "A closed algebraic type universe").
type Tag uint8

const (
	InvalidTag Tag = iota
	F32
	F64
	I32
	I64
	Vector
	PairTag
	NilTag
	TrueTag
	InvariantTag
	TypeTagTag // a Type value that is itself an opaque tag descriptor
	UserTag
	ArrayViewTag
)

func (t Tag) String() string {
	switch t {
	case F32:
		return "f32"
	case F64:
		return "f64"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case Vector:
		return "vector"
	case PairTag:
		return "pair"
	case NilTag:
		return "nil"
	case TrueTag:
		return "true"
	case InvariantTag:
		return "invariant"
	case TypeTagTag:
		return "type-tag"
	case UserTag:
		return "user"
	case ArrayViewTag:
		return "array-view"
	default:
		return "invalid"
	}
}

// nativeSize is the byte size table for the four native scalars
// (spec §3.1).
var nativeSize = map[Tag]int{F32: 4, F64: 8, I32: 4, I64: 8}

// UnionTag brands a UserType whose content carries a runtime subtype
// index (spec §3.1 "the Union tag marks discriminated unions carrying
// a runtime subtype index").
var UnionTag = &TagDescriptor{Name: "Union"}

// TagDescriptor is an opaque descriptor pointer used to brand user
// types (spec §3.1 "Type tag: an opaque descriptor pointer"). Two
// TagDescriptors are the same type tag iff they are the same pointer.
type TagDescriptor struct {
	Name string
}

// Type is an immutable, hash-consable description of a value's shape.
// Construction always goes through the package-level constructors so
// that the Pair run-length invariant (spec §4.2 "Run encoding") is
// maintained: a caller can never directly build a non-canonical Pair.
type Type struct {
	tag Tag

	// native scalar/vector
	elem  *Type // vector element type, or pair element type (run)
	width int   // vector width, or pair run count

	// pair
	tail *Type // pair's tail after the run

	// invariant
	inv Invariant

	// type-tag value
	tagVal *TagDescriptor

	// user type
	userTag     *TagDescriptor
	userContent *Type

	// array view element type
	arrayElem *Type
}

// Invariant is a compile-time constant with full semantic identity
// (spec §3.1 "two Invariant values are equal iff they denote the same
// value"). Exactly one of Rat, Str, or Quoted is set.
type Invariant struct {
	Rat    *big.Rat
	Str    *string // interned: equal strings share one *string
	Quoted interface{ QuotedIdentity() uintptr }
}

// Equal reports whether two invariants denote the same value.
func (a Invariant) Equal(b Invariant) bool {
	switch {
	case a.Rat != nil && b.Rat != nil:
		return a.Rat.Cmp(b.Rat) == 0
	case a.Str != nil && b.Str != nil:
		return *a.Str == *b.Str
	case a.Quoted != nil && b.Quoted != nil:
		return a.Quoted.QuotedIdentity() == b.Quoted.QuotedIdentity()
	default:
		return false
	}
}

// Native scalar singletons.
var (
	TF32 = Type{tag: F32}
	TF64 = Type{tag: F64}
	TI32 = Type{tag: I32}
	TI64 = Type{tag: I64}
	Nil  = Type{tag: NilTag}
	True = Type{tag: TrueTag}
)

// NewVector constructs a fixed-width SIMD-style pack of a native
// scalar, width 2..256 (spec §3.1).
func NewVector(elem Type, width int) (Type, error) {
	if elem.tag < F32 || elem.tag > I64 {
		return Type{}, fmt.Errorf("types: vector element must be a native scalar, got %s", elem.tag)
	}
	if width < 2 || width > 256 {
		return Type{}, fmt.Errorf("types: vector width %d out of range [2,256]", width)
	}
	e := elem
	return Type{tag: Vector, elem: &e, width: width}, nil
}

// NewPair constructs (head . tail), automatically folding into an
// existing run if head structurally equals tail's leading element
// (spec §4.2 "Run encoding": "(A A A . tail) is stored as (element=A,
// count=3, tail=tail)").
func NewPair(head, tail Type) Type {
	if tail.tag == PairTag && Equal(*tail.elem, head) {
		e := head
		return Type{tag: PairTag, elem: &e, width: tail.width + 1, tail: tail.tail}
	}
	h, t := head, tail
	return Type{tag: PairTag, elem: &h, width: 1, tail: &t}
}

// NewInvariant wraps a compile-time constant.
func NewInvariant(v Invariant) Type { return Type{tag: InvariantTag, inv: v} }

// NewTypeTag wraps a TagDescriptor as a first-class type-tag value.
func NewTypeTag(d *TagDescriptor) Type { return Type{tag: TypeTagTag, tagVal: d} }

// NewUserType constructs (tag, content).
func NewUserType(tag *TagDescriptor, content Type) Type {
	c := content
	return Type{tag: UserTag, userTag: tag, userContent: &c}
}

// NewArrayView constructs a slice-over-array-of-native-element type.
func NewArrayView(elem Type) (Type, error) {
	if elem.tag < F32 || elem.tag > I64 {
		return Type{}, fmt.Errorf("types: array view element must be a native scalar, got %s", elem.tag)
	}
	e := elem
	return Type{tag: ArrayViewTag, arrayElem: &e}, nil
}

// Tag returns the type's top-level kind.
func (t Type) Tag() Tag { return t.tag }

// IsPair reports whether t is a (possibly run-compressed) pair.
func (t Type) IsPair() bool { return t.tag == PairTag }

// First returns the head of a run-compressed pair: if the run count
// is >1, First returns the run's element type and the pair itself
// (minus one) remains via Rest; if the run count is 1, First returns
// the element and Rest returns tail directly.
func (t Type) First() Type {
	if t.tag != PairTag {
		panic("types: First of non-pair")
	}
	return *t.elem
}

// Rest decomposes the structural tail of a run-compressed pair in
// O(1), per spec §4.2: a run of count N becomes a run of count N-1
// (or collapses to tail when N==1).
func (t Type) Rest() Type {
	if t.tag != PairTag {
		panic("types: Rest of non-pair")
	}
	if t.width > 1 {
		return Type{tag: PairTag, elem: t.elem, width: t.width - 1, tail: t.tail}
	}
	return *t.tail
}

// RunCount returns the leading run length of a pair (1 for a
// non-run-compressed pair built from two distinct element types).
func (t Type) RunCount() int {
	if t.tag != PairTag {
		return 0
	}
	return t.width
}

// Tail returns the type after the leading run.
func (t Type) Tail() Type {
	if t.tag != PairTag {
		panic("types: Tail of non-pair")
	}
	return *t.tail
}

// VectorElem and VectorWidth decompose a Vector type.
func (t Type) VectorElem() Type  { return *t.elem }
func (t Type) VectorWidth() int  { return t.width }
func (t Type) Invariant() Invariant { return t.inv }
func (t Type) TypeTagValue() *TagDescriptor { return t.tagVal }
func (t Type) UserTagValue() *TagDescriptor { return t.userTag }
func (t Type) UserContent() Type            { return *t.userContent }
func (t Type) ArrayElem() Type              { return *t.arrayElem }

// IsUnion reports whether t is a discriminated union (a UserType
// branded with UnionTag).
func (t Type) IsUnion() bool { return t.tag == UserTag && t.userTag == UnionTag }

// CountLeading returns the length of the leading run of match at the
// head of a structural sequence starting at t (spec §4.2
// "count_leading(type, match) returns the prefix run length").
func CountLeading(t Type, match Type) int {
	n := 0
	cur := t
	for cur.tag == PairTag && Equal(*cur.elem, match) {
		n += cur.width
		cur = *cur.tail
	}
	return n
}

// Size computes the byte size of t per the algebra in spec §4.2:
//
//	size(pair(a,b))        = size(a) + size(b)
//	size(vector(e, n))     = n * size(e)
//	size(user_type(_, c))  = size(c)
//	size(array_view(_))    = 16
//	size(nil) = size(true) = size(invariant) = 0
func Size(t Type) int {
	switch t.tag {
	case F32, F64, I32, I64:
		return nativeSize[t.tag]
	case Vector:
		return t.width * Size(*t.elem)
	case PairTag:
		return t.width*Size(*t.elem) + Size(*t.tail)
	case NilTag, TrueTag, InvariantTag:
		return 0
	case TypeTagTag:
		return 8 // opaque descriptor pointer
	case UserTag:
		return Size(*t.userContent)
	case ArrayViewTag:
		return 16 // 64-bit base + 32-bit offset + 32-bit length
	default:
		panic("types: Size of invalid type")
	}
}

// Equal implements structural type equality, the "meet" operation of
// spec §4.2.
func Equal(a, b Type) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case F32, F64, I32, I64, NilTag, TrueTag:
		return true
	case Vector:
		return a.width == b.width && Equal(*a.elem, *b.elem)
	case PairTag:
		return a.width == b.width && Equal(*a.elem, *b.elem) && Equal(*a.tail, *b.tail)
	case InvariantTag:
		return a.inv.Equal(b.inv)
	case TypeTagTag:
		return a.tagVal == b.tagVal
	case UserTag:
		return a.userTag == b.userTag && Equal(*a.userContent, *b.userContent)
	case ArrayViewTag:
		return Equal(*a.arrayElem, *b.arrayElem)
	default:
		return false
	}
}

// Less defines a total order over types, used to canonicalize
// reactive driver sets (spec §4.1 "Ordering... used by
// canonicalization of reactive driver sets").
func Less(a, b Type) bool {
	if a.tag != b.tag {
		return a.tag < b.tag
	}
	switch a.tag {
	case Vector:
		if a.width != b.width {
			return a.width < b.width
		}
		return Less(*a.elem, *b.elem)
	case PairTag:
		if !Equal(*a.elem, *b.elem) {
			return Less(*a.elem, *b.elem)
		}
		if a.width != b.width {
			return a.width < b.width
		}
		return Less(*a.tail, *b.tail)
	case InvariantTag:
		if a.inv.Rat != nil && b.inv.Rat != nil {
			return a.inv.Rat.Cmp(b.inv.Rat) < 0
		}
		if a.inv.Str != nil && b.inv.Str != nil {
			return *a.inv.Str < *b.inv.Str
		}
		return false
	case TypeTagTag:
		return fmt.Sprintf("%p", a.tagVal) < fmt.Sprintf("%p", b.tagVal)
	case UserTag:
		if a.userTag != b.userTag {
			return fmt.Sprintf("%p", a.userTag) < fmt.Sprintf("%p", b.userTag)
		}
		return Less(*a.userContent, *b.userContent)
	case ArrayViewTag:
		return Less(*a.arrayElem, *b.arrayElem)
	default:
		return false
	}
}

// Hash mixes t into a structural hash, consistent with Equal (equal
// types hash equal).
func Hash(t Type) uint64 {
	h := uint64(1469598103934665603) ^ uint64(t.tag)
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211
	}
	switch t.tag {
	case Vector:
		mix(uint64(t.width))
		mix(Hash(*t.elem))
	case PairTag:
		mix(uint64(t.width))
		mix(Hash(*t.elem))
		mix(Hash(*t.tail))
	case InvariantTag:
		if t.inv.Rat != nil {
			mix(uint64(t.inv.Rat.Num().Int64()))
			mix(uint64(t.inv.Rat.Denom().Int64()))
		}
		if t.inv.Str != nil {
			for _, r := range *t.inv.Str {
				mix(uint64(r))
			}
		}
	case TypeTagTag:
		mix(uint64(uintptr(fmt.Sprintf("%p", t.tagVal)[0])))
	case UserTag:
		mix(Hash(*t.userContent))
	case ArrayViewTag:
		mix(Hash(*t.arrayElem))
	}
	return h
}

// Fix resolves any lazily-generated rule-generator type to its
// concrete form (spec §3.1 "a 'fix' operation that resolves any
// lazily-generated rule-generator type to its concrete form"). In
// this implementation every Type constructed via the package
// constructors is already concrete, so Fix is the identity; it exists
// as an explicit seam for a future generator-type extension (mirrors
// ion's lazy-shape resolution, which this package deliberately keeps
// simple since the signal language's type algebra, unlike SQL's schema
// inference, has no open-ended row-shape inference to defer).
func Fix(t Type) Type { return t }
