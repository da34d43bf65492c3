// Package sqltype translates textual SQL type descriptors into structural
// type descriptors and Arrow fields, and back.
//
// The grammar is the one the SQL catalog uses when it registers remote
// functions: case-insensitive primitive keywords (BOOLEAN, TINYINT,
// BIGINT UNSIGNED, VARCHAR, ...), compound forms DECIMAL(p, s), ARRAY(T),
// MAP(K, V) and TUPLE(T1, ..., Tn), and nullability via a trailing
// NOT NULL / NULL modifier or a NULLABLE(...) wrapper. VARIANT and JSON
// denote dynamically typed values stored as large binary with an extension
// marker in the field metadata.
//
// Top-level descriptors default to nullable; descriptors nested inside a
// compound default to non-nullable unless marked otherwise. Parse and
// Format round-trip semantically: keywords are normalized to their
// canonical spelling, nullability is preserved.
package sqltype

import (
	"errors"
)

// Standard errors returned by the translator.
var (
	// ErrInvalidTypeSyntax indicates a malformed type descriptor
	// (unbalanced parentheses, wrong argument count, empty input).
	ErrInvalidTypeSyntax = errors.New("invalid type syntax")

	// ErrUnsupportedType indicates an unknown type keyword.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidDecimalSpec indicates a decimal precision or scale
	// outside the supported bounds.
	ErrInvalidDecimalSpec = errors.New("invalid decimal precision or scale")
)

// Field metadata marking variant (JSON) columns. The engine identifies the
// VARIANT logical type by this key/value pair on a large binary field.
const (
	ExtensionKey     = "Extension"
	VariantExtension = "Variant"
)

// Decimal precision bounds. Precisions below the 128-bit bound map to
// decimal128, everything up to the 256-bit bound maps to decimal256.
const (
	MaxDecimal128Precision = 38
	MaxDecimal256Precision = 76
)

// Kind identifies the physical kind of a type descriptor.
type Kind int

const (
	Boolean Kind = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Date
	Timestamp
	String
	Binary
	Decimal
	List
	Struct
	Map
)

// Type is a structural SQL type descriptor.
//
// Variant is a flag on the Binary kind, never a distinct physical kind:
// a VARIANT column is stored as large binary whose bytes hold JSON text.
type Type struct {
	Kind     Kind
	Nullable bool

	// Variant marks a Binary descriptor as carrying JSON-encoded
	// dynamically typed values.
	Variant bool

	// Precision and Scale are set for the Decimal kind.
	// Invariant: 1 <= Precision <= 76 and 0 <= Scale <= Precision.
	Precision int32
	Scale     int32

	// Elem is the element descriptor for the List kind.
	Elem *Type

	// Key and Value are the entry descriptors for the Map kind.
	Key   *Type
	Value *Type

	// Fields are the positional member descriptors for the Struct kind.
	Fields []Type
}

// String renders the descriptor in canonical SQL syntax.
func (t Type) String() string {
	return Format(t)
}
