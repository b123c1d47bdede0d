package ssa

import (
	"fmt"
	"math"
)

// Variable is a unique identifier for a SIR local and corresponds to zero
// or more SSA Values over its lifetime (one per definition site).
type Variable uint32

// String implements fmt.Stringer.
func (v Variable) String() string { return fmt.Sprintf("var%d", v) }

// valueID is the bare identifier of a Value, without its Type.
type valueID uint32

const valueIDInvalid valueID = math.MaxUint32

// Value represents an SSA value. Unlike the teacher's wasm Value (which
// packs its single-byte Type into the high 32 bits of a uint64), this
// spec's Type is a multi-field struct (kind + array length + struct/tuple
// ref) too wide to pack; Value instead stays a bare id and the builder
// keeps a side table (builder.valueTypes) from id to Type, indexed the
// same way builder.valueRefCounts already is. This is the one place this
// port diverges from the teacher's bit-packing trick, and it keeps the
// same "plain comparable handle, no pointer" property the design notes
// ask for.
type Value valueID

// invalid is the sentinel "no value" result.
const valueInvalid Value = Value(valueIDInvalid)

// Valid returns true if this value is valid.
func (v Value) Valid() bool { return valueID(v) != valueIDInvalid }

// ID returns the bare valueID of this value.
func (v Value) ID() valueID { return valueID(v) }

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "<invalid>"
	}
	return fmt.Sprintf("v%d", v.ID())
}

// format renders v using any debug annotation registered on b.
func (v Value) format(b *builder) string {
	if annotation, ok := b.valueAnnotations[v.ID()]; ok {
		return annotation
	}
	return v.String()
}

// formatWithType renders v with its inferred Type suffix.
func (v Value) formatWithType(b *builder) string {
	return fmt.Sprintf("%s:%s", v.format(b), b.typeOf(v))
}
