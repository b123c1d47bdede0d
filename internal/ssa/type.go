package ssa

import "fmt"

// TypeKind is the scalar tag of a Type. Every SSA value's type reduces to
// one of these per spec: "primitive, struct pointer, or tuple-of-types,
// with optional array length."
type TypeKind byte

const (
	TypeInvalid TypeKind = iota
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	// TypeAddr is the untyped pointer-sized integer result type of
	// ALLOCA/MEMBERPTR/OFFSETPTR and any address-of expression.
	TypeAddr
	// TypeStructPtr is a pointer to a Structure, identified by StructRef.
	TypeStructPtr
	// TypeTuple is a tuple-of-types, identified by TupleRef; Module
	// holds no tuple-type table for it to index.
	TypeTuple
)

// String implements fmt.Stringer.
func (k TypeKind) String() string {
	switch k {
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeAddr:
		return "addr"
	case TypeStructPtr:
		return "struct_ptr"
	case TypeTuple:
		return "tuple"
	default:
		return "invalid"
	}
}

// Type is the richer per-operand type the SSA-IR carries. Unlike the
// teacher's single-byte wasm value types, ours must additionally name a
// struct (for struct-pointer operands from MEMBERPTR/ALLOCA of aggregates)
// or an array length (for fixed-size alloca slots); Type stays a small
// comparable value so it can still be embedded inline wherever the
// teacher embeds its Type byte.
type Type struct {
	Kind      TypeKind
	ArrayLen  uint32 // 0 if this Type is not an array of Kind
	StructRef uint32 // Structure index, valid when Kind == TypeStructPtr
	TupleRef  uint32 // tuple index, valid when Kind == TypeTuple
}

// TypeInvalidValue is the zero Type, used as a sentinel "no type" result
// (e.g. a control-only instruction's primary result).
var TypeInvalidValue = Type{Kind: TypeInvalid}

// Valid reports whether t is a concrete (non-invalid) type.
func (t Type) Valid() bool { return t.Kind != TypeInvalid }

// Size returns the size in bytes of one element of t, excluding any
// ArrayLen multiplier; 8 for TypeStructPtr (a pointer) and 0 for
// TypeTuple.
func (t Type) Size() int {
	switch t.Kind {
	case TypeI8:
		return 1
	case TypeI16:
		return 2
	case TypeI32, TypeF32:
		return 4
	case TypeI64, TypeF64, TypeAddr, TypeStructPtr:
		return 8
	default:
		return 0
	}
}

// Float reports whether t is TypeF32 or TypeF64.
func (t Type) Float() bool { return t.Kind == TypeF32 || t.Kind == TypeF64 }

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.ArrayLen > 0 {
		return fmt.Sprintf("%s[%d]", t.Kind, t.ArrayLen)
	}
	return t.Kind.String()
}

var (
	I8   = Type{Kind: TypeI8}
	I16  = Type{Kind: TypeI16}
	I32  = Type{Kind: TypeI32}
	I64  = Type{Kind: TypeI64}
	F32  = Type{Kind: TypeF32}
	F64  = Type{Kind: TypeF64}
	Addr = Type{Kind: TypeAddr}
)

// StructPtr returns a struct-pointer Type naming structRef.
func StructPtr(structRef uint32) Type { return Type{Kind: TypeStructPtr, StructRef: structRef} }

// Tuple returns a tuple Type naming tupleRef.
func Tuple(tupleRef uint32) Type { return Type{Kind: TypeTuple, TupleRef: tupleRef} }
