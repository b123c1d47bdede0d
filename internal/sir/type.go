package sir

// TypeKind tags the sum-typed Type value.
type TypeKind int

const (
	TypePseudo TypeKind = iota // literal not yet finalized; never survives analysis
	TypePrimitive
	TypePointer
	TypeReference
	TypeStaticArray
	TypeFunc
	TypeOptional
	TypeResult
	TypeArray
	TypeClosure
	TypeTuple
	TypeStruct
	TypeUnion
	TypeEnum
	TypeProto
	TypeVoid
	TypeInvalid
)

// Primitive enumerates primitive scalar kinds.
type Primitive int

const (
	PrimI8 Primitive = iota
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimF32
	PrimF64
	PrimBool
	PrimAddr // untyped pointer-sized integer ("addr" in spec's coercion table)
	PrimChar
)

// Signed returns true if p is a signed integer primitive.
func (p Primitive) Signed() bool {
	switch p {
	case PrimI8, PrimI16, PrimI32, PrimI64:
		return true
	default:
		return false
	}
}

// Width returns the bit width of p.
func (p Primitive) Width() int {
	switch p {
	case PrimI8, PrimU8, PrimBool, PrimChar:
		return 8
	case PrimI16, PrimU16:
		return 16
	case PrimI32, PrimU32, PrimF32:
		return 32
	case PrimI64, PrimU64, PrimF64, PrimAddr:
		return 64
	default:
		return 0
	}
}

// Float returns true if p is a floating-point primitive.
func (p Primitive) Float() bool { return p == PrimF32 || p == PrimF64 }

// Type is a sum-typed, interned-by-value description of a SIR type. It is
// deliberately a plain struct (not an interface) so that it can be
// compared with == and used as a map key when every slice field is empty,
// which holds for every case except StaticArray/Func/Tuple/Closure; those
// cases carry a Handle into typeExtra arenas owned by the Unit instead of
// inline slices, keeping Type comparable.
type Type struct {
	Kind TypeKind
	Prim Primitive
	// Elem is the pointee/referent/element type for Pointer, Reference,
	// StaticArray, Array, Optional, Result (Elem = T), Closure.
	Elem *Type
	// ErrElem is the error type for Result<T, E>.
	ErrElem *Type
	// Len is the static length for StaticArray.
	Len int
	// Decl names the StructDef/UnionDef/EnumDef/ProtoDef/TypeAlias this
	// type resolves to, by Handle into the owning Unit's Decls arena.
	Decl Handle
	// Extra is a Handle into Unit.FuncTypeExtras/TupleTypeExtras for the
	// Func and Tuple cases, which need more than one sub-type.
	Extra Handle
	// Mutable marks a ReferenceType as mutable (&mut T) vs. immutable
	// (&T); used by the mutability checker.
	Mutable bool
}

// Invalid reports whether t is the zero Type (uninitialized) or an
// explicit error/pseudo marker. Per spec invariant: "After analysis every
// Expr has a concrete type; PseudoType appears only pre-finalisation."
func (t Type) Invalid() bool {
	return t.Kind == TypeInvalid || t.Kind == TypePseudo
}

// FuncTypeExtra holds the param/return lists for a Func-kind Type.
type FuncTypeExtra struct {
	Params     []Type
	Return     Type
	Variadic   bool
	FirstVarIx int
}

// TupleTypeExtra holds the element list for a Tuple-kind Type.
type TupleTypeExtra struct {
	Elems []Type
}

// ClosureTypeExtra holds the captured environment shape for a closure
// type, in addition to the Func signature stored via Elem/Extra.
type ClosureTypeExtra struct {
	CapturesByRef []bool
}
