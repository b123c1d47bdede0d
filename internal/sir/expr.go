package sir

import "github.com/banjoc/banjoc/internal/report"

// ExprKind tags the sum-typed Expr node.
type ExprKind int

const (
	ExprIntLiteral ExprKind = iota
	ExprFPLiteral
	ExprBoolLiteral
	ExprCharLiteral
	ExprNullLiteral
	ExprNoneLiteral
	ExprUndefinedLiteral
	ExprArrayLiteral
	ExprStringLiteral
	ExprStructLiteral
	ExprMapLiteral
	ExprTuple
	ExprClosureLiteral
	ExprSymbol
	ExprBinary
	ExprUnary
	ExprCast
	ExprCoercion
	ExprIndex
	ExprCall
	ExprField
	ExprRange
	ExprDot
	ExprIdent
	ExprStar
	ExprBracket
	ExprMetaAccess
	ExprMetaField
	ExprMetaCall
	ExprPrimitiveType
	ExprPointerType
	ExprReferenceType
	ExprStaticArrayType
	ExprFuncType
	ExprOptionalType
	ExprResultType
	ExprArrayType
	ExprClosureType
	ExprTupleType
	ExprPseudoType
	ExprError
)

// BinaryOp enumerates binary operators, reused by both BinaryExpr and the
// const evaluator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
)

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
	OpBitNot
	OpAddr    // &x
	OpAddrMut // &mut x
	OpDeref   // *x
	OpRef     // implicit coercion-inserted reference wrap
)

// Expr is every expression node, tagged by Kind and typed once analysis
// has finalized it (see Type.Invalid: Kind==TypePseudo before then).
//
// Like Decl and Stmt, this is a flat struct rather than an interface
// hierarchy: every field not used by a given Kind is simply left zero.
// This mirrors the "tagged variant... dispatch by match" replacement the
// design notes prescribe for the source's class hierarchies, adapted to
// Go's lack of sum types.
type Expr struct {
	Kind ExprKind
	Span report.Span
	Type Type

	// Literal payloads.
	IntVal   int64
	FloatVal float64
	BoolVal  bool
	CharVal  rune
	StrVal   string

	// Composite payloads: operands are Handles into the owning Unit's
	// Exprs arena.
	A, B, C Handle   // generic operand slots (operator LHS/RHS, cond/then/else, ...)
	List    []Handle // ArrayLiteral elems, tuple elems, call args, struct-literal entries (paired with Names)
	Names   []Ident  // field names for StructLiteral/MapLiteral keys, param names for ClosureLiteral

	// Symbol resolution.
	Sym Symbol

	// Op payloads.
	BinOp   BinaryOp
	UnOp    UnaryOp
	Op      Ident // textual operator name as seen pre-resolution, kept for diagnostics
	OpIsSet bool

	// Cast/coercion.
	TargetType Type

	// MetaCallExpr intrinsic name (closed set per spec open question (c)).
	MetaIntrinsic MetaIntrinsic

	// Original AST node, opaque to this package, kept for diagnostics.
	AST any
}

// MetaIntrinsic is the closed set of built-in meta-call intrinsics this
// implementation recognizes, resolving spec.md open question (c).
type MetaIntrinsic int

const (
	MetaIntrinsicNone MetaIntrinsic = iota
	MetaIntrinsicTypeOf
	MetaIntrinsicSizeOf
	MetaIntrinsicAlignOf
	MetaIntrinsicFieldsOf
	MetaIntrinsicHasMethod
	MetaIntrinsicIsSameType
)
