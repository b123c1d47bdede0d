package sir

import "github.com/banjoc/banjoc/internal/report"

// DeclKind tags the sum-typed Decl node.
type DeclKind int

const (
	DeclFuncDef DeclKind = iota
	DeclFuncDecl
	DeclNativeFuncDecl
	DeclConstDef
	DeclStructDef
	DeclStructField
	DeclVarDecl
	DeclNativeVarDecl
	DeclEnumDef
	DeclEnumVariant
	DeclUnionDef
	DeclUnionCase
	DeclProtoDef
	DeclTypeAlias
	DeclUseDecl
	DeclMetaIfStmt // expanded away by analysis; retained only transiently
	DeclError
)

// CallingConv enumerates the calling conventions a FuncDef/FuncDecl may
// request; default is the target's native convention.
type CallingConv int

const (
	CallConvNative CallingConv = iota
	CallConvC
)

// GenericParam is one entry of a generic parameter list.
type GenericParam struct {
	Name       Ident
	ProtoBound Handle // optional protocol constraint, DeclProtoDef handle
}

// Decl is every top-level and nested declaration node, tagged by Kind.
type Decl struct {
	Kind DeclKind
	Span report.Span
	Name Ident

	// Generic parameters; a non-empty GenericParams on FuncDef/StructDef
	// marks it un-specialized (spec invariant: never referenced from SSA
	// directly; every call site names a resolved Specialization instead).
	GenericParams []GenericParam

	// FuncDef/FuncDecl/NativeFuncDecl.
	Params     []Param
	ReturnType Type
	Body       Handle // Stmt handle (Block), HandleInvalid for decls
	CallConv   CallingConv
	Variadic   bool
	LinkName   string // native symbol name override, if any

	// ConstDef/VarDecl/NativeVarDecl.
	DeclaredType Type
	ValueExpr    Handle // Expr handle

	// StructDef.
	Fields  []Handle // DeclStructField handles
	Layout  StructLayout

	// StructField.
	FieldType Type
	FieldIx   int

	// EnumDef.
	Variants []Handle // DeclEnumVariant handles
	// EnumVariant.
	VariantValue Handle // Expr handle, const-evaluated

	// UnionDef.
	Cases []Handle // DeclUnionCase handles
	// UnionCase: reuses Fields/FieldType machinery of a struct-shaped case.

	// ProtoDef: required method signatures.
	ProtoMethods []ProtoMethod

	// TypeAlias.
	AliasedType Type

	// UseDecl: import path + optional rebind/list.
	UsePath   []Ident
	UseKind   UseKind
	UseAlias  Ident
	UseItems  []Ident

	// Table is this decl's own symbol table, for decls that introduce a
	// new scope (FuncDef body, StructDef fields, module block).
	Table *SymbolTable

	// Symbols is a Handle into the owning Unit's Decls arena; symbol
	// collection does not set it (module-level names go into
	// Module.Table).
	Symbols Handle

	SpecializedFrom Handle   // for a generated monomorphic clone: the generic Decl it came from
	SpecializedArgs []Type   // the generic argument tuple for this clone

	AST any
}

// Param is one function parameter.
type Param struct {
	Name Ident
	Type Type
}

// ProtoMethod is one required method signature of a ProtoDef.
type ProtoMethod struct {
	Name   Ident
	Params []Param
	Return Type
}

// StructLayout controls field-initialisation rules for StructLiteral.
type StructLayout int

const (
	LayoutDefault StructLayout = iota
	LayoutOverlapping
)

// UseKind distinguishes the four import-statement forms spec.md names.
type UseKind int

const (
	UseDotExpr UseKind = iota
	UseList
	UseRebind
	UseIdent
)
