package sir

// Module is one source module: a name, its decl block, and its own
// symbol table (chained to the unit-global root table for cross-module
// `use` resolution).
type Module struct {
	Name    string
	Path    string // filesystem-ish logical path, e.g. "app::net::socket"
	Decls   []Handle
	Table   *SymbolTable
	Exports []string // DLL-exported symbol names, if any (see ssa.Module.DLLExports)
}

// Unit owns every arena for a single compilation: all Decls/Stmts/Exprs
// across all modules are allocated here so that cross-module references
// (mutual recursion between modules) are plain Handles, never pointers
// into another module's independently-owned memory.
//
// Ownership: a Unit is arena-allocated per compilation; Handles are only
// valid for the Unit that issued them.
type Unit struct {
	Decls Arena[Decl]
	Stmts Arena[Stmt]
	Exprs Arena[Expr]

	FuncTypeExtras    Arena[FuncTypeExtra]
	TupleTypeExtras   Arena[TupleTypeExtra]
	ClosureTypeExtras Arena[ClosureTypeExtra]

	Modules []*Module
	Root    *SymbolTable
}

// NewUnit returns an empty Unit with a fresh root symbol table.
func NewUnit() *Unit {
	return &Unit{Root: NewSymbolTable(nil)}
}

// NewModule registers and returns a new Module scoped under the Unit's
// root symbol table.
func (u *Unit) NewModule(name, path string) *Module {
	m := &Module{Name: name, Path: path, Table: NewSymbolTable(u.Root)}
	u.Modules = append(u.Modules, m)
	return m
}

// Decl returns a pointer to the declaration named by h.
func (u *Unit) Decl(h Handle) *Decl { return u.Decls.Get(h) }

// Stmt returns a pointer to the statement named by h.
func (u *Unit) Stmt(h Handle) *Stmt { return u.Stmts.Get(h) }

// Expr returns a pointer to the expression named by h.
func (u *Unit) Expr(h Handle) *Expr { return u.Exprs.Get(h) }

// NewDecl allocates a Decl of the given kind and returns its Handle.
func (u *Unit) NewDecl(kind DeclKind) Handle {
	h := u.Decls.New()
	u.Decl(h).Kind = kind
	return h
}

// NewStmt allocates a Stmt of the given kind and returns its Handle.
func (u *Unit) NewStmt(kind StmtKind) Handle {
	h := u.Stmts.New()
	u.Stmt(h).Kind = kind
	return h
}

// NewExpr allocates an Expr of the given kind and returns its Handle.
func (u *Unit) NewExpr(kind ExprKind) Handle {
	h := u.Exprs.New()
	e := u.Expr(h)
	e.Kind = kind
	e.Type = Type{Kind: TypePseudo}
	return h
}
