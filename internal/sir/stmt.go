package sir

import "github.com/banjoc/banjoc/internal/report"

// StmtKind tags the sum-typed Stmt node.
type StmtKind int

const (
	StmtVar StmtKind = iota
	StmtAssign
	StmtCompAssign
	StmtReturn
	StmtIf
	StmtSwitch
	StmtTry
	StmtWhile
	StmtFor
	StmtLoop
	StmtContinue
	StmtBreak
	StmtBlock
	StmtExpr
	StmtMetaIf
	StmtMetaFor
	StmtExpandedMeta
	StmtError
)

// Stmt is every statement node, tagged by Kind.
type Stmt struct {
	Kind StmtKind
	Span report.Span

	// VarStmt: Name/ExplicitType(optional)/Init.
	Name         Ident
	HasExplicit  bool
	ExplicitType Type
	Init         Handle // Expr handle
	Mutable      bool

	// AssignStmt/CompAssignStmt: LHS/RHS are Expr handles, BinOp is the
	// compound operator for CompAssignStmt.
	LHS, RHS Handle
	BinOp    BinaryOp

	// ReturnStmt: Value is an Expr handle (HandleInvalid if void return).
	Value Handle

	// IfStmt/WhileStmt/TryStmt: Cond is an Expr handle.
	Cond Handle
	Then Handle // Stmt handle (Block)
	Else Handle // Stmt handle (Block), HandleInvalid if absent

	// SwitchStmt: Discriminant + Cases.
	Discriminant Handle
	Cases        []SwitchCase

	// TryStmt additionally: Tried expr, bound success/except names.
	Tried        Handle
	BindName     Ident
	ExceptName   Ident
	HasExceptArm bool

	// ForStmt: Range is either a RangeExpr or any iterable Expr; Desugar
	// is the LoopStmt handle produced by analysis.
	Range    Handle
	BindVar  Ident
	Desugar  Handle

	// LoopStmt/WhileStmt/ForStmt body + loop-scoped children.
	Body Handle // Stmt handle (Block)

	// Block: ordered child statements.
	Stmts []Handle

	// ExprStmt.
	ExprHandle Handle
}

// SwitchCase is one arm of a SwitchStmt: a case type plus a bound local
// name and block.
type SwitchCase struct {
	CaseType Type
	BindName Ident
	Block    Handle // Stmt handle
	IsElse   bool
}
