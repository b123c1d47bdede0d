package analyzer

import (
	"github.com/banjoc/banjoc/internal/sir"
)

// collectSymbols walks every module's decl block, inserting a Symbol for
// each top-level declaration into that module's table and diagnosing
// shadowing within the same table (cross-module shadowing is legal;
// resolution order is handled later by use-decl resolution).
func (a *Analyzer) collectSymbols() {
	for _, m := range a.unit.Modules {
		for _, h := range m.Decls {
			a.collectDeclSymbol(m, m.Table, h)
		}
	}
}

func (a *Analyzer) collectDeclSymbol(m *sir.Module, table *sir.SymbolTable, h sir.Handle) {
	d := a.unit.Decl(h)
	kind, mutable := symbolKindOf(d)
	if kind == -1 {
		return // DeclUseDecl/DeclMetaIfStmt carry no symbol of their own.
	}
	sym := sir.Symbol{Kind: sir.SymbolKind(kind), Name: d.Name.Name, DeclHandle: h, Mutable: mutable}
	if !table.Insert(d.Name.Name, sym) {
		prior, _ := table.LookupLocal(d.Name.Name)
		a.diag.ErrorfSecondary(d.Span, a.unit.Decl(prior.DeclHandle).Span, "first defined here",
			"%q is already defined in this scope", d.Name.Name)
		return
	}

	switch d.Kind {
	case sir.DeclStructDef:
		d.Table = sir.NewSymbolTable(table)
		for _, fh := range d.Fields {
			a.collectDeclSymbol(m, d.Table, fh)
		}
	case sir.DeclUnionDef:
		d.Table = sir.NewSymbolTable(table)
		for _, ch := range d.Cases {
			a.collectDeclSymbol(m, d.Table, ch)
		}
	case sir.DeclEnumDef:
		d.Table = sir.NewSymbolTable(table)
		for _, vh := range d.Variants {
			a.collectDeclSymbol(m, d.Table, vh)
		}
	case sir.DeclFuncDef, sir.DeclFuncDecl, sir.DeclNativeFuncDecl:
		d.Table = sir.NewSymbolTable(table)
		for _, p := range d.Params {
			d.Table.Insert(p.Name.Name, sir.Symbol{Kind: sir.SymLocal, Name: p.Name.Name, Type: p.Type})
		}
	}
}

// symbolKindOf maps a DeclKind to the SymbolKind its own name should be
// bound under, and whether that binding is mutable (only var/native-var
// declarations are). Returns kind -1 for decls that don't introduce a
// name of their own (use-decls, meta-if, struct/union/enum fields are
// handled by their own Symbol kinds via the caller's switch).
func symbolKindOf(d *sir.Decl) (kind int, mutable bool) {
	switch d.Kind {
	case sir.DeclFuncDef, sir.DeclFuncDecl, sir.DeclNativeFuncDecl:
		return int(sir.SymFunc), false
	case sir.DeclConstDef:
		return int(sir.SymConst), false
	case sir.DeclStructDef:
		return int(sir.SymStruct), false
	case sir.DeclStructField:
		return int(sir.SymField), false
	case sir.DeclVarDecl, sir.DeclNativeVarDecl:
		return int(sir.SymVar), true
	case sir.DeclEnumDef:
		return int(sir.SymEnum), false
	case sir.DeclEnumVariant:
		return int(sir.SymEnumVariant), false
	case sir.DeclUnionDef:
		return int(sir.SymUnion), false
	case sir.DeclUnionCase:
		return int(sir.SymUnionCase), false
	case sir.DeclProtoDef:
		return int(sir.SymProto), false
	case sir.DeclTypeAlias:
		return int(sir.SymTypeAlias), false
	default:
		return -1, false
	}
}
