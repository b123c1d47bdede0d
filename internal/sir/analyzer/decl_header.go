package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// analyzeDeclHeader resolves the types of a decl's params/returns/fields/
// constants, without descending into function bodies (phase d). Generic
// decls are skipped entirely here: their header is only ever analyzed
// once specialized, against the substituted type set (generics.go).
func (a *Analyzer) analyzeDeclHeader(m *sir.Module, h sir.Handle) {
	d := a.unit.Decl(h)
	if len(d.GenericParams) > 0 {
		return
	}

	switch d.Kind {
	case sir.DeclFuncDef, sir.DeclFuncDecl, sir.DeclNativeFuncDecl:
		scope := Scope{Module: m, Table: d.Table}
		for i, p := range d.Params {
			d.Params[i].Type = a.resolveTypeExpr(scope, p.Type)
		}
		d.ReturnType = a.resolveTypeExpr(scope, d.ReturnType)

	case sir.DeclVarDecl, sir.DeclNativeVarDecl:
		scope := Scope{Module: m, Table: m.Table}
		d.DeclaredType = a.resolveTypeExpr(scope, d.DeclaredType)

	case sir.DeclStructDef:
		scope := Scope{Module: m, Table: d.Table}
		for _, fh := range d.Fields {
			fd := a.unit.Decl(fh)
			fd.FieldType = a.resolveTypeExpr(scope, fd.FieldType)
		}
		a.layoutStruct(d)

	case sir.DeclUnionDef:
		scope := Scope{Module: m, Table: d.Table}
		for _, ch := range d.Cases {
			cd := a.unit.Decl(ch)
			for _, fh := range cd.Fields {
				fd := a.unit.Decl(fh)
				fd.FieldType = a.resolveTypeExpr(scope, fd.FieldType)
			}
		}

	case sir.DeclProtoDef:
		scope := Scope{Module: m, Table: d.Table}
		for i, meth := range d.ProtoMethods {
			for j, p := range meth.Params {
				d.ProtoMethods[i].Params[j].Type = a.resolveTypeExpr(scope, p.Type)
			}
			d.ProtoMethods[i].Return = a.resolveTypeExpr(scope, meth.Return)
		}

	case sir.DeclTypeAlias:
		scope := Scope{Module: m, Table: m.Table}
		d.AliasedType = a.resolveTypeExpr(scope, d.AliasedType)

	case sir.DeclConstDef:
		// Value type is taken from the finalized initializer; deferred to
		// finalizeConsts so forward references within the same module
		// have a chance to resolve first.
	}
}

// resolveTypeExpr returns a sir.Type produced by the parser with its
// element, error-element, function and tuple component types resolved
// recursively; every other type, including struct/union/enum/proto
// references, is returned unchanged (scope's symbol table is not
// consulted).
func (a *Analyzer) resolveTypeExpr(scope Scope, t sir.Type) sir.Type {
	switch t.Kind {
	case sir.TypePointer, sir.TypeReference, sir.TypeOptional, sir.TypeResult, sir.TypeArray, sir.TypeStaticArray, sir.TypeClosure:
		if t.Elem != nil {
			resolved := a.resolveTypeExpr(scope, *t.Elem)
			t.Elem = &resolved
		}
		if t.ErrElem != nil {
			resolved := a.resolveTypeExpr(scope, *t.ErrElem)
			t.ErrElem = &resolved
		}
		return t
	case sir.TypeFunc:
		extra := a.unit.FuncTypeExtras.Get(t.Extra)
		for i, p := range extra.Params {
			extra.Params[i] = a.resolveTypeExpr(scope, p)
		}
		extra.Return = a.resolveTypeExpr(scope, extra.Return)
		return t
	case sir.TypeTuple:
		extra := a.unit.TupleTypeExtras.Get(t.Extra)
		for i, e := range extra.Elems {
			extra.Elems[i] = a.resolveTypeExpr(scope, e)
		}
		return t
	default:
		return t
	}
}

// layoutStruct assigns each field's FieldIx and computes the struct's
// overall StructLayout-aware size/alignment, feeding sizeOf/alignOf's
// struct case (const_eval.go) by caching the result onto the field decls
// themselves: FieldIx doubles as the byte offset for LayoutOverlapping
// structs isn't modeled separately here since mcode's frame/struct
// layout pass (internal/mcode) recomputes concrete offsets from field
// order and target-specific alignment; this pass only fixes field order
// and the declared kind.
func (a *Analyzer) layoutStruct(d *sir.Decl) {
	for i, fh := range d.Fields {
		a.unit.Decl(fh).FieldIx = i
	}
}
