package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// analyzeDeclBody runs the statement analyzer over a non-generic
// function's body block. Decls without a body (declarations, consts,
// type definitions) are skipped; generic decls are skipped too, since
// their bodies are only ever analyzed once specialized
// (generics.specializeCall calls back into this function directly on the
// clone).
func (a *Analyzer) analyzeDeclBody(m *sir.Module, h sir.Handle) {
	d := a.unit.Decl(h)
	if len(d.GenericParams) > 0 {
		return
	}
	if d.Kind != sir.DeclFuncDef || d.Body == sir.HandleInvalid {
		return
	}

	scope := Scope{Module: m, Func: h, ReturnType: d.ReturnType, Table: d.Table}
	a.analyzeBlock(scope, d.Body)
}
