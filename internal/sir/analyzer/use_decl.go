package analyzer

import (
	"strings"

	"github.com/banjoc/banjoc/internal/sir"
)

// resolveUseDecls follows every DeclUseDecl's UsePath against the unit's
// module tree and re-binds the named symbol(s) into the importing
// module's table, honoring the four import forms UseKind enumerates.
func (a *Analyzer) resolveUseDecls() {
	for _, m := range a.unit.Modules {
		for _, h := range m.Decls {
			d := a.unit.Decl(h)
			if d.Kind != sir.DeclUseDecl {
				continue
			}
			a.resolveUseDecl(m, h, d)
		}
	}
}

func (a *Analyzer) resolveUseDecl(m *sir.Module, h sir.Handle, d *sir.Decl) {
	target := a.findModule(pathOf(d.UsePath))
	if target == nil {
		a.diag.Errorf(d.Span, "no module %q", pathOf(d.UsePath))
		return
	}

	switch d.UseKind {
	case sir.UseDotExpr, sir.UseIdent:
		// `use app::net::socket` binds the last path segment itself, or
		// (UseIdent) a single already-resolved name within target.
		name := d.UsePath[len(d.UsePath)-1].Name
		sym, ok := target.Table.LookupLocal(name)
		if !ok {
			a.diag.Errorf(d.Span, "%q has no member %q", target.Path, name)
			return
		}
		m.Table.Rebind(name, sym)

	case sir.UseList:
		for _, item := range d.UseItems {
			sym, ok := target.Table.LookupLocal(item.Name)
			if !ok {
				a.diag.Errorf(item.Span, "%q has no member %q", target.Path, item.Name)
				continue
			}
			m.Table.Rebind(item.Name, sym)
		}

	case sir.UseRebind:
		name := d.UsePath[len(d.UsePath)-1].Name
		sym, ok := target.Table.LookupLocal(name)
		if !ok {
			a.diag.Errorf(d.Span, "%q has no member %q", target.Path, name)
			return
		}
		m.Table.Rebind(d.UseAlias.Name, sym)
	}
}

func (a *Analyzer) findModule(path string) *sir.Module {
	for _, m := range a.unit.Modules {
		if m.Path == path || strings.HasPrefix(path, m.Path+"::") {
			return m
		}
	}
	return nil
}

func pathOf(idents []sir.Ident) string {
	parts := make([]string, len(idents))
	for i, id := range idents {
		parts[i] = id.Name
	}
	return strings.Join(parts, "::")
}
