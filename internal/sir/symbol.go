package sir

// SymbolKind tags the sum-typed Symbol value. The set matches spec.md's
// "every declarable" enumeration exactly.
type SymbolKind int

const (
	SymModule SymbolKind = iota
	SymFunc
	SymStruct
	SymEnum
	SymEnumVariant
	SymUnion
	SymUnionCase
	SymProto
	SymTypeAlias
	SymConst
	SymVar
	SymLocal
	SymField
	SymGenericParam
	SymOverloadSet
)

// Symbol is a sum over every declarable name. DeclHandle points back into
// the owning Unit's Decls arena for the cases backed by a declaration;
// Type is populated once header analysis has run.
type Symbol struct {
	Kind       SymbolKind
	Name       string
	Type       Type
	DeclHandle Handle
	// Overloads holds the candidate DeclHandles for SymOverloadSet;
	// resolved to exactly one after argument-based overload resolution.
	Overloads []Handle
	// Mutable marks SymVar/SymLocal declared with `var` (vs. `let`).
	Mutable bool
}

// SymbolTable maps names to Symbol and chains to a parent for lookup.
// Tables are arena-owned per module; SymbolTable itself stays a plain
// struct (not Handle-addressed) since lookup needs direct pointer chasing
// up the parent chain far more often than by-value copying.
type SymbolTable struct {
	Parent  *SymbolTable
	entries map[string]Symbol
}

// NewSymbolTable returns an empty table chained to parent (nil for the
// root/module-level table).
func NewSymbolTable(parent *SymbolTable) *SymbolTable {
	return &SymbolTable{Parent: parent, entries: make(map[string]Symbol)}
}

// Insert adds name -> sym to this table only (never a parent). Returns
// false if name is already bound in this table (shadowing across tables
// is legal and is the analyzer's concern, not the table's).
func (t *SymbolTable) Insert(name string, sym Symbol) bool {
	if _, exists := t.entries[name]; exists {
		return false
	}
	t.entries[name] = sym
	return true
}

// LookupLocal returns the Symbol bound to name in this table only.
func (t *SymbolTable) LookupLocal(name string) (Symbol, bool) {
	sym, ok := t.entries[name]
	return sym, ok
}

// Lookup walks the parent chain starting at t and returns the first
// binding found.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	for cur := t; cur != nil; cur = cur.Parent {
		if sym, ok := cur.entries[name]; ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// Rebind overwrites an existing local entry, used by use-decl resolution
// to re-bind an imported symbol into the local table under a (possibly
// renamed) local name.
func (t *SymbolTable) Rebind(name string, sym Symbol) {
	t.entries[name] = sym
}
