// Package encode holds the types both target encoders (C9,
// internal/encode/amd64 and internal/encode/arm64) produce: a
// BinModule ready for an internal/objfile builder to wrap in a
// concrete container format, exactly as spec.md §4.5's struct literal.
package encode

// SymbolKind classifies one SymbolDef.
type SymbolKind int

const (
	SymTextFunc SymbolKind = iota
	SymTextLabel
	SymDataLabel
	SymAddrTable
	SymUnknown
)

// SymbolDef is one defined symbol: a function entry point, an internal
// label, a data blob, or an address-table slot.
type SymbolDef struct {
	Name   string
	Kind   SymbolKind
	Offset int64 // byte offset within its section
	Global bool
}

// RelocKind classifies one SymbolUse (relocation).
type RelocKind int

const (
	RelocAbs64 RelocKind = iota
	RelocRel32
	RelocPLT32
	RelocGOTPCRel32
	RelocBranch26
)

// Section names the section a relocation's address is relative to.
type Section int

const (
	SectionText Section = iota
	SectionData
	SectionAddrTable
)

// SymbolUse is one relocation: at Address (within Section), apply Kind
// against the symbol named by SymbolIndex (an index into BinModule's
// combined defined+undefined symbol table) plus Addend.
type SymbolUse struct {
	Address     int64
	Addend      int64
	SymbolIndex int
	Kind        RelocKind
	Section     Section
}

// UnwindOpKind mirrors mcode.UnwindOpKind at the binary-encoding level,
// i.e. after each step's abstract offset/register has become a
// concrete encoded value understood by the target unwind format.
type UnwindOpKind int

const (
	UnwindPushReg UnwindOpKind = iota
	UnwindAllocStack
	UnwindSetFramePointer
)

// BinUnwindOp is one encoded prologue step.
type BinUnwindOp struct {
	Kind   UnwindOpKind
	Offset int64
	Reg    uint8
	Size   int64
}

// BinUnwindInfo is one function's complete encoded unwind record.
type BinUnwindInfo struct {
	FuncSymbolIndex int
	Ops             []BinUnwindOp
	FrameSize       int64
}

// BinModule is a fully-encoded compilation unit: raw section bytes plus
// the symbol table, relocations, and unwind records an
// internal/objfile builder assembles into a concrete container.
type BinModule struct {
	Text []byte
	Data []byte

	SymbolNames []string // combined defined+undefined table, index-addressed by SymbolUse.SymbolIndex
	SymbolDefs  []SymbolDef
	SymbolUses  []SymbolUse
	UnwindInfo  []BinUnwindInfo

	// DrectveData carries PE linker directives (e.g. "/EXPORT:foo"),
	// empty on non-Windows targets.
	DrectveData []byte
	// BnjatblData is the serialized address-table section (see
	// internal/jit); neither encoder sets it, so it is empty unless the
	// caller fills it in.
	BnjatblData []byte
}

// SymbolTable is a small builder helper both target encoders share: it
// interns symbol names so SymbolUse.SymbolIndex references are stable
// even when the same external symbol (e.g. a libc callee) is used from
// many call sites.
type SymbolTable struct {
	names []string
	index map[string]int
}

// Intern returns name's stable index, adding it to the table if this
// is the first reference.
func (t *SymbolTable) Intern(name string) int {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	i := len(t.names)
	t.names = append(t.names, name)
	t.index[name] = i
	return i
}

// Names returns the interned names in index order.
func (t *SymbolTable) Names() []string { return t.names }
