// Package jit is the in-process hot-reloader (C11): it watches a
// source tree, and on each change recompiles exactly the functions a
// running target process has registered in its address table, then
// patches them in live. Everything the pipeline's batch path treats as
// a concrete object-file container is bypassed here — the target
// process is patched directly from the raw encoder output, never
// through internal/objfile.
package jit

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/encode"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// debounceInterval is spec.md §5's "minimum-debounce interval of 500 ms
// per file": a second change to the same file within this window is
// dropped rather than triggering a second recompile.
const debounceInterval = 500 * time.Millisecond

// FileWatcher is the platform-specific directory-change source (spec.md
// §1 lists "directory-change watchers" among the out-of-scope external
// collaborators this package only consumes as an interface). A
// production implementation wraps fsnotify.Watcher (Windows
// ReadDirectoryChangesW / Linux inotify under the hood); tests supply a
// fake that feeds Events synchronously.
type FileWatcher interface {
	// Events yields one absolute path per filesystem write notification.
	// The channel is closed when the watch is torn down.
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// TargetProcess is the launched, debuggee process the hot-reloader
// patches (spec.md §4.8's "Target-process primitives", also explicitly
// out-of-scope platform code per spec.md §1: process spawning and
// memory-protection syscalls). Windows and Linux each get a concrete
// implementation outside this package (CreateProcess+VirtualAllocEx+
// WriteProcessMemory, or ptrace+mmap-via-syscall-injection,
// respectively); this package only ever calls through the interface.
type TargetProcess interface {
	// AllocExecutable reserves size bytes of R+W+X memory in the target
	// and returns its base address.
	AllocExecutable(size int) (uint64, error)
	// AllocData reserves size bytes of R+W memory in the target.
	AllocData(size int) (uint64, error)
	// WriteMemory copies data into the target at addr.
	WriteMemory(addr uint64, data []byte) error
	// ResolveAddrTableSection returns the base address of the running
	// target's `.bnjatbl` section (found via the module's PE/ELF/Mach-O
	// image, per spec.md §4.8's two platform recipes).
	ResolveAddrTableSection() (uint64, error)
	// Suspend halts every thread in the target so a patch cannot race a
	// concurrently executing call through the address table.
	Suspend() error
	// Resume un-suspends the target after a patch completes.
	Resume() error
}

// RecompileResult is what re-running the frontend, semantic analyzer,
// and SSA generator (collectively out-of-scope per spec.md §1, but
// their output is exactly what this package consumes) over the full
// project produces for one reload cycle.
type RecompileResult struct {
	// Module is the freshly analyzed SSA-IR for the whole project,
	// compiled with the address-table pass enabled (its AddrTable names
	// every hot-reloadable function's slot).
	Module *ssa.Module

	// Builders holds, for every function named in Module.AddrTable.Slots,
	// the ssa.Builder instance ssagen built it with — backend.Compiler
	// needs the builder itself (not just the resulting ssa.Function) to
	// resolve per-Value type/definition queries during lowering.
	Builders map[string]ssa.Builder
}

// Recompiler is the frontend+analyzer+ssagen pipeline, run fresh on
// every file-change event (spec.md §5: "the SIR unit is re-built from
// scratch on every reload — no mutation is shared across threads").
type Recompiler interface {
	Recompile(changedPath string) (*RecompileResult, error)
}

// Reloader owns the watch loop and orchestrates one patch cycle per
// debounced change, per spec.md §4.8/§5.
type Reloader struct {
	watcher    FileWatcher
	target     TargetProcess
	recompiler Recompiler
	backend    backend.Target

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewReloader returns a Reloader that lowers hot-reloaded functions
// with backendTarget. The target's code model is not checked here, and
// the selectors and encoders emit the same relative CALL/JMP forms for
// either code model (see backend.CodeModel).
func NewReloader(watcher FileWatcher, target TargetProcess, recompiler Recompiler, backendTarget backend.Target) *Reloader {
	return &Reloader{
		watcher:    watcher,
		target:     target,
		recompiler: recompiler,
		backend:    backendTarget,
		lastSeen:   make(map[string]time.Time),
	}
}

// Run processes watcher events until its channel is closed, applying
// the 500ms-per-file debounce and patching the target on every
// surviving change. It returns the first patch error encountered, or
// nil if the watcher closed cleanly.
func (r *Reloader) Run() error {
	for {
		select {
		case path, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}
			if !r.debounce(path) {
				continue
			}
			if err := r.reload(path); err != nil {
				return err
			}
		case err := <-r.watcher.Errors():
			if err != nil {
				return err
			}
		}
	}
}

// debounce reports whether path's change should trigger a reload: the
// first sighting always does, and any repeat within debounceInterval is
// dropped per spec.md §5's ordering rule.
func (r *Reloader) debounce(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if last, ok := r.lastSeen[path]; ok && now.Sub(last) < debounceInterval {
		return false
	}
	r.lastSeen[path] = now
	return true
}

// reload runs one full spec.md §4.8 patch cycle for a change to path.
func (r *Reloader) reload(path string) error {
	result, err := r.recompiler.Recompile(path)
	if err != nil {
		return fmt.Errorf("jit: recompile %s: %w", path, err)
	}
	if result.Module.AddrTable == nil || len(result.Module.AddrTable.Slots) == 0 {
		return nil // nothing in this project is hot-reloadable
	}

	if err := r.target.Suspend(); err != nil {
		return fmt.Errorf("jit: suspend target: %w", err)
	}
	defer r.target.Resume()

	tableAddr, err := r.target.ResolveAddrTableSection()
	if err != nil {
		return fmt.Errorf("jit: resolve .bnjatbl: %w", err)
	}

	for _, name := range result.Module.AddrTable.Slots {
		builder, ok := result.Builders[name]
		if !ok {
			continue // unchanged function, or not present in this compile
		}
		if err := r.patchFunction(name, builder, result.Module.AddrTable, tableAddr); err != nil {
			return fmt.Errorf("jit: patch %s: %w", name, err)
		}
	}
	return nil
}

// patchFunction lowers, encodes, allocates, and writes one function,
// then overwrites its address-table slot with the new entry point.
func (r *Reloader) patchFunction(name string, builder ssa.Builder, table *ssa.AddrTable, tableAddr uint64) error {
	compiler := backend.NewCompiler(r.backend.CreateSSALowerer())
	fn, err := compiler.Compile(name, builder)
	if err != nil {
		return fmt.Errorf("lower to mcode: %w", err)
	}

	r.backend.CreateMachinePassRunner()(fn)

	module := &mcode.Module{Functions: []*mcode.Function{fn}, AddrTableSlots: table.Slots}
	bm, err := r.backend.CreateRawEncoder()(module)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var codeAddr, dataAddr uint64
	if len(bm.Text) > 0 {
		if codeAddr, err = r.target.AllocExecutable(len(bm.Text)); err != nil {
			return fmt.Errorf("alloc executable: %w", err)
		}
	}
	if len(bm.Data) > 0 {
		if dataAddr, err = r.target.AllocData(len(bm.Data)); err != nil {
			return fmt.Errorf("alloc data: %w", err)
		}
	}

	if err := patchRelocations(bm, codeAddr, dataAddr); err != nil {
		return err
	}

	if len(bm.Text) > 0 {
		if err := r.target.WriteMemory(codeAddr, bm.Text); err != nil {
			return fmt.Errorf("write code: %w", err)
		}
	}
	if len(bm.Data) > 0 {
		if err := r.target.WriteMemory(dataAddr, bm.Data); err != nil {
			return fmt.Errorf("write data: %w", err)
		}
	}

	slot := table.SlotOf(name)
	if slot < 0 {
		return fmt.Errorf("function %s not registered in address table", name)
	}
	var slotValue [8]byte
	binary.LittleEndian.PutUint64(slotValue[:], codeAddr)
	// The slot write is 8-byte aligned, so spec.md §5 requires no torn-
	// read guard beyond the target architecture's native atomicity.
	return r.target.WriteMemory(tableAddr+uint64(slot)*8, slotValue[:])
}

// patchRelocations resolves every SymbolUse in bm that names a symbol
// defined within this same single-function encode (a self-recursive
// call, or a reference to the function's own locally emitted data) and
// bakes the resolved address directly into bm.Text/bm.Data. Any other
// symbol use, including a call to a different function (the selectors
// emit it as an ordinary direct-symbol call, address-table callee or
// not), is not resolved through the address table: it is reported as
// an error rather than left unpatched.
func patchRelocations(bm *encode.BinModule, codeAddr, dataAddr uint64) error {
	for _, use := range bm.SymbolUses {
		if use.SymbolIndex < 0 || use.SymbolIndex >= len(bm.SymbolNames) {
			return fmt.Errorf("relocation references out-of-range symbol index %d", use.SymbolIndex)
		}
		name := bm.SymbolNames[use.SymbolIndex]

		def, ok := findDef(bm, name)
		if !ok {
			return fmt.Errorf("unresolved symbol %q in hot-reloaded function (only symbols defined by this function are resolved)", name)
		}
		base := codeAddr
		if def.Kind == encode.SymDataLabel {
			base = dataAddr
		}
		target := base + uint64(def.Offset) + uint64(use.Addend)

		buf := sectionBytes(bm, use.Section)
		siteAddr := codeAddr // every relocation this function can still carry is within .text
		switch use.Kind {
		case encode.RelocAbs64:
			if int(use.Address)+8 > len(buf) {
				return fmt.Errorf("relocation at %d overruns section", use.Address)
			}
			binary.LittleEndian.PutUint64(buf[use.Address:], target)
		case encode.RelocBranch26:
			if int(use.Address)+4 > len(buf) {
				return fmt.Errorf("relocation at %d overruns section", use.Address)
			}
			disp := int64(target) - int64(siteAddr) - int64(use.Address)
			if disp%4 != 0 {
				return fmt.Errorf("branch26 relocation at %d has a non-word-aligned displacement", use.Address)
			}
			imm26 := uint32((disp/4)&0x3FFFFFF)
			word := binary.LittleEndian.Uint32(buf[use.Address:])
			word = (word &^ 0x3FFFFFF) | imm26
			binary.LittleEndian.PutUint32(buf[use.Address:], word)
		default:
			if int(use.Address)+4 > len(buf) {
				return fmt.Errorf("relocation at %d overruns section", use.Address)
			}
			disp := int32(int64(target) - int64(siteAddr) - int64(use.Address) - 4)
			binary.LittleEndian.PutUint32(buf[use.Address:], uint32(disp))
		}
	}
	return nil
}

func findDef(bm *encode.BinModule, name string) (encode.SymbolDef, bool) {
	for _, def := range bm.SymbolDefs {
		if def.Name == name {
			return def, true
		}
	}
	return encode.SymbolDef{}, false
}

func sectionBytes(bm *encode.BinModule, section encode.Section) []byte {
	if section == encode.SectionData {
		return bm.Data
	}
	return bm.Text
}

// EncodeAddrTable serializes names/slots into the little-endian wire
// format spec.md §4.8 defines:
//
//	u32 count
//	[count x (u32 name_len; bytes name)]
//	[count x u64 slot]
//
// This is what the batch compiler writes into the `.bnjatbl` section
// and what a TargetProcess implementation parses to locate each slot.
func EncodeAddrTable(names []string, slots []uint64) ([]byte, error) {
	if len(names) != len(slots) {
		return nil, fmt.Errorf("jit: %d names but %d slots", len(names), len(slots))
	}
	var buf []byte
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(names)))
	buf = append(buf, hdr[:]...)
	for _, name := range names {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(name)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, name...)
	}
	for _, slot := range slots {
		var slotBuf [8]byte
		binary.LittleEndian.PutUint64(slotBuf[:], slot)
		buf = append(buf, slotBuf[:]...)
	}
	return buf, nil
}

// DecodeAddrTable parses the wire format EncodeAddrTable produces back
// into parallel name/slot-value slices.
func DecodeAddrTable(data []byte) (names []string, slots []uint64, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("jit: address table truncated before count")
	}
	count := binary.LittleEndian.Uint32(data[:4])
	off := 4
	names = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			return nil, nil, fmt.Errorf("jit: address table truncated in name %d's length", i)
		}
		nameLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+nameLen > len(data) {
			return nil, nil, fmt.Errorf("jit: address table truncated in name %d's bytes", i)
		}
		names = append(names, string(data[off:off+nameLen]))
		off += nameLen
	}
	slots = make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+8 > len(data) {
			return nil, nil, fmt.Errorf("jit: address table truncated in slot %d", i)
		}
		slots = append(slots, binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}
	return names, slots, nil
}
