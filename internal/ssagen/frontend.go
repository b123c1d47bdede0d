// Package ssagen lowers an analyzed SIR Unit (internal/sir, after
// internal/sir/analyzer has run) into SSA-IR (internal/ssa), one
// ssa.Function per sir.Decl of kind DeclFuncDef.
//
// The per-function lifecycle mirrors the teacher's frontend.Compiler:
// Init resets the builder and per-function state, LowerToSSA walks the
// body and leaves the result in the ssa.Builder the caller supplied.
package ssagen

import (
	"fmt"

	"github.com/banjoc/banjoc/internal/sir"
	"github.com/banjoc/banjoc/internal/ssa"
)

// Compiler lowers SIR function bodies to SSA-IR. One Compiler is reused
// for every function of a Unit; Init/LowerToSSA are called once per
// sir.Decl in turn, and each function's SSA is left in the ssa.Builder
// passed to Init. The module given to NewCompiler is stored but not
// written.
type Compiler struct {
	unit   *sir.Unit
	module *ssa.Module

	// Per-function state, reset by Init.
	builder  ssa.Builder
	declName string
	ret      sir.Type

	vars map[string]varInfo

	// loops tracks the continue/break targets for the innermost enclosing
	// loop(s), pushed/popped around LoopStmt/WhileStmt/ForStmt bodies.
	loops []loopTargets
}

type varInfo struct {
	variable ssa.Variable
	typ      sir.Type
}

type loopTargets struct {
	continueBlock ssa.BasicBlock
	breakBlock    ssa.BasicBlock
}

// NewCompiler returns a frontend Compiler lowering decls out of unit;
// module is kept on the Compiler but nothing is added to it.
func NewCompiler(unit *sir.Unit, module *ssa.Module) *Compiler {
	return &Compiler{unit: unit, module: module}
}

// Init resets c and its ssa.Builder for lowering the function body of
// decl (which must be a DeclFuncDef with a non-invalid Body).
func (c *Compiler) Init(decl *sir.Decl, builder ssa.Builder) {
	builder.Reset()
	c.builder = builder
	c.declName = decl.Name.Name
	c.ret = decl.ReturnType
	c.vars = make(map[string]varInfo, len(decl.Params))
	c.loops = c.loops[:0]
}

// LowerToSSA lowers decl's body into the ssa.Builder passed to Init,
// declaring one block parameter per SIR parameter and one SSA Variable
// per SIR local (VarStmt, parameter, loop-bound name).
func (c *Compiler) LowerToSSA(decl *sir.Decl) error {
	entry := c.builder.AllocateBasicBlock()
	c.builder.SetCurrentBlock(entry)

	for _, p := range decl.Params {
		st := sirTypeToSSA(p.Type)
		v := c.builder.DeclareVariable(st)
		val := entry.AddParam(c.builder, st)
		c.builder.DefineVariableInCurrentBB(v, val)
		c.vars[p.Name.Name] = varInfo{variable: v, typ: p.Type}
		c.builder.AnnotateValue(val, p.Name.Name)
	}

	c.builder.Seal(entry)

	if decl.Body == sir.HandleInvalid {
		return fmt.Errorf("ssagen: %s has no body to lower", c.declName)
	}
	term := c.lowerBlock(decl.Body)
	if !term {
		c.emitImplicitVoidReturn()
	}

	c.builder.Optimize()
	return nil
}

// sirTypeToSSA maps a finalized sir.Type to its ssa.Type representation.
// Aggregate SIR types (struct/union/enum/tuple/array) lower to Addr: by
// the time a value of such a type reaches an SSA operand it is always
// addressed through an ALLOCA/MEMBERPTR chain, never held by value in a
// register-sized SSA Value, matching spec.md's "aggregates are lowered
// via ALLOCA+MEMBERPTR, never passed by value in a register" rule.
func sirTypeToSSA(t sir.Type) ssa.Type {
	switch t.Kind {
	case sir.TypePrimitive:
		switch t.Prim {
		case sir.PrimI8, sir.PrimU8:
			return ssa.I8
		case sir.PrimI16, sir.PrimU16:
			return ssa.I16
		case sir.PrimI32, sir.PrimU32:
			return ssa.I32
		case sir.PrimI64, sir.PrimU64:
			return ssa.I64
		case sir.PrimF32:
			return ssa.F32
		case sir.PrimF64:
			return ssa.F64
		case sir.PrimBool, sir.PrimChar:
			return ssa.I8
		case sir.PrimAddr:
			return ssa.Addr
		}
	case sir.TypePointer, sir.TypeReference, sir.TypeOptional, sir.TypeFunc:
		return ssa.Addr
	case sir.TypeVoid:
		return ssa.TypeInvalidValue
	}
	// Struct/union/enum/tuple/array/closure/result/proto: addressed, never
	// loaded whole into a scalar SSA Value.
	return ssa.Addr
}
