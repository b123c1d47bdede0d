// Package backend lowers SSA-IR (internal/ssa) into the target-
// independent machine-code IR (internal/mcode), via instruction
// selection (C7, Machine implementations under internal/backend/isa)
// followed by register allocation (C8, internal/backend/regalloc). This
// package and its Machine implementations must stay free of any
// banjo-lang source-level concept: by the time a function reaches
// Compiler.Compile it is pure SSA-IR, the same shape whether it was
// lowered from a function body or synthesized by the hot-reload
// address-table pass.
package backend
