package backend

import (
	"rvcc/src/backend/riscv"
	"rvcc/src/ir"
	"rvcc/src/util"
)

// ---------------------
// ----- Functions -----
// ---------------------

// GenerateAssembler takes the validated syntax tree and generates output
// assembler code. RV32GC is the only output architecture.
func GenerateAssembler(opt util.Options, ctx *ir.Context, unit ir.Node, wr *util.Writer) error {
	return riscv.GenRiscv(opt, ctx, unit, wr)
}
