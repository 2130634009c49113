// Package riscv generates RV32GC text assembly from a validated syntax
// tree. The generator owns the temporary register pool, the stack frame
// layout, label allocation and the lowering of structured control flow.
// RISC-V has a downward growing stack; frames are addressed through fp.

package riscv

import (
	"strings"

	"rvcc/src/ir"
	"rvcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// reg names a machine register.
type reg int

// labelKind differentiates the label families of the generator.
type labelKind int

// label is a printable assembly label.
type label struct {
	kind labelKind
	num  int
}

// lvalueKind differentiates addressable locations.
type lvalueKind int

// lvalue locates an object: a stack slot relative to a base register or a
// machine register.
type lvalue struct {
	kind    lvalueKind
	baseReg reg       // Base register of stack lvalues.
	displ   int       // Byte displacement of stack lvalues.
	regNum  reg       // Register of register lvalues.
	typ     ir.TypeID // Value type.
}

// rvalueKind differentiates computed values.
type rvalueKind int

// rvalue is the result of lowering an expression: a constant, a value in a
// register or nothing.
type rvalue struct {
	kind       rvalueKind
	typ        ir.TypeID // Value type.
	fromLvalue bool      // True when the register is borrowed from a named lvalue.
	reg        reg       // Register holding the value.
	ival       int       // Integer constant value.
	fval       float64   // Floating constant value.
	strIndex   int       // String table index of string constants.
}

// layoutInfo records the array layout facts of a declared identifier.
type layoutInfo struct {
	elem      ir.TypeID // Element type.
	declCount int       // Declared element count of the outer dimension.
}

// encoder holds the whole state of one code generation run. It is threaded
// through every emit function; there is no module level state.
type encoder struct {
	ctx *ir.Context
	wr  *util.Writer // Current sink; a body buffer while inside a function.
	out *util.Writer // The main output.

	maxDispl    int // Maximum frame displacement seen in the current function.
	scopeDispl  int // Displacement cursor of the current scope.
	globalDispl int // Displacement cursor of the global area, gp relative.

	displ   map[ir.IdentID]lvalue     // Identifier displacement records.
	layouts map[ir.IdentID]layoutInfo // Array layout records.

	registers [tempRegAmount + tempFloatRegAmount]bool // Busy flags of the temporary banks.

	labelNum      int // Monotonic label counter.
	caseLabelNum  int // Monotonic case label counter of the translation unit.
	switchCounter int // Monotonic switch counter of the translation unit.

	labelIfTrue   label // Inherited branch target of a true condition.
	labelIfFalse  label // Inherited branch target of a false condition.
	labelBreak    label // Break target of the enclosing construct.
	labelContinue label // Continue target of the enclosing loop.

	curFuncIdent ir.IdentID   // Identifier of the function being generated.
	globalInit   *util.Writer // Staged initialisation code of global variables.
	inGlobal     bool         // True while laying out file scope variables.
}

// ---------------------
// ----- Constants -----
// ---------------------

// Machine registers. The integer bank first, then the floating bank.
const (
	zero reg = iota
	ra
	sp
	gp
	tp
	fp

	a0
	a1
	a2
	a3
	a4
	a5
	a6
	a7

	t0
	t1
	t2
	t3
	t4
	t5
	t6

	s0
	s1
	s2
	s3
	s4
	s5
	s6
	s7
	s8
	s9
	s10
	s11

	fa0
	fa1
	fa2
	fa3
	fa4
	fa5
	fa6
	fa7

	ft0
	ft1
	ft2
	ft3
	ft4
	ft5
	ft6
	ft7
	ft8
	ft9
	ft10
	ft11

	fs0
	fs1
	fs2
	fs3
	fs4
	fs5
	fs6
	fs7
	fs8
	fs9
	fs10
	fs11
)

// regNames is the print form of every register.
var regNames = [...]string{
	"zero", "ra", "sp", "gp", "tp", "fp",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"fa0", "fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7",
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7", "ft8", "ft9", "ft10", "ft11",
	"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7", "fs8", "fs9", "fs10", "fs11",
}

// Label kinds.
const (
	labelMain labelKind = iota
	labelFunc
	labelNext
	labelFuncEnd
	labelString
	labelThen
	labelElse
	labelEnd
	labelBeginCycle
	labelCase
	labelCaseCondition
	labelDefault
)

// labelPrefixes is the print form of every label kind.
var labelPrefixes = [...]string{
	"main", "FUNC", "NEXT", "FUNCEND", "STRING", "THEN", "ELSE", "END",
	"BEGIN_CYCLE", "CASE", "CASE_CONDITION", "DEFAULT",
}

// Lvalue and rvalue kinds.
const (
	lvalueStack lvalueKind = iota
	lvalueRegister
)

const (
	rvalueConst rvalueKind = iota
	rvalueRegister
	rvalueVoid
)

const (
	wordLength         = 4  // Data word size in bytes.
	tempRegAmount      = 7  // Temporary integer registers t0-t6.
	tempFloatRegAmount = 12 // Temporary floating registers ft0-ft11.
	preservedRegAmount = 12 // Callee saved integer registers s0-s11.
	preservedFpAmount  = 12 // Callee saved floating registers fs0-fs11.
	argRegAmount       = 8  // Argument registers per bank.

	raSize = 4 // Bytes used to save ra.
	spSize = 4 // Bytes used to save the old fp.

	// funcDisplPreserved is the fixed preserved area of every frame:
	// ra, old fp, s0-s11 and fs0-fs11.
	funcDisplPreserved = raSize + spSize + preservedRegAmount*wordLength + preservedFpAmount*2*wordLength

	// 12-bit immediates cannot exceed these values.
	maxImm = 2047
	minImm = -2048

	// switchTableThreshold selects the runtime dispatch table over the
	// branch chain.
	switchTableThreshold = 8
)

// rvalueVoidResult is the result of void expressions.
var rvalueVoidResult = rvalue{kind: rvalueVoid}

// ---------------------
// ----- Functions -----
// ---------------------

// String returns the print form of the register r.
func (r reg) String() string {
	return regNames[r]
}

// isFloatReg reports whether r belongs to the floating bank.
func (r reg) isFloatReg() bool {
	return r >= fa0
}

// String returns the print form of the label l. The main label carries no
// number.
func (l label) String() string {
	if l.kind == labelMain {
		return labelPrefixes[labelMain]
	}
	sb := strings.Builder{}
	sb.WriteString(labelPrefixes[l.kind])
	sb.WriteString(itoa(l.num))
	return sb.String()
}

// itoa formats a small non-negative label number.
func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i1 := len(buf)
	neg := v < 0
	if neg {
		v = -v
	}
	for v > 0 {
		i1--
		buf[i1] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i1--
		buf[i1] = '-'
	}
	return string(buf[i1:])
}

// GenRiscv generates RV32GC assembly for the translation unit into wr.
// The syntax tree must have passed the expression builder without errors.
func GenRiscv(opt util.Options, ctx *ir.Context, unit ir.Node, wr *util.Writer) error {
	globalInit := util.NewBuffer()
	enc := encoder{
		ctx:          ctx,
		wr:           wr,
		out:          wr,
		displ:        map[ir.IdentID]lvalue{},
		layouts:      map[ir.IdentID]layoutInfo{},
		labelNum:     1,
		caseLabelNum: 1,
		globalInit:   &globalInit,
	}

	enc.stringsDeclaration()
	enc.pregen(opt)
	enc.standardFunctions()

	// Global variables are laid out first so that every function sees the
	// complete gp relative area; their initialisation code is staged and
	// flushed into the entry of main.
	nd := ctx.Nodes
	for i1 := 0; i1 < nd.ChildAmount(unit); i1++ {
		switch decl := nd.Child(unit, i1); nd.Kind(decl) {
		case ir.DeclVar:
			enc.emitGlobalDeclaration(decl)
		case ir.StmtDecl:
			for i2 := 0; i2 < nd.ChildAmount(decl); i2++ {
				enc.emitGlobalDeclaration(nd.Child(decl, i2))
			}
		}
	}
	for i1 := 0; i1 < nd.ChildAmount(unit); i1++ {
		if decl := nd.Child(unit, i1); nd.Kind(decl) == ir.DeclFunc {
			enc.emitFunctionDefinition(decl)
			enc.wr.Write("\n")
		}
	}

	enc.postgen()
	return nil
}

// lockRegister marks a temporary register as busy. Non-temporary registers
// are already owned by the calling convention and are left alone.
func (enc *encoder) lockRegister(r reg) {
	if r >= t0 && r <= t6 {
		enc.registers[r-t0] = true
	} else if r >= ft0 && r <= ft11 {
		enc.registers[int(r-ft0)+tempRegAmount] = true
	}
}

// getRegister takes the first free temporary integer register.
func (enc *encoder) getRegister() reg {
	for i1 := 0; i1 < tempRegAmount; i1++ {
		if !enc.registers[i1] {
			enc.registers[i1] = true
			return t0 + reg(i1)
		}
	}
	// Pool exhausted: malformed tree or a leak. Continue best effort.
	enc.ctx.Rep.Error(ir.ErrNodeUnexpected, ir.Loc{})
	return t6
}

// getFloatRegister takes the first free temporary floating register.
func (enc *encoder) getFloatRegister() reg {
	for i1 := 0; i1 < tempFloatRegAmount; i1++ {
		if !enc.registers[tempRegAmount+i1] {
			enc.registers[tempRegAmount+i1] = true
			return ft0 + reg(i1)
		}
	}
	enc.ctx.Rep.Error(ir.ErrNodeUnexpected, ir.Loc{})
	return ft11
}

// freeRegister releases a temporary register. Registers outside the
// temporary banks are never pool managed.
func (enc *encoder) freeRegister(r reg) {
	if r >= t0 && r <= t6 {
		enc.registers[r-t0] = false
	} else if r >= ft0 && r <= ft11 {
		enc.registers[int(r-ft0)+tempRegAmount] = false
	}
}

// freeRvalue releases the register held by rval. Rvalues borrowed from
// lvalues own nothing and freeing them is a no-op.
func (enc *encoder) freeRvalue(rval rvalue) {
	if rval.kind == rvalueRegister && !rval.fromLvalue {
		enc.freeRegister(rval.reg)
	}
}

// typeSize returns the byte size of a value of type t: structures are the
// sum of their member sizes, floating values occupy two words, arrays are
// represented by a pointer to their first element.
func (enc *encoder) typeSize(t ir.TypeID) int {
	tt := enc.ctx.Types
	if tt.IsStructure(t) {
		size := 0
		for i1 := 0; i1 < tt.MemberAmount(t); i1++ {
			size += enc.typeSize(tt.MemberType(t, i1))
		}
		return size
	}
	if tt.IsFloating(t) {
		return 2 * wordLength
	}
	return wordLength
}

// newLabelNum allocates the next structured control flow label number.
func (enc *encoder) newLabelNum() int {
	n := enc.labelNum
	enc.labelNum++
	return n
}

// pregen emits the assembly preamble.
func (enc *encoder) pregen(opt util.Options) {
	name := opt.Src
	if name == "" {
		name = "test.c"
	}
	enc.wr.Write("\t.text\n")
	enc.wr.Write("\t.attribute 4, 16\n")
	enc.wr.Write("\t.file \"%s\"\n", name)
	enc.wr.Write("\t.globl main\n")
	enc.wr.Write("\t.p2align\t1\n")
	enc.wr.Write("\t.type main,@function\n")
}

// standardFunctions emits the format constants of the built-in print
// family.
func (enc *encoder) standardFunctions() {
	enc.wr.Write(".s:\n\t.ascii \"%%s\\0\"\n")
	enc.wr.Write(".i:\n\t.ascii \"%%i\\0\"\n")
	enc.wr.Write(".f:\n\t.ascii \"%%f\\0\"\n")
	enc.wr.Write(".b:\n\t.ascii \"%%b\\0\"\n")
	enc.wr.Write(".printid:\n\t.ascii \"%%i \\0\"\n")
}

// stringsDeclaration emits one label per string literal. A literal holding
// format specifiers is split at each specifier into sub labels indexed by
// n + k * total, so that printf can print one slice per argument.
func (enc *encoder) stringsDeclaration() {
	amount := enc.ctx.Strings.Amount()
	for i1 := 0; i1 < amount; i1++ {
		pieces := splitFormat(enc.ctx.Strings.Get(i1))
		for i2, e2 := range pieces {
			lbl := label{kind: labelString, num: i1 + i2*amount}
			enc.wr.Label(lbl.String())
			enc.wr.Write("\t.ascii \"%s\\0\"\n", escapeAscii(e2))
		}
	}
}

// splitFormat splits a format string after each % specifier. Every piece
// except possibly the last ends with one specifier.
func splitFormat(s string) []string {
	pieces := make([]string, 0, 2)
	start := 0
	for i1 := 0; i1 < len(s); i1++ {
		if s[i1] == '%' && i1+1 < len(s) {
			pieces = append(pieces, s[start:i1+2])
			i1++
			start = i1 + 1
		}
	}
	pieces = append(pieces, s[start:])
	return pieces
}

// formatArgAmount returns the number of % specifiers in a format string.
func formatArgAmount(s string) int {
	n := 0
	for i1 := 0; i1 < len(s); i1++ {
		if s[i1] == '%' && i1+1 < len(s) {
			n++
			i1++
		}
	}
	return n
}

// escapeAscii escapes a string for an .ascii directive.
func escapeAscii(s string) string {
	sb := strings.Builder{}
	for i1 := 0; i1 < len(s); i1++ {
		switch c := s[i1]; c {
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		case 0:
			sb.WriteString("\\0")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// postgen emits the assembly epilogue.
func (enc *encoder) postgen() {
	enc.wr.Write(".Lfunc_end0:\n")
	enc.wr.Write("\t.size\tmain, .Lfunc_end0-main\n")
	enc.wr.Write("\t.section\t\".note.GNU-stack\",\"\",@progbits\n")
}
