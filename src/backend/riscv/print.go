// print.go provides the lowering of the built-in functions: the printf
// family, the string helpers and the libm calls. Built-ins are selected by
// kind, never by identifier number.

package riscv

import "rvcc/src/ir"

// ---------------------
// ----- Functions -----
// ---------------------

// spillTemps backs up the busy temporaries ahead of a runtime call and
// returns the busy snapshot.
func (enc *encoder) spillTemps() [tempRegAmount + tempFloatRegAmount]bool {
	busy := enc.registers
	enc.wr.Ins2imm("addi", sp.String(), sp.String(), -tempSpillArea)
	for i1, e1 := range busy {
		if !e1 {
			continue
		}
		if i1 < tempRegAmount {
			enc.wr.LoadStore("sw", (t0 + reg(i1)).String(), spillSlot(i1), sp.String())
		} else {
			enc.wr.LoadStore("fsd", (ft0 + reg(i1-tempRegAmount)).String(), spillSlot(i1), sp.String())
		}
	}
	return busy
}

// restoreTemps reloads the temporaries saved by spillTemps.
func (enc *encoder) restoreTemps(busy [tempRegAmount + tempFloatRegAmount]bool) {
	for i1, e1 := range busy {
		if !e1 {
			continue
		}
		if i1 < tempRegAmount {
			enc.wr.LoadStore("lw", (t0 + reg(i1)).String(), spillSlot(i1), sp.String())
		} else {
			enc.wr.LoadStore("fld", (ft0 + reg(i1-tempRegAmount)).String(), spillSlot(i1), sp.String())
		}
	}
	enc.wr.Ins2imm("addi", sp.String(), sp.String(), tempSpillArea)
}

// emitBuiltinCall dispatches a call of a predeclared function.
func (enc *encoder) emitBuiltinCall(kind ir.BuiltinKind, n ir.Node) rvalue {
	switch kind {
	case ir.BuiltinPrintf:
		return enc.emitPrintfExpression(n)

	case ir.BuiltinPrintid:
		return enc.emitPrintTemplate(n, ".printid")

	case ir.BuiltinPrint:
		return enc.emitPrintTemplate(n, ".i")

	case ir.BuiltinStrcat, ir.BuiltinStrncpy:
		return enc.emitStringBuiltin(kind, n)

	case ir.BuiltinAbs, ir.BuiltinFabs:
		return enc.emitAbs(enc.emitExpression(enc.ctx.Nodes.Child(n, 1)))

	default:
		return enc.emitMathBuiltin(kind, n)
	}
}

// loadFormatAddress loads the address of a format label into a0.
func (enc *encoder) loadFormatAddress(name string) {
	enc.wr.Write("\tlui\ta5, %%hi(%s)\n", name)
	enc.wr.Write("\taddi\ta0, a5, %%lo(%s)\n", name)
}

// emitPrintfExpression lowers a printf call. The interned format string was
// split at its specifiers into sub labels; each argument loads its slice
// address into a0 and its value into a1, floating values bit-copied across,
// and the trailing slice prints last. Array arguments print element-wise
// using the declared element count.
func (enc *encoder) emitPrintfExpression(n ir.Node) rvalue {
	nd := enc.ctx.Nodes
	format := nd.Child(n, 1)
	index := nd.StringIndex(format)
	amount := enc.ctx.Strings.Amount()
	argsAmount := nd.ChildAmount(n) - 2

	busy := enc.spillTemps()

	for i1 := 0; i1 < argsAmount; i1++ {
		arg := nd.Child(n, 2+i1)
		pieceLabel := label{kind: labelString, num: index + i1*amount}

		if nd.Kind(arg) == ir.ExprIdentifier && enc.ctx.Types.IsArray(nd.TypeOf(arg)) {
			enc.emitPrintfArray(arg, pieceLabel)
			continue
		}

		value := enc.emitExpression(arg)
		if enc.ctx.Types.IsFloating(value.typ) {
			staged := enc.loadIfConst(value)
			enc.wr.Ins2("fmv.x.d", a1.String(), staged.reg.String())
			enc.freeRvalue(staged)
		} else {
			enc.emitMoveRvalueToRegister(a1, value)
			enc.freeRvalue(value)
		}

		enc.loadFormatAddress(pieceLabel.String())
		enc.wr.Ins1("call", "printf")
	}

	// The trailing slice after the last consumed specifier.
	tail := label{kind: labelString, num: index + argsAmount*amount}
	enc.loadFormatAddress(tail.String())
	enc.wr.Ins1("call", "printf")

	enc.restoreTemps(busy)
	return rvalueVoidResult
}

// emitPrintfArray prints every element of a declared array with the same
// format slice. The element pointer reloads from the variable's slot per
// element because the call clobbers the temporaries.
func (enc *encoder) emitPrintfArray(arg ir.Node, pieceLabel label) {
	nd := enc.ctx.Nodes
	id := nd.IdentOf(arg)
	slot := enc.displacementsGet(id)
	layout := enc.layouts[id]
	elemSize := enc.typeSize(layout.elem)
	isFloating := enc.ctx.Types.IsFloating(layout.elem)

	for i1 := 0; i1 < layout.declCount; i1++ {
		r := enc.getRegister()
		enc.wr.LoadStore("lw", r.String(), slot.displ, slot.baseReg.String())
		if isFloating {
			f := enc.getFloatRegister()
			enc.wr.LoadStore("fld", f.String(), -i1*elemSize, r.String())
			enc.wr.Ins2("fmv.x.d", a1.String(), f.String())
			enc.freeRegister(f)
		} else {
			enc.wr.LoadStore("lw", a1.String(), -i1*elemSize, r.String())
		}
		enc.freeRegister(r)

		enc.loadFormatAddress(pieceLabel.String())
		enc.wr.Ins1("call", "printf")
	}
}

// emitPrintTemplate lowers print and printid through one of the fixed
// format templates.
func (enc *encoder) emitPrintTemplate(n ir.Node, format string) rvalue {
	nd := enc.ctx.Nodes
	busy := enc.spillTemps()

	value := enc.emitExpression(nd.Child(n, 1))
	if enc.ctx.Types.IsFloating(value.typ) {
		staged := enc.loadIfConst(value)
		enc.wr.Ins2("fmv.x.d", a1.String(), staged.reg.String())
		enc.freeRvalue(staged)
		format = ".f"
	} else {
		enc.emitMoveRvalueToRegister(a1, value)
		enc.freeRvalue(value)
	}

	enc.loadFormatAddress(format)
	enc.wr.Ins1("call", "printf")

	enc.restoreTemps(busy)
	return rvalueVoidResult
}

// emitStringBuiltin lowers strcat and strncpy through the C runtime.
func (enc *encoder) emitStringBuiltin(kind ir.BuiltinKind, n ir.Node) rvalue {
	nd := enc.ctx.Nodes
	busy := enc.spillTemps()

	argsAmount := nd.ChildAmount(n) - 1
	for i1 := 0; i1 < argsAmount && i1 < 3; i1++ {
		value := enc.loadIfConst(enc.emitExpression(nd.Child(n, 1+i1)))
		enc.emitMoveRvalueToRegister(a0+reg(i1), rvalue{
			kind: rvalueRegister,
			typ:  value.typ,
			reg:  value.reg,
		})
		enc.freeRvalue(value)
	}

	name := "strcat"
	if kind == ir.BuiltinStrncpy {
		name = "strncpy"
	}
	enc.wr.Ins1("call", name)

	result := rvalue{kind: rvalueRegister, typ: nd.TypeOf(n), reg: enc.getRegister()}
	enc.wr.Ins2("mv", result.reg.String(), a0.String())

	enc.restoreTemps(busy)
	return result
}

// mathBuiltinNames maps the libm built-ins to their runtime symbols.
var mathBuiltinNames = map[ir.BuiltinKind]string{
	ir.BuiltinAsin:  "asin",
	ir.BuiltinCos:   "cos",
	ir.BuiltinSin:   "sin",
	ir.BuiltinExp:   "exp",
	ir.BuiltinLog:   "log",
	ir.BuiltinLog10: "log10",
	ir.BuiltinSqrt:  "sqrt",
}

// emitMathBuiltin lowers a transcendental call: the operand moves to fa0
// and the result comes back in fa0.
func (enc *encoder) emitMathBuiltin(kind ir.BuiltinKind, n ir.Node) rvalue {
	name, ok := mathBuiltinNames[kind]
	if !ok {
		enc.ctx.Rep.Error(ir.ErrNodeUnexpected, enc.ctx.Nodes.Begin(n))
		return rvalueVoidResult
	}

	busy := enc.spillTemps()

	value := enc.toFloat(enc.emitExpression(enc.ctx.Nodes.Child(n, 1)))
	enc.emitMoveRvalueToRegister(fa0, value)
	enc.freeRvalue(value)

	enc.wr.Ins1("call", name)

	result := rvalue{kind: rvalueRegister, typ: ir.Floating, reg: enc.getFloatRegister()}
	enc.wr.Ins2("fmv.d", result.reg.String(), fa0.String())

	enc.restoreTemps(busy)
	return result
}
