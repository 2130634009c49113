// This file contains the lowering of declarations, function frames and
// calls. Every frame saves ra, the old fp and the full callee saved banks;
// the prologue frame size is patched in after the body is generated into a
// secondary buffer.

package riscv

import (
	"rvcc/src/ir"
	"rvcc/src/util"
)

// ---------------------
// ----- Functions -----
// ---------------------

// displacementsAdd allocates the location of a newly declared identifier
// and records it: fp relative and negative for locals, gp relative and
// non-negative for globals.
func (enc *encoder) displacementsAdd(id ir.IdentID) lvalue {
	typ := enc.ctx.Idents.TypeOf(id)
	size := enc.typeSize(typ)

	var value lvalue
	if enc.inGlobal {
		value = lvalue{kind: lvalueStack, baseReg: gp, displ: enc.globalDispl, typ: typ}
		enc.globalDispl += size
	} else {
		enc.scopeDispl += size
		if enc.scopeDispl > enc.maxDispl {
			enc.maxDispl = enc.scopeDispl
		}
		value = lvalue{kind: lvalueStack, baseReg: fp, displ: -enc.scopeDispl, typ: typ}
	}
	enc.displ[id] = value
	return value
}

// displacementsSet records a known location for an identifier.
func (enc *encoder) displacementsSet(id ir.IdentID, value lvalue) {
	enc.displ[id] = value
}

// displacementsGet returns the recorded location of an identifier.
func (enc *encoder) displacementsGet(id ir.IdentID) lvalue {
	value, ok := enc.displ[id]
	if !ok {
		enc.ctx.Rep.Error(ir.ErrNodeUnexpected, ir.Loc{})
		return lvalue{kind: lvalueStack, baseReg: fp, typ: enc.ctx.Idents.TypeOf(id)}
	}
	return value
}

// emitGlobalDeclaration lays out a file scope variable and stages its
// initialisation code for the entry of main.
func (enc *encoder) emitGlobalDeclaration(n ir.Node) {
	old := enc.wr
	enc.wr = enc.globalInit
	enc.inGlobal = true
	enc.emitVariableDeclaration(n)
	enc.inGlobal = false
	enc.wr = old
}

// emitVariableDeclaration lowers a variable declaration.
func (enc *encoder) emitVariableDeclaration(n ir.Node) {
	nd := enc.ctx.Nodes
	id := nd.IdentOf(n)
	typ := enc.ctx.Idents.TypeOf(id)

	if enc.ctx.Types.IsArray(typ) {
		enc.emitArrayDeclaration(n)
		return
	}

	variable := enc.displacementsAdd(id)
	if !nd.HasInit(n) {
		return
	}

	initializer := nd.Init(n)
	if enc.ctx.Types.IsStructure(typ) {
		result := enc.emitStructAssignment(variable, initializer)
		enc.freeRvalue(result)
		return
	}

	value := enc.emitExpression(initializer)
	enc.emitStoreOfRvalue(variable, value)
	enc.freeRvalue(value)
}

// boundValue returns the constant element count of an array dimension,
// falling back to the initializer size for empty bounds.
func (enc *encoder) boundValue(bound, init ir.Node, dim int) int {
	nd := enc.ctx.Nodes
	if bound != 0 && nd.IsLiteral(bound) {
		return nd.IntValue(bound)
	}
	if bound == 0 && init != 0 {
		// Infer the bound from the initializer list.
		sub := init
		for i1 := 0; i1 < dim; i1++ {
			if nd.ChildAmount(sub) == 0 {
				return 0
			}
			sub = nd.Child(sub, 0)
		}
		return nd.ChildAmount(sub)
	}
	enc.ctx.Rep.Error(ir.ErrNodeUnexpected, nd.Begin(orBroken(bound)))
	return 1
}

// orBroken guards location lookups of possibly absent nodes.
func orBroken(nd ir.Node) ir.Node {
	if nd == 0 {
		return ir.Broken
	}
	return nd
}

// emitArrayDeclaration lays out an array: the slot of the variable holds a
// pointer to element zero, the size word sits one word above element zero
// and the elements grow downwards. Inner dimensions store one pointer per
// element of the outer dimension.
func (enc *encoder) emitArrayDeclaration(n ir.Node) {
	nd := enc.ctx.Nodes
	id := nd.IdentOf(n)
	typ := enc.ctx.Idents.TypeOf(id)

	var init ir.Node
	if nd.HasInit(n) {
		init = nd.Init(n)
	}

	counts := make([]int, nd.BoundsAmount(n))
	for i1 := range counts {
		counts[i1] = enc.boundValue(nd.Bound(n, i1), init, i1)
	}

	slot := enc.displacementsAdd(id)
	enc.layouts[id] = layoutInfo{elem: enc.ctx.Types.Elem(typ), declCount: counts[0]}
	enc.allocArray(slot.baseReg, slot.displ, typ, counts, init)
}

// allocBlock reserves size bytes of the current area and returns the
// displacement one past the highest byte.
func (enc *encoder) allocBlock(size int) int {
	if enc.inGlobal {
		low := enc.globalDispl
		enc.globalDispl += size
		return low + size
	}
	enc.scopeDispl += size
	if enc.scopeDispl > enc.maxDispl {
		enc.maxDispl = enc.scopeDispl
	}
	return -enc.scopeDispl + size
}

// allocArray reserves and wires one array dimension, recursing into inner
// dimensions and storing initializer values.
func (enc *encoder) allocArray(base reg, slotDispl int, typ ir.TypeID, counts []int, init ir.Node) {
	nd := enc.ctx.Nodes
	tt := enc.ctx.Types
	elemType := tt.Elem(typ)

	elemSize := enc.typeSize(elemType)
	count := counts[0]
	total := wordLength + count*elemSize

	high := enc.allocBlock(total)
	sizeWordDispl := high - wordLength
	elemZeroDispl := sizeWordDispl - elemSize

	// Store the element count one word above element zero.
	r := enc.getRegister()
	enc.wr.Write("\tli\t%s, %d\n", r, count)
	enc.wr.LoadStore("sw", r.String(), sizeWordDispl, base.String())
	enc.freeRegister(r)

	// Store the pointer to element zero in the variable's slot.
	r = enc.getRegister()
	enc.wr.Ins2imm("addi", r.String(), base.String(), elemZeroDispl)
	enc.wr.LoadStore("sw", r.String(), slotDispl, base.String())
	enc.freeRegister(r)

	if len(counts) > 1 {
		// Each element of this dimension points at an inner array.
		for i1 := 0; i1 < count; i1++ {
			var sub ir.Node
			if init != 0 && i1 < nd.ChildAmount(init) {
				sub = nd.Child(init, i1)
			}
			enc.allocArray(base, elemZeroDispl-i1*elemSize, elemType, counts[1:], sub)
		}
		return
	}

	if init == 0 {
		return
	}
	for i1 := 0; i1 < nd.ChildAmount(init) && i1 < count; i1++ {
		value := enc.emitExpression(nd.Child(init, i1))
		target := lvalue{kind: lvalueStack, baseReg: base, displ: elemZeroDispl - i1*elemSize, typ: elemType}
		enc.emitStoreOfRvalue(target, value)
		enc.freeRvalue(value)
	}
}

// paramOffsets returns the cumulative stack byte offset of every parameter
// of a function type, as seen from the caller's stack pointer at the call.
func (enc *encoder) paramOffsets(funcType ir.TypeID) []int {
	tt := enc.ctx.Types
	amount := tt.ParamAmount(funcType)
	offsets := make([]int, amount+1)
	displ := 0
	for i1 := 0; i1 < amount; i1++ {
		offsets[i1] = displ
		size := enc.typeSize(tt.Param(funcType, i1))
		if size < wordLength {
			size = wordLength
		}
		displ += size
	}
	offsets[amount] = displ
	return offsets
}

// emitFunctionDefinition generates one function: prologue, the body from a
// secondary buffer, and the epilogue behind the function end label.
func (enc *encoder) emitFunctionDefinition(n ir.Node) {
	nd := enc.ctx.Nodes
	id := nd.IdentOf(n)
	funcType := enc.ctx.Idents.TypeOf(id)
	name := enc.ctx.Idents.Name(id)
	isMain := name == "main"

	funcLabel := label{kind: labelFunc, num: int(id)}
	enc.wr.Label(funcLabel.String())
	if isMain {
		enc.wr.Label("main")
	}

	enc.curFuncIdent = id
	enc.maxDispl = 0
	enc.scopeDispl = 0

	// Preserved registers.
	enc.wr.LoadStore("sw", ra.String(), -raSize, sp.String())
	enc.wr.LoadStore("sw", fp.String(), -(raSize + spSize), sp.String())
	for i1 := 0; i1 < preservedRegAmount; i1++ {
		enc.wr.LoadStore("sw", (s0 + reg(i1)).String(), -(raSize + spSize + (i1+1)*wordLength), sp.String())
	}
	for i1 := 0; i1 < preservedFpAmount; i1++ {
		enc.wr.LoadStore("fsd", (fs0 + reg(i1)).String(),
			-(raSize + spSize + preservedRegAmount*wordLength + (i1+1)*2*wordLength), sp.String())
	}

	// Bind the parameters: the first eight of each bank live in argument
	// registers, the rest and structures on the stack at positive offsets.
	params := nd.ParamsOf(n)
	offsets := enc.paramOffsets(funcType)
	intArgs, floatArgs := 0, 0
	for i1, e1 := range params {
		typ := enc.ctx.Idents.TypeOf(e1)
		isFloating := enc.ctx.Types.IsFloating(typ)
		switch {
		case enc.ctx.Types.IsStructure(typ):
			enc.displacementsSet(e1, lvalue{
				kind:    lvalueStack,
				baseReg: fp,
				displ:   offsets[i1] + funcDisplPreserved + wordLength,
				typ:     typ,
			})
		case isFloating && floatArgs < argRegAmount:
			enc.displacementsSet(e1, lvalue{kind: lvalueRegister, regNum: fa0 + reg(floatArgs), typ: typ})
			floatArgs++
		case !isFloating && intArgs < argRegAmount:
			enc.displacementsSet(e1, lvalue{kind: lvalueRegister, regNum: a0 + reg(intArgs), typ: typ})
			intArgs++
		default:
			enc.displacementsSet(e1, lvalue{
				kind:    lvalueStack,
				baseReg: fp,
				displ:   offsets[i1] + funcDisplPreserved + wordLength,
				typ:     typ,
			})
		}
	}

	// Generate the body into a secondary buffer so the frame size can be
	// patched into the prologue.
	body := util.NewBuffer()
	old := enc.wr
	enc.wr = &body
	if isMain {
		enc.wr.WriteString(enc.globalInit.Detach())
	}
	enc.emitStatement(nd.Child(n, 0))
	enc.wr = old

	if res := enc.maxDispl % 8; res != 0 {
		enc.maxDispl += 8 - res
	}

	enc.wr.Ins2imm("addi", fp.String(), sp.String(), -(funcDisplPreserved + wordLength))
	enc.wr.Ins2imm("addi", sp.String(), fp.String(), -(wordLength + enc.maxDispl))
	enc.wr.WriteString(body.Detach())

	endLabel := label{kind: labelFuncEnd, num: int(id)}
	enc.wr.Label(endLabel.String())

	// Symmetric restore; the stack pointer leaves with its entry value.
	enc.wr.Ins2imm("addi", sp.String(), fp.String(), funcDisplPreserved+wordLength)
	for i1 := 0; i1 < preservedRegAmount; i1++ {
		enc.wr.LoadStore("lw", (s0 + reg(i1)).String(), -(raSize + spSize + (i1+1)*wordLength), sp.String())
	}
	for i1 := 0; i1 < preservedFpAmount; i1++ {
		enc.wr.LoadStore("fld", (fs0 + reg(i1)).String(),
			-(raSize + spSize + preservedRegAmount*wordLength + (i1+1)*2*wordLength), sp.String())
	}
	enc.wr.LoadStore("lw", fp.String(), -(raSize + spSize), sp.String())
	enc.wr.LoadStore("lw", ra.String(), -raSize, sp.String())
	enc.wr.Ins1("jr", ra.String())
}

// tempSpillArea is the stack space that backs up the temporary banks
// around a call.
const tempSpillArea = tempRegAmount*wordLength + tempFloatRegAmount*2*wordLength

// spillSlot returns the backup slot offset of temporary bank index i.
func spillSlot(i int) int {
	if i < tempRegAmount {
		return i * wordLength
	}
	return tempRegAmount*wordLength + (i-tempRegAmount)*2*wordLength
}

// emitCallExpression lowers a call. Arguments are evaluated left to right
// and staged through stack slots; a0 and fa0 load last so that nested
// calls cannot clobber them. Live temporaries are saved around the call.
func (enc *encoder) emitCallExpression(nd2 ir.Node) rvalue {
	nd := enc.ctx.Nodes
	callee := nd.Child(nd2, 0)
	funcRef := nd.IdentOf(callee)

	if kind := enc.ctx.Idents.Builtin(funcRef); kind != ir.BuiltinNone {
		return enc.emitBuiltinCall(kind, nd2)
	}

	funcType := nd.TypeOf(callee)
	returnType := enc.ctx.Types.Return(funcType)
	argsAmount := nd.ChildAmount(nd2) - 1
	offsets := enc.paramOffsets(funcType)

	// Back up the live temporaries.
	busy := enc.spillTemps()

	// Argument area: staging slots for the register bank plus the stack
	// passed parameters.
	displForParameters := (argsAmount+1)*2*wordLength + offsets[len(offsets)-1]
	if argsAmount >= 1 {
		enc.wr.Ins2imm("addi", sp.String(), sp.String(), -displForParameters)
	}

	stageBase := offsets[len(offsets)-1]
	for i1 := 0; i1 < argsAmount; i1++ {
		arg := nd.Child(nd2, 1+i1)
		value := enc.emitExpression(arg)

		var paramType ir.TypeID = value.typ
		if i1 < enc.ctx.Types.ParamAmount(funcType) {
			paramType = enc.ctx.Types.Param(funcType, i1)
		}

		if enc.ctx.Types.IsStructure(paramType) {
			// By value: element-wise copy into the callee's slots.
			address := enc.loadIfConst(value)
			size := enc.typeSize(paramType)
			for i2 := 0; i2 < size; i2 += wordLength {
				word := lvalue{kind: lvalueStack, baseReg: address.reg, displ: i2, typ: ir.Integer}
				proxy := enc.emitLoadOfLvalue(word)
				enc.wr.LoadStore("sw", proxy.reg.String(), offsets[i1]+i2, sp.String())
				enc.freeRvalue(proxy)
			}
			enc.freeRvalue(address)
			continue
		}

		if enc.ctx.Types.IsFloating(paramType) {
			value = enc.toFloat(value)
		}
		staged := enc.loadIfConst(value)
		if enc.ctx.Types.IsFloating(paramType) {
			enc.wr.LoadStore("fsd", staged.reg.String(), stageBase+(i1+1)*2*wordLength, sp.String())
		} else {
			enc.wr.LoadStore("sw", staged.reg.String(), stageBase+(i1+1)*2*wordLength, sp.String())
		}
		enc.freeRvalue(staged)
	}

	// Load the argument registers from the staging slots, a0 and fa0 last.
	intArgs, floatArgs := 0, 0
	type regLoad struct {
		target reg
		displ  int
		float  bool
	}
	loads := make([]regLoad, 0, argsAmount)
	for i1 := 0; i1 < argsAmount; i1++ {
		var paramType ir.TypeID = ir.Integer
		if i1 < enc.ctx.Types.ParamAmount(funcType) {
			paramType = enc.ctx.Types.Param(funcType, i1)
		}
		if enc.ctx.Types.IsStructure(paramType) {
			continue
		}
		if enc.ctx.Types.IsFloating(paramType) {
			if floatArgs < argRegAmount {
				loads = append(loads, regLoad{target: fa0 + reg(floatArgs), displ: stageBase + (i1+1)*2*wordLength, float: true})
			} else {
				enc.copyStackArg(stageBase+(i1+1)*2*wordLength, offsets[i1], 2)
			}
			floatArgs++
		} else {
			if intArgs < argRegAmount {
				loads = append(loads, regLoad{target: a0 + reg(intArgs), displ: stageBase + (i1+1)*2*wordLength, float: false})
			} else {
				enc.copyStackArg(stageBase+(i1+1)*2*wordLength, offsets[i1], 1)
			}
			intArgs++
		}
	}
	for i1 := len(loads) - 1; i1 >= 0; i1-- {
		if loads[i1].float {
			enc.wr.LoadStore("fld", loads[i1].target.String(), loads[i1].displ, sp.String())
		} else {
			enc.wr.LoadStore("lw", loads[i1].target.String(), loads[i1].displ, sp.String())
		}
	}

	funcLabel := label{kind: labelFunc, num: int(funcRef)}
	enc.wr.Write("\tjal\t%s\n", funcLabel)

	if argsAmount >= 1 {
		enc.wr.Ins2imm("addi", sp.String(), sp.String(), displForParameters)
	}

	// Move the result out of the return register before the temporaries
	// are restored, so nested code cannot clobber it.
	ret := rvalueVoidResult
	if returnType != ir.Void {
		if enc.ctx.Types.IsFloating(returnType) {
			r := enc.getFloatRegister()
			enc.wr.Ins2("fmv.d", r.String(), fa0.String())
			ret = rvalue{kind: rvalueRegister, typ: returnType, reg: r}
		} else {
			r := enc.getRegister()
			enc.wr.Ins2("mv", r.String(), a0.String())
			ret = rvalue{kind: rvalueRegister, typ: returnType, reg: r}
		}
	}

	enc.restoreTemps(busy)

	return ret
}

// copyStackArg moves a staged argument into its stack parameter slot.
func (enc *encoder) copyStackArg(from, to, words int) {
	r := enc.getRegister()
	for i1 := 0; i1 < words; i1++ {
		enc.wr.LoadStore("lw", r.String(), from+i1*wordLength, sp.String())
		enc.wr.LoadStore("sw", r.String(), to+i1*wordLength, sp.String())
	}
	enc.freeRegister(r)
}
