// This file contains the lowering of conditions and structured control
// flow: if, while, do, for and switch statements. Conditions under a
// statement inherit a pair of branch target labels so that relational and
// logical subexpressions branch directly instead of materialising a 0/1.

package riscv

import "rvcc/src/ir"

// ---------------------
// ----- Functions -----
// ---------------------

// emitCondition lowers a condition so that control reaches the inherited
// true label when it holds and the inherited false label otherwise. The
// labels live on the encoder and are saved and restored around each
// statement; logical subexpressions override one side at a time so that
// short-circuiting branches directly instead of materialising a 0/1.
func (enc *encoder) emitCondition(n ir.Node) {
	nd := enc.ctx.Nodes

	if nd.Kind(n) == ir.ExprBinary {
		switch op := nd.BinaryOpOf(n); {
		case isRelational(op):
			enc.emitConditionRelation(n)
			return
		case op == ir.BinLogAnd:
			next := label{kind: labelThen, num: enc.newLabelNum()}
			oldTrue := enc.labelIfTrue
			enc.labelIfTrue = next
			enc.emitCondition(nd.Child(n, 0))
			enc.labelIfTrue = oldTrue
			enc.wr.Label(next.String())
			enc.emitCondition(nd.Child(n, 1))
			return
		case op == ir.BinLogOr:
			next := label{kind: labelElse, num: enc.newLabelNum()}
			oldFalse := enc.labelIfFalse
			enc.labelIfFalse = next
			enc.emitCondition(nd.Child(n, 0))
			enc.labelIfFalse = oldFalse
			enc.wr.Label(next.String())
			enc.emitCondition(nd.Child(n, 1))
			return
		}
	}

	if nd.Kind(n) == ir.ExprUnary && nd.UnaryOpOf(n) == ir.UnLogNot {
		enc.labelIfTrue, enc.labelIfFalse = enc.labelIfFalse, enc.labelIfTrue
		enc.emitCondition(nd.Child(n, 0))
		enc.labelIfTrue, enc.labelIfFalse = enc.labelIfFalse, enc.labelIfTrue
		return
	}

	// A plain scalar value: branch on its truth.
	value := enc.truthValue(enc.emitExpression(n))
	if value.kind == rvalueConst {
		if value.ival != 0 {
			enc.wr.Write("\tj\t%s\n", enc.labelIfTrue)
		} else {
			enc.wr.Write("\tj\t%s\n", enc.labelIfFalse)
		}
		return
	}
	enc.wr.Write("\tbnez\t%s, %s\n", value.reg, enc.labelIfTrue)
	enc.freeRvalue(value)
	enc.wr.Write("\tj\t%s\n", enc.labelIfFalse)
}

// emitConditionRelation lowers a relational condition by branching
// directly to the inherited labels.
func (enc *encoder) emitConditionRelation(n ir.Node) {
	nd := enc.ctx.Nodes
	op := nd.BinaryOpOf(n)
	first := enc.emitExpression(nd.Child(n, 0))
	second := enc.emitExpression(nd.Child(n, 1))

	if enc.ctx.Types.IsFloating(first.typ) || enc.ctx.Types.IsFloating(second.typ) {
		// Compare into an integer register, then branch on it.
		dest := rvalue{kind: rvalueRegister, typ: ir.Integer, reg: enc.getRegister()}
		enc.emitRelationalValue(dest, first, second, op)
		enc.wr.Write("\tbnez\t%s, %s\n", dest.reg, enc.labelIfTrue)
		enc.freeRvalue(dest)
		enc.wr.Write("\tj\t%s\n", enc.labelIfFalse)
		return
	}

	f := enc.loadIfConst(first)
	s := enc.loadIfConst(second)
	ins, swap := relBranch(op)
	rs1, rs2 := f.reg, s.reg
	if swap {
		rs1, rs2 = rs2, rs1
	}
	enc.wr.Ins3(ins, rs1.String(), rs2.String(), enc.labelIfTrue.String())
	enc.freeRvalue(f)
	enc.freeRvalue(s)
	enc.wr.Write("\tj\t%s\n", enc.labelIfFalse)
}

// withConditionLabels lowers a condition under the given label pair,
// saving and restoring the inherited labels.
func (enc *encoder) withConditionLabels(n ir.Node, labelTrue, labelFalse label) {
	oldTrue, oldFalse := enc.labelIfTrue, enc.labelIfFalse
	enc.labelIfTrue, enc.labelIfFalse = labelTrue, labelFalse
	enc.emitCondition(n)
	enc.labelIfTrue, enc.labelIfFalse = oldTrue, oldFalse
}

// emitStatement lowers one statement.
func (enc *encoder) emitStatement(n ir.Node) {
	if n == 0 {
		return
	}
	nd := enc.ctx.Nodes
	switch nd.Kind(n) {
	case ir.StmtCompound:
		enc.emitCompoundStatement(n)

	case ir.StmtNull:

	case ir.StmtIf:
		enc.emitIfStatement(n)

	case ir.StmtWhile:
		enc.emitWhileStatement(n)

	case ir.StmtDo:
		enc.emitDoStatement(n)

	case ir.StmtFor:
		enc.emitForStatement(n)

	case ir.StmtSwitch:
		enc.emitSwitchStatement(n)

	case ir.StmtCase, ir.StmtDefault:
		// Placed by the enclosing switch; loose ones are malformed.
		enc.ctx.Rep.Error(ir.ErrNodeUnexpected, nd.Begin(n))

	case ir.StmtBreak:
		enc.wr.Write("\tj\t%s\n", enc.labelBreak)

	case ir.StmtContinue:
		enc.wr.Write("\tj\t%s\n", enc.labelContinue)

	case ir.StmtReturn:
		enc.emitReturnStatement(n)

	case ir.DeclVar:
		enc.emitVariableDeclaration(n)

	case ir.StmtDecl:
		for i1 := 0; i1 < nd.ChildAmount(n); i1++ {
			enc.emitVariableDeclaration(nd.Child(n, i1))
		}

	default:
		// An expression in statement position.
		enc.emitVoidExpression(n)
	}
}

// emitCompoundStatement lowers a block. The scope displacement cursor is
// restored on exit; the frame keeps the high water mark.
func (enc *encoder) emitCompoundStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	scopeDisplacement := enc.scopeDispl

	for i1 := 0; i1 < nd.ChildAmount(n); i1++ {
		enc.emitStatement(nd.Child(n, i1))
	}

	if enc.scopeDispl > enc.maxDispl {
		enc.maxDispl = enc.scopeDispl
	}
	enc.scopeDispl = scopeDisplacement
}

// emitIfStatement lowers an if or if-else statement.
func (enc *encoder) emitIfStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	labelNum := enc.newLabelNum()
	labelThenI := label{kind: labelThen, num: labelNum}
	labelElseI := label{kind: labelElse, num: labelNum}
	labelEndI := label{kind: labelEnd, num: labelNum}

	enc.withConditionLabels(nd.Child(n, 0), labelThenI, labelElseI)

	enc.wr.Label(labelThenI.String())
	enc.emitStatement(nd.Child(n, 1))
	enc.wr.Write("\tj\t%s\n", labelEndI)

	enc.wr.Label(labelElseI.String())
	if nd.IfHasElse(n) {
		enc.emitStatement(nd.Child(n, 2))
	}
	enc.wr.Label(labelEndI.String())
}

// emitWhileStatement lowers a while loop. Continue re-tests the condition.
func (enc *encoder) emitWhileStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	labelNum := enc.newLabelNum()
	labelBegin := label{kind: labelBeginCycle, num: labelNum}
	labelBody := label{kind: labelThen, num: labelNum}
	labelEndW := label{kind: labelEnd, num: labelNum}

	oldContinue, oldBreak := enc.labelContinue, enc.labelBreak
	enc.labelContinue, enc.labelBreak = labelBegin, labelEndW

	enc.wr.Label(labelBegin.String())
	enc.withConditionLabels(nd.Child(n, 0), labelBody, labelEndW)

	enc.wr.Label(labelBody.String())
	enc.emitStatement(nd.Child(n, 1))
	enc.wr.Write("\tj\t%s\n", labelBegin)
	enc.wr.Label(labelEndW.String())

	enc.labelContinue, enc.labelBreak = oldContinue, oldBreak
}

// emitDoStatement lowers a do-while loop. Continue points at the condition
// label.
func (enc *encoder) emitDoStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	labelNum := enc.newLabelNum()
	labelBegin := label{kind: labelBeginCycle, num: labelNum}
	labelCondition := label{kind: labelNext, num: labelNum}
	labelEndD := label{kind: labelEnd, num: labelNum}

	oldContinue, oldBreak := enc.labelContinue, enc.labelBreak
	enc.labelContinue, enc.labelBreak = labelCondition, labelEndD

	enc.wr.Label(labelBegin.String())
	enc.emitStatement(nd.Child(n, 0))

	enc.wr.Label(labelCondition.String())
	enc.withConditionLabels(nd.Child(n, 1), labelBegin, labelEndD)
	enc.wr.Label(labelEndD.String())

	enc.labelContinue, enc.labelBreak = oldContinue, oldBreak
}

// emitForStatement lowers a for loop: init once, condition at the top,
// increment after the body, jump to the top.
func (enc *encoder) emitForStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	scopeDisplacement := enc.scopeDispl

	if init := nd.Child(n, 0); init != 0 {
		enc.emitStatement(init)
	}

	labelNum := enc.newLabelNum()
	labelBegin := label{kind: labelBeginCycle, num: labelNum}
	labelBody := label{kind: labelThen, num: labelNum}
	labelEndF := label{kind: labelEnd, num: labelNum}

	oldContinue, oldBreak := enc.labelContinue, enc.labelBreak
	enc.labelContinue, enc.labelBreak = labelBegin, labelEndF

	enc.wr.Label(labelBegin.String())
	if cond := nd.Child(n, 1); cond != 0 {
		enc.withConditionLabels(cond, labelBody, labelEndF)
	}
	enc.wr.Label(labelBody.String())

	enc.emitStatement(nd.Child(n, 3))

	if incr := nd.Child(n, 2); incr != 0 {
		enc.emitVoidExpression(incr)
	}
	enc.wr.Write("\tj\t%s\n", labelBegin)
	enc.wr.Label(labelEndF.String())

	enc.labelContinue, enc.labelBreak = oldContinue, oldBreak

	if enc.scopeDispl > enc.maxDispl {
		enc.maxDispl = enc.scopeDispl
	}
	enc.scopeDispl = scopeDisplacement
}

// emitReturnStatement lowers a return: the value moves to a0 or fa0 and
// control jumps to the function end label.
func (enc *encoder) emitReturnStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	if expr := nd.Child(n, 0); expr != 0 {
		value := enc.emitExpression(expr)

		returnType := enc.ctx.Types.Return(enc.ctx.Idents.TypeOf(enc.curFuncIdent))
		if enc.ctx.Types.IsFloating(returnType) {
			value = enc.toFloat(value)
			enc.emitMoveRvalueToRegister(fa0, value)
		} else {
			value = enc.toInteger(value)
			enc.emitMoveRvalueToRegister(a0, value)
		}
		enc.freeRvalue(value)
	}

	endLabel := label{kind: labelFuncEnd, num: int(enc.curFuncIdent)}
	enc.wr.Write("\tj\t%s\n", endLabel)
}

// emitSwitchStatement lowers a switch. Small switches compare through a
// chain of beq; larger ones build a runtime dispatch table allocated with
// an ecall and filled by one CASE_INSERT call per case.
func (enc *encoder) emitSwitchStatement(n ir.Node) {
	nd := enc.ctx.Nodes
	enc.switchCounter++
	switchNum := enc.switchCounter
	labelNum := enc.newLabelNum()

	oldBreak := enc.labelBreak
	enc.labelBreak = label{kind: labelEnd, num: labelNum}

	body := nd.Child(n, 1)
	amount := nd.ChildAmount(body)

	// Collect the case values and find the default.
	caseAmount := 0
	hasDefault := false
	for i1 := 0; i1 < amount; i1++ {
		switch nd.Kind(nd.Child(body, i1)) {
		case ir.StmtCase:
			caseAmount++
		case ir.StmtDefault:
			hasDefault = true
		}
	}

	if caseAmount >= switchTableThreshold {
		enc.emitSwitchTable(n, switchNum, caseAmount)
	} else {
		enc.emitSwitchChain(n, switchNum, hasDefault)
	}

	// Case and default bodies in declaration order; break jumps to End.
	caseCounter := 0
	for i1 := 0; i1 < amount; i1++ {
		substmt := nd.Child(body, i1)
		switch nd.Kind(substmt) {
		case ir.StmtCase:
			caseCounter++
			enc.caseLabelNum++
			enc.wr.Write("CASE%d_%d:\n", caseCounter, switchNum)
			enc.emitStatement(nd.Child(substmt, 0))
		case ir.StmtDefault:
			enc.wr.Write("DEFAULT%d:\n", switchNum)
			enc.emitStatement(nd.Child(substmt, 0))
		default:
			enc.emitStatement(substmt)
		}
	}

	if caseAmount >= switchTableThreshold {
		if !hasDefault {
			// The table dispatch falls back to the default label.
			enc.wr.Write("DEFAULT%d:\n", switchNum)
		}
		// The dispatch routines sit between the bodies and the end label
		// so that they are never reached by fallthrough.
		enc.wr.Write("\tj\t%s\n", enc.labelBreak)
		enc.emitSwitchHelpers(switchNum, caseAmount)
	}

	enc.wr.Label(enc.labelBreak.String())
	enc.labelBreak = oldBreak
}

// emitSwitchChain dispatches a small switch through one beq per case.
func (enc *encoder) emitSwitchChain(n ir.Node, switchNum int, hasDefault bool) {
	nd := enc.ctx.Nodes
	condition := enc.loadIfConst(enc.emitExpression(nd.Child(n, 0)))

	body := nd.Child(n, 1)
	caseCounter := 0
	for i1 := 0; i1 < nd.ChildAmount(body); i1++ {
		substmt := nd.Child(body, i1)
		if nd.Kind(substmt) != ir.StmtCase {
			continue
		}
		caseCounter++
		caseValue := rvalue{kind: rvalueConst, typ: ir.Integer, ival: nd.IntValue(substmt)}
		loaded := enc.emitLoadOfImmediate(caseValue)
		enc.wr.Write("\tbeq\t%s, %s, CASE%d_%d\n", condition.reg, loaded.reg, caseCounter, switchNum)
		enc.freeRvalue(loaded)
	}
	enc.freeRvalue(condition)

	if hasDefault {
		enc.wr.Write("\tj\tDEFAULT%d\n", switchNum)
	} else {
		enc.wr.Write("\tj\t%s\n", enc.labelBreak)
	}
}

// emitSwitchTable dispatches a large switch through a runtime table: the
// table is allocated on the heap with an ecall, one CASE_INSERT call per
// case stores the case label into slot value mod caseAmount, and the
// switch expression dispatches through CASE_CONDITION.
func (enc *encoder) emitSwitchTable(n ir.Node, switchNum, caseAmount int) {
	nd := enc.ctx.Nodes

	enc.wr.Write("\tli\tt0, %d\n", caseAmount)
	enc.wr.Write("\tslli\tt0, t0, 2\n")
	enc.wr.Write("\tli\ta7, 9\n")
	enc.wr.Write("\tmv\ta0, t0\n")
	enc.wr.Write("\tecall\n")
	enc.wr.Write("\tmv\tt1, a0\n")

	body := nd.Child(n, 1)
	caseCounter := 0
	for i1 := 0; i1 < nd.ChildAmount(body); i1++ {
		substmt := nd.Child(body, i1)
		if nd.Kind(substmt) != ir.StmtCase {
			continue
		}
		caseCounter++
		enc.wr.Write("\tli\tt2, %d\n", nd.IntValue(substmt))
		enc.wr.Write("\tla\tt3, CASE%d_%d\n", caseCounter, switchNum)
		enc.wr.Write("\tcall\tCASE_INSERT_%d\n", switchNum)
	}

	condition := enc.loadIfConst(enc.emitExpression(nd.Child(n, 0)))
	enc.wr.Write("\tmv\tt3, %s\n", condition.reg)
	enc.freeRvalue(condition)
	enc.wr.Write("\tcall\tCASE_CONDITION_%d\n", switchNum)
}

// emitSwitchHelpers emits the per switch dispatch routines ahead of the End
// label. The table lives at t1; CASE_INSERT hashes the case value in t2
// and stores the label from t3, CASE_CONDITION hashes the switch value in
// t3 and jumps to the stored label, falling back to the default label on
// an empty slot.
func (enc *encoder) emitSwitchHelpers(switchNum, caseAmount int) {
	enc.wr.Write("CASE_CONDITION_%d:\n", switchNum)
	enc.wr.Write("\tli\tt0, %d\n", caseAmount)
	enc.wr.Write("\trem\tt4, t3, t0\n")
	enc.wr.Write("\tslli\tt5, t4, 2\n")
	enc.wr.Write("\tadd\tt5, t5, t1\n")
	enc.wr.Write("\tlw\tt6, 0(t5)\n")
	enc.wr.Write("\tbeqz\tt6, DEFAULT%d\n", switchNum)
	enc.wr.Write("\tjr\tt6\n")

	enc.wr.Write("CASE_INSERT_%d:\n", switchNum)
	enc.wr.Write("\tli\tt0, %d\n", caseAmount)
	enc.wr.Write("\trem\tt4, t2, t0\n")
	enc.wr.Write("\tslli\tt5, t4, 2\n")
	enc.wr.Write("\tadd\tt5, t5, t1\n")
	enc.wr.Write("\tsw\tt3, 0(t5)\n")
	enc.wr.Write("\tret\n")
}
