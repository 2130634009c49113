// builder.go implements the expression builder. Each constructor takes
// already validated subexpressions plus source locations and returns either
// a well typed node or the broken sentinel. On failure a diagnostic is
// posted through the reporter; callers keep parsing to surface more errors
// but the driver never emits code once the error flag is set.

package ir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Builder constructs typed expression nodes for a context.
type Builder struct {
	ctx *Context
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewBuilder returns an expression builder over ctx.
func NewBuilder(ctx *Context) *Builder {
	return &Builder{ctx: ctx}
}

// usualArithmeticConversions returns the common type of a binary arithmetic
// operator: integer when both operands are integer, floating otherwise.
func (b *Builder) usualArithmeticConversions(left, right TypeID) TypeID {
	if b.ctx.Types.IsInteger(left) && b.ctx.Types.IsInteger(right) {
		return Integer
	}
	return Floating
}

// Identifier builds a reference to a declared identifier. Function
// references are rvalues, every other identifier is an lvalue.
func (b *Builder) Identifier(name string, loc Loc) Node {
	id, ok := b.ctx.Lookup(name)
	if !ok {
		b.ctx.Rep.Error(ErrUndeclaredIdentifier, loc, name)
		return Broken
	}

	typ := b.ctx.Idents.TypeOf(id)
	cat := LValue
	if b.ctx.Types.IsFunction(typ) {
		cat = RValue
	}

	return b.ctx.Nodes.add(record{
		Kind:  ExprIdentifier,
		Typ:   typ,
		Cat:   cat,
		Ident: id,
		Begin: loc,
		End:   loc,
	})
}

// IntegerLiteral builds an integer literal expression.
func (b *Builder) IntegerLiteral(value int, loc Loc) Node {
	return b.ctx.Nodes.add(record{
		Kind:  ExprLiteral,
		Typ:   Integer,
		Cat:   RValue,
		IVal:  wrap32(value),
		Begin: loc,
		End:   loc,
	})
}

// FloatingLiteral builds a floating literal expression.
func (b *Builder) FloatingLiteral(value float64, loc Loc) Node {
	return b.ctx.Nodes.add(record{
		Kind:  ExprLiteral,
		Typ:   Floating,
		Cat:   RValue,
		FVal:  value,
		Begin: loc,
		End:   loc,
	})
}

// StringLiteral builds a string literal expression referring to an interned
// string. Strings are integer arrays and lvalues.
func (b *Builder) StringLiteral(index int, loc Loc) Node {
	return b.ctx.Nodes.add(record{
		Kind:     ExprLiteral,
		Typ:      b.ctx.Types.Array(Integer),
		Cat:      LValue,
		StrIndex: index,
		Begin:    loc,
		End:      loc,
	})
}

// NullPointerLiteral builds the null pointer literal expression.
func (b *Builder) NullPointerLiteral(loc Loc) Node {
	return b.ctx.Nodes.add(record{
		Kind:  ExprLiteral,
		Typ:   NullPointer,
		Cat:   RValue,
		Begin: loc,
		End:   loc,
	})
}

// Subscript builds an array subscript expression. The result is the element
// itself, an lvalue, never a temporary.
func (b *Builder) Subscript(base, index Node, lLoc, rLoc Loc) Node {
	nd := b.ctx.Nodes
	if nd.IsBroken(base) || nd.IsBroken(index) {
		return Broken
	}

	baseType := nd.TypeOf(base)
	if !b.ctx.Types.IsArray(baseType) {
		b.ctx.Rep.Error(ErrSubscriptNotArray, lLoc)
		return Broken
	}

	if !b.ctx.Types.IsInteger(nd.TypeOf(index)) {
		b.ctx.Rep.Error(ErrIndexNotInteger, nd.Begin(index))
		return Broken
	}

	return nd.add(record{
		Kind:     ExprSubscript,
		Typ:      b.ctx.Types.Elem(baseType),
		Cat:      LValue,
		Begin:    nd.Begin(base),
		End:      rLoc,
		Children: []Node{base, index},
	})
}

// Call builds a function call expression. Arity must match and each
// argument is checked against the assignment compatibility rule.
func (b *Builder) Call(callee Node, args []Node, lLoc, rLoc Loc) Node {
	nd := b.ctx.Nodes
	if nd.IsBroken(callee) {
		return Broken
	}

	calleeType := nd.TypeOf(callee)
	if !b.ctx.Types.IsFunction(calleeType) {
		b.ctx.Rep.Error(ErrCallNotFunction, lLoc)
		return Broken
	}

	// printf is variadic: the declared type carries the format parameter
	// only, every further argument must be scalar or a declared array, which
	// prints element-wise.
	variadic := nd.Kind(callee) == ExprIdentifier &&
		b.ctx.Idents.Builtin(nd.IdentOf(callee)) == BuiltinPrintf

	expected := b.ctx.Types.ParamAmount(calleeType)
	if expected != len(args) && !(variadic && len(args) > expected) {
		b.ctx.Rep.Error(ErrArgumentAmount, rLoc, expected, len(args))
		return Broken
	}

	for i1, e1 := range args {
		if nd.IsBroken(e1) {
			return Broken
		}
		if i1 >= expected {
			// Variadic tail of printf.
			argType := nd.TypeOf(e1)
			isArrayIdent := nd.Kind(e1) == ExprIdentifier && b.ctx.Types.IsArray(argType)
			if !b.ctx.Types.IsScalar(argType) && !isArrayIdent {
				b.ctx.Rep.Error(ErrWrongInit, nd.Begin(e1))
				return Broken
			}
			continue
		}
		if !b.checkAssignmentOperands(b.ctx.Types.Param(calleeType, i1), e1) {
			return Broken
		}
	}

	children := make([]Node, 0, len(args)+1)
	children = append(children, callee)
	children = append(children, args...)
	return nd.add(record{
		Kind:     ExprCall,
		Typ:      b.ctx.Types.Return(calleeType),
		Cat:      RValue,
		Begin:    nd.Begin(callee),
		End:      rLoc,
		Children: children,
	})
}

// Member builds a member access expression. With '.' the base must be a
// structure and the result inherits the base's category; with '->' the base
// must be a pointer to structure and the result is an lvalue.
func (b *Builder) Member(base Node, name string, isArrow bool, opLoc, idLoc Loc) Node {
	nd := b.ctx.Nodes
	if nd.IsBroken(base) {
		return Broken
	}

	baseType := nd.TypeOf(base)
	var structType TypeID
	var cat Category

	if !isArrow {
		if !b.ctx.Types.IsStructure(baseType) {
			b.ctx.Rep.Error(ErrInvalidMember, opLoc, name)
			return Broken
		}
		structType = baseType
		cat = nd.CategoryOf(base)
	} else {
		if !b.ctx.Types.IsStructPointer(baseType) {
			b.ctx.Rep.Error(ErrInvalidMember, opLoc, name)
			return Broken
		}
		structType = b.ctx.Types.Elem(baseType)
		cat = LValue
	}

	amount := b.ctx.Types.MemberAmount(structType)
	for i1 := 0; i1 < amount; i1++ {
		if name == b.ctx.Types.MemberName(structType, i1) {
			return nd.add(record{
				Kind:     ExprMember,
				Typ:      b.ctx.Types.MemberType(structType, i1),
				Cat:      cat,
				Member:   i1,
				Arrow:    isArrow,
				Begin:    nd.Begin(base),
				End:      idLoc,
				Children: []Node{base},
			})
		}
	}

	b.ctx.Rep.Error(ErrInvalidMember, idLoc, name)
	return Broken
}

// Upb builds an upper-bound expression: the first operand must be integer,
// the second must be an array. The result is the integer element count of
// the array operand's outer dimension; the first operand does not select a
// dimension.
func (b *Builder) Upb(fst, snd Node) Node {
	nd := b.ctx.Nodes
	if nd.IsBroken(fst) || nd.IsBroken(snd) {
		return Broken
	}

	if !b.ctx.Types.IsInteger(nd.TypeOf(fst)) {
		b.ctx.Rep.Error(ErrNotIntInStanfunc, nd.Begin(fst))
		return Broken
	}
	if !b.ctx.Types.IsArray(nd.TypeOf(snd)) {
		b.ctx.Rep.Error(ErrNotArrayInStanfunc, nd.Begin(snd))
		return Broken
	}

	return nd.add(record{
		Kind:     ExprUpb,
		Typ:      Integer,
		Cat:      RValue,
		Begin:    nd.Begin(fst),
		End:      nd.End(snd),
		Children: []Node{fst, snd},
	})
}

// Unary builds a unary expression, folding literal operands.
func (b *Builder) Unary(op UnaryOp, operand Node, opLoc Loc) Node {
	nd := b.ctx.Nodes
	if nd.IsBroken(operand) {
		return Broken
	}

	operandType := nd.TypeOf(operand)

	var begin, end Loc
	if op == UnPostInc || op == UnPostDec {
		begin, end = nd.Begin(operand), opLoc
	} else {
		begin, end = opLoc, nd.End(operand)
	}

	switch op {
	case UnPostInc, UnPostDec, UnPreInc, UnPreDec:
		if !b.ctx.Types.IsArithmetic(operandType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		if !nd.IsLvalue(operand) {
			b.ctx.Rep.Error(ErrNotLvalue, opLoc)
			return Broken
		}
		return b.newUnary(operandType, RValue, op, operand, begin, end)

	case UnAddress:
		if !nd.IsLvalue(operand) {
			b.ctx.Rep.Error(ErrNotLvalue, opLoc)
			return Broken
		}
		return b.newUnary(b.ctx.Types.Pointer(operandType), RValue, op, operand, begin, end)

	case UnIndirection:
		if !b.ctx.Types.IsPointer(operandType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.newUnary(b.ctx.Types.Elem(operandType), LValue, op, operand, begin, end)

	case UnPlus, UnMinus, UnAbs:
		if !b.ctx.Types.IsArithmetic(operandType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldUnary(operandType, RValue, op, operand, begin, end)

	case UnNot:
		if !b.ctx.Types.IsInteger(operandType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldUnary(Integer, RValue, op, operand, begin, end)

	case UnLogNot:
		if !b.ctx.Types.IsScalar(operandType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldUnary(Integer, RValue, op, operand, begin, end)
	}

	return Broken
}

// Binary builds a binary expression, folding literal operands.
func (b *Builder) Binary(op BinaryOp, lhs, rhs Node, opLoc Loc) Node {
	nd := b.ctx.Nodes
	tt := b.ctx.Types
	if nd.IsBroken(lhs) || nd.IsBroken(rhs) {
		return Broken
	}

	leftType := nd.TypeOf(lhs)
	rightType := nd.TypeOf(rhs)

	if op.IsAssignment() {
		if !nd.IsLvalue(lhs) {
			b.ctx.Rep.Error(ErrNotLvalue, opLoc)
			return Broken
		}
		if !b.checkAssignmentOperands(leftType, rhs) {
			return Broken
		}
	}

	switch op {
	case BinRem, BinShl, BinShr, BinAnd, BinXor, BinOr:
		if !tt.IsInteger(leftType) || !tt.IsInteger(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldBinary(Integer, op, lhs, rhs)

	case BinMul, BinDiv, BinAdd, BinSub:
		if !tt.IsArithmetic(leftType) || !tt.IsArithmetic(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldBinary(b.usualArithmeticConversions(leftType, rightType), op, lhs, rhs)

	case BinLt, BinGt, BinLe, BinGe:
		if !tt.IsArithmetic(leftType) || !tt.IsArithmetic(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		if tt.IsFloating(leftType) != tt.IsFloating(rightType) {
			b.ctx.Rep.Warn(WarnNarrowingComparison, opLoc)
		}
		return b.foldBinary(Integer, op, lhs, rhs)

	case BinLogAnd, BinLogOr:
		if !tt.IsScalar(leftType) || !tt.IsScalar(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.foldBinary(Integer, op, lhs, rhs)

	case BinEq, BinNe:
		if tt.IsFloating(leftType) || tt.IsFloating(rightType) {
			b.ctx.Rep.Warn(WarnFloatEquality, opLoc)
		}
		if (tt.IsArithmetic(leftType) && tt.IsArithmetic(rightType)) ||
			(tt.IsPointer(leftType) && tt.IsNullPointer(rightType)) ||
			(tt.IsNullPointer(leftType) && tt.IsPointer(rightType)) ||
			leftType == rightType {
			return b.foldBinary(Integer, op, lhs, rhs)
		}
		b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
		return Broken

	case BinAssign:
		return b.newBinary(leftType, op, lhs, rhs)

	case BinRemAssign, BinShlAssign, BinShrAssign, BinAndAssign, BinXorAssign, BinOrAssign:
		if !tt.IsInteger(leftType) || !tt.IsInteger(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.newBinary(leftType, op, lhs, rhs)

	case BinMulAssign, BinDivAssign, BinAddAssign, BinSubAssign:
		if !tt.IsArithmetic(leftType) || !tt.IsArithmetic(rightType) {
			b.ctx.Rep.Error(ErrTypeMismatch, opLoc, op.String())
			return Broken
		}
		return b.newBinary(leftType, op, lhs, rhs)

	case BinComma:
		return b.foldBinary(rightType, op, lhs, rhs)
	}

	return Broken
}

// Ternary builds a conditional expression, folding a literal condition by
// dropping the unchosen branch entirely.
func (b *Builder) Ternary(cond, then, els Node, opLoc Loc) Node {
	nd := b.ctx.Nodes
	tt := b.ctx.Types
	if nd.IsBroken(cond) || nd.IsBroken(then) || nd.IsBroken(els) {
		return Broken
	}

	if !tt.IsScalar(nd.TypeOf(cond)) {
		b.ctx.Rep.Error(ErrCondIncompatible, nd.Begin(cond))
		return Broken
	}

	thenType := nd.TypeOf(then)
	elseType := nd.TypeOf(els)

	switch {
	case tt.IsArithmetic(thenType) && tt.IsArithmetic(elseType):
		return b.foldTernary(b.usualArithmeticConversions(thenType, elseType), cond, then, els)
	case tt.IsPointer(thenType) && tt.IsNullPointer(elseType):
		return b.foldTernary(thenType, cond, then, els)
	case tt.IsNullPointer(thenType) && tt.IsPointer(elseType):
		return b.foldTernary(elseType, cond, then, els)
	case thenType == elseType:
		return b.foldTernary(thenType, cond, then, els)
	}

	b.ctx.Rep.Error(ErrCondIncompatible, opLoc)
	return Broken
}

// Cast builds an explicit arithmetic cast, folding literal operands.
func (b *Builder) Cast(target TypeID, operand Node, opLoc Loc) Node {
	nd := b.ctx.Nodes
	tt := b.ctx.Types
	if nd.IsBroken(operand) {
		return Broken
	}

	operandType := nd.TypeOf(operand)
	if !tt.IsArithmetic(target) || !tt.IsArithmetic(operandType) {
		b.ctx.Rep.Error(ErrTypeMismatch, opLoc, "cast")
		return Broken
	}

	if nd.IsLiteral(operand) {
		if tt.IsFloating(target) {
			return b.FloatingLiteral(b.litFloat(operand), opLoc)
		}
		if tt.IsFloating(operandType) {
			return b.IntegerLiteral(int(int32(nd.FloatValue(operand))), opLoc)
		}
		return b.IntegerLiteral(nd.IntValue(operand), opLoc)
	}

	return nd.add(record{
		Kind:     ExprCast,
		Typ:      target,
		Cat:      RValue,
		Begin:    opLoc,
		End:      nd.End(operand),
		Children: []Node{operand},
	})
}

// InitList builds an initializer list expression. Its type is assigned when
// the list is checked against an aggregate. Empty lists are rejected.
func (b *Builder) InitList(elems []Node, lLoc, rLoc Loc) Node {
	if len(elems) == 0 {
		b.ctx.Rep.Error(ErrEmptyInit, lLoc)
		return Broken
	}
	for _, e1 := range elems {
		if b.ctx.Nodes.IsBroken(e1) {
			return Broken
		}
	}
	children := make([]Node, len(elems))
	copy(children, elems)
	return b.ctx.Nodes.add(record{
		Kind:     ExprInitList,
		Typ:      Void,
		Cat:      RValue,
		Begin:    lLoc,
		End:      rLoc,
		Children: children,
	})
}

// CheckAssignment exposes the assignment compatibility rule for declaration
// initializers.
func (b *Builder) CheckAssignment(expected TypeID, init Node) bool {
	if b.ctx.Nodes.IsBroken(init) {
		return false
	}
	return b.checkAssignmentOperands(expected, init)
}

// checkAssignmentOperands accepts integer to floating conversion, null
// pointer to any pointer, identical types, and initializer lists applied
// recursively to aggregates. Anything else is an error.
func (b *Builder) checkAssignmentOperands(expected TypeID, init Node) bool {
	nd := b.ctx.Nodes
	tt := b.ctx.Types

	if nd.Kind(init) == ExprInitList {
		actual := nd.ChildAmount(init)
		if tt.IsStructure(expected) {
			if amount := tt.MemberAmount(expected); amount != actual {
				b.ctx.Rep.Error(ErrInitSizeMismatch, nd.Begin(init), amount, actual)
				return false
			}
			for i1 := 0; i1 < actual; i1++ {
				if !b.checkAssignmentOperands(tt.MemberType(expected, i1), nd.Child(init, i1)) {
					return false
				}
			}
			nd.get(init).Typ = expected
			return true
		}
		if tt.IsArray(expected) {
			elem := tt.Elem(expected)
			for i1 := 0; i1 < actual; i1++ {
				if !b.checkAssignmentOperands(elem, nd.Child(init, i1)) {
					return false
				}
			}
			nd.get(init).Typ = expected
			return true
		}
		b.ctx.Rep.Error(ErrWrongInit, nd.Begin(init))
		return false
	}

	actualType := nd.TypeOf(init)

	if tt.IsFloating(expected) && tt.IsInteger(actualType) {
		return true
	}
	// Character and boolean values are stored as integers; the integer
	// classes assign freely among themselves.
	if tt.IsInteger(expected) && tt.IsInteger(actualType) {
		return true
	}
	if tt.IsPointer(expected) && tt.IsNullPointer(actualType) {
		return true
	}
	if expected == actualType {
		return true
	}

	b.ctx.Rep.Error(ErrWrongInit, nd.Begin(init))
	return false
}

// newUnary creates a unary expression node without folding.
func (b *Builder) newUnary(typ TypeID, cat Category, op UnaryOp, operand Node, begin, end Loc) Node {
	return b.ctx.Nodes.add(record{
		Kind:     ExprUnary,
		Typ:      typ,
		Cat:      cat,
		Op:       int(op),
		Begin:    begin,
		End:      end,
		Children: []Node{operand},
	})
}

// newBinary creates a binary expression node without folding.
func (b *Builder) newBinary(typ TypeID, op BinaryOp, lhs, rhs Node) Node {
	nd := b.ctx.Nodes
	return nd.add(record{
		Kind:     ExprBinary,
		Typ:      typ,
		Cat:      RValue,
		Op:       int(op),
		Begin:    nd.Begin(lhs),
		End:      nd.End(rhs),
		Children: []Node{lhs, rhs},
	})
}

// newTernary creates a ternary expression node without folding.
func (b *Builder) newTernary(typ TypeID, cond, then, els Node) Node {
	nd := b.ctx.Nodes
	return nd.add(record{
		Kind:     ExprTernary,
		Typ:      typ,
		Cat:      RValue,
		Begin:    nd.Begin(cond),
		End:      nd.End(els),
		Children: []Node{cond, then, els},
	})
}
