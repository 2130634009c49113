// Tests the expression builder: typing and value category rules, the
// assignment compatibility rule and the diagnostics posted on rule
// violations.

package ir

import "testing"

// testLoc returns a fixed location for constructed nodes.
func testLoc() Loc {
	return Loc{Line: 1, Pos: 1}
}

// TestIdentifierExpression verifies types and categories of identifier
// references.
func TestIdentifierExpression(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	if _, ok := ctx.Declare("x", Integer); !ok {
		t.Fatal("could not declare x")
	}

	n := b.Identifier("x", testLoc())
	if ctx.Nodes.IsBroken(n) {
		t.Fatal("reference to declared identifier is broken")
	}
	if typ := ctx.Nodes.TypeOf(n); typ != Integer {
		t.Errorf("x has type %d, want integer", typ)
	}
	if !ctx.Nodes.IsLvalue(n) {
		t.Error("variable reference must be an lvalue")
	}

	// Function references are rvalues.
	f := b.Identifier("sin", testLoc())
	if ctx.Nodes.CategoryOf(f) != RValue {
		t.Error("function reference must be an rvalue")
	}

	if n = b.Identifier("nope", testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("undeclared identifier did not produce the broken node")
	}
	if !ctx.Rep.WasError {
		t.Error("undeclared identifier posted no error")
	}
}

// TestLiteralExpressions verifies the literal constructors.
func TestLiteralExpressions(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	n := b.IntegerLiteral(42, testLoc())
	if ctx.Nodes.TypeOf(n) != Integer || ctx.Nodes.IntValue(n) != 42 {
		t.Error("malformed integer literal")
	}
	if ctx.Nodes.CategoryOf(n) != RValue {
		t.Error("integer literal must be an rvalue")
	}

	n = b.FloatingLiteral(2.5, testLoc())
	if ctx.Nodes.TypeOf(n) != Floating || ctx.Nodes.FloatValue(n) != 2.5 {
		t.Error("malformed floating literal")
	}

	n = b.StringLiteral(ctx.Strings.Add("hi"), testLoc())
	if !ctx.Types.IsString(ctx.Nodes.TypeOf(n)) {
		t.Error("string literal is not an integer array")
	}
	if !ctx.Nodes.IsLvalue(n) {
		t.Error("string literal must be an lvalue")
	}

	n = b.NullPointerLiteral(testLoc())
	if !ctx.Types.IsNullPointer(ctx.Nodes.TypeOf(n)) {
		t.Error("malformed null pointer literal")
	}
}

// TestSubscriptRules verifies the subscript typing rules.
func TestSubscriptRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	arr := ctx.Types.Array(Integer)
	ctx.Declare("a", arr)
	ctx.Declare("x", Integer)

	n := b.Subscript(b.Identifier("a", testLoc()), b.IntegerLiteral(1, testLoc()), testLoc(), testLoc())
	if ctx.Nodes.TypeOf(n) != Integer {
		t.Error("element of an integer array is not integer")
	}
	if !ctx.Nodes.IsLvalue(n) {
		t.Error("subscript result must be an lvalue, not a temporary")
	}

	if n = b.Subscript(b.Identifier("x", testLoc()), b.IntegerLiteral(0, testLoc()), testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("subscript of a non-array was accepted")
	}

	if n = b.Subscript(b.Identifier("a", testLoc()), b.FloatingLiteral(1.0, testLoc()), testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("non-integer index was accepted")
	}
}

// TestCallRules verifies callee and arity checking.
func TestCallRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	ft := ctx.Types.Function(Integer, []TypeID{Integer, Floating})
	ctx.Declare("f", ft)
	ctx.Declare("x", Integer)

	args := []Node{b.IntegerLiteral(1, testLoc()), b.IntegerLiteral(2, testLoc())}
	n := b.Call(b.Identifier("f", testLoc()), args, testLoc(), testLoc())
	if ctx.Nodes.IsBroken(n) {
		t.Fatal("valid call is broken")
	}
	if ctx.Nodes.TypeOf(n) != Integer {
		t.Error("call type is not the return type")
	}
	if ctx.Nodes.CategoryOf(n) != RValue {
		t.Error("call result must be an rvalue")
	}

	if n = b.Call(b.Identifier("f", testLoc()), nil, testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("arity mismatch was accepted")
	}

	if n = b.Call(b.Identifier("x", testLoc()), nil, testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("call of a non-function was accepted")
	}
}

// TestMemberRules verifies member access through values and pointers.
func TestMemberRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	st := ctx.Types.Structure([]Member{{Name: "a", Typ: Integer}, {Name: "b", Typ: Floating}})
	ctx.Declare("s", st)
	ctx.Declare("p", ctx.Types.Pointer(st))

	n := b.Member(b.Identifier("s", testLoc()), "b", false, testLoc(), testLoc())
	if ctx.Nodes.TypeOf(n) != Floating {
		t.Error("member type mismatch")
	}
	if !ctx.Nodes.IsLvalue(n) {
		t.Error("member of an lvalue structure must be an lvalue")
	}
	if ctx.Nodes.MemberIndex(n) != 1 {
		t.Error("wrong member index")
	}

	n = b.Member(b.Identifier("p", testLoc()), "a", true, testLoc(), testLoc())
	if !ctx.Nodes.IsLvalue(n) || !ctx.Nodes.IsArrow(n) {
		t.Error("arrow access must produce an arrow lvalue")
	}

	if n = b.Member(b.Identifier("s", testLoc()), "nope", false, testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("unknown member was accepted")
	}

	if n = b.Member(b.Identifier("s", testLoc()), "a", true, testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("arrow through a non-pointer was accepted")
	}
}

// TestUnaryRules verifies the unary operator constraints.
func TestUnaryRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	ctx.Declare("x", Integer)
	ctx.Declare("p", ctx.Types.Pointer(Integer))

	n := b.Unary(UnPreInc, b.Identifier("x", testLoc()), testLoc())
	if ctx.Nodes.CategoryOf(n) != RValue {
		t.Error("increment result must be an rvalue")
	}

	if n = b.Unary(UnPreInc, b.IntegerLiteral(1, testLoc()), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("increment of a literal was accepted")
	}

	n = b.Unary(UnAddress, b.Identifier("x", testLoc()), testLoc())
	if !ctx.Types.IsPointer(ctx.Nodes.TypeOf(n)) {
		t.Error("address-of does not yield a pointer")
	}

	if n = b.Unary(UnAddress, b.IntegerLiteral(1, testLoc()), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("address of an rvalue was accepted")
	}

	n = b.Unary(UnIndirection, b.Identifier("p", testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Integer || !ctx.Nodes.IsLvalue(n) {
		t.Error("indirection must yield an lvalue of the pointee type")
	}

	if n = b.Unary(UnNot, b.FloatingLiteral(1.0, testLoc()), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("bitwise not of a float was accepted")
	}
}

// TestBinaryRules verifies operand constraints of the binary operators.
func TestBinaryRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	ctx.Declare("x", Integer)
	ctx.Declare("d", Floating)

	// % requires integers.
	n := b.Binary(BinRem, b.Identifier("x", testLoc()), b.Identifier("d", testLoc()), testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("modulo on a float was accepted")
	}

	// Usual arithmetic conversion.
	n = b.Binary(BinAdd, b.Identifier("x", testLoc()), b.Identifier("d", testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Floating {
		t.Error("int + float must be floating")
	}
	n = b.Binary(BinAdd, b.Identifier("x", testLoc()), b.Identifier("x", testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Integer {
		t.Error("int + int must be integer")
	}

	// Relations produce integers.
	n = b.Binary(BinLt, b.Identifier("x", testLoc()), b.Identifier("d", testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Integer {
		t.Error("relation result must be integer")
	}

	// Assignment needs an lvalue on the left.
	n = b.Binary(BinAssign, b.IntegerLiteral(1, testLoc()), b.IntegerLiteral(2, testLoc()), testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("assignment to an rvalue was accepted")
	}
}

// TestEqualityRules verifies the pointer and warning rules of == and !=.
func TestEqualityRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	ctx.Declare("p", ctx.Types.Pointer(Integer))
	ctx.Declare("d", Floating)

	n := b.Binary(BinEq, b.Identifier("p", testLoc()), b.NullPointerLiteral(testLoc()), testLoc())
	if ctx.Nodes.IsBroken(n) {
		t.Error("pointer == null was rejected")
	}
	n = b.Binary(BinNe, b.NullPointerLiteral(testLoc()), b.Identifier("p", testLoc()), testLoc())
	if ctx.Nodes.IsBroken(n) {
		t.Error("null != pointer was rejected")
	}

	before := ctx.Rep.Amount()
	b.Binary(BinEq, b.Identifier("d", testLoc()), b.Identifier("d", testLoc()), testLoc())
	if ctx.Rep.Amount() != before+1 {
		t.Error("float equality comparison posted no warning")
	}
	if ctx.Rep.WasError {
		t.Error("a warning must not raise the error flag")
	}

	n = b.Binary(BinEq, b.Identifier("p", testLoc()), b.IntegerLiteral(0, testLoc()), testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("pointer == int was accepted")
	}
}

// TestTernaryRules verifies operand compatibility of the conditional.
func TestTernaryRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	ctx.Declare("x", Integer)
	ctx.Declare("d", Floating)
	ctx.Declare("p", ctx.Types.Pointer(Integer))

	n := b.Ternary(b.Identifier("x", testLoc()), b.Identifier("x", testLoc()), b.Identifier("d", testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Floating {
		t.Error("arithmetic arms must convert to floating")
	}

	n = b.Ternary(b.Identifier("x", testLoc()), b.Identifier("p", testLoc()), b.NullPointerLiteral(testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != ctx.Types.Pointer(Integer) {
		t.Error("pointer and null arms must keep the pointer type")
	}

	n = b.Ternary(b.Identifier("x", testLoc()), b.Identifier("p", testLoc()), b.Identifier("x", testLoc()), testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("incompatible arms were accepted")
	}
}

// TestInitListRules verifies initializer list checking.
func TestInitListRules(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	st := ctx.Types.Structure([]Member{{Name: "a", Typ: Integer}, {Name: "b", Typ: Floating}})

	if n := b.InitList(nil, testLoc(), testLoc()); !ctx.Nodes.IsBroken(n) {
		t.Error("empty initializer list was accepted")
	}

	list := b.InitList([]Node{b.IntegerLiteral(1, testLoc()), b.IntegerLiteral(2, testLoc())}, testLoc(), testLoc())
	if !b.CheckAssignment(st, list) {
		t.Error("matching structure initializer was rejected")
	}
	if ctx.Nodes.TypeOf(list) != st {
		t.Error("checked initializer did not take the aggregate type")
	}

	short := b.InitList([]Node{b.IntegerLiteral(1, testLoc())}, testLoc(), testLoc())
	if b.CheckAssignment(st, short) {
		t.Error("initializer size mismatch was accepted")
	}

	arr := ctx.Types.Array(Floating)
	list = b.InitList([]Node{b.IntegerLiteral(1, testLoc()), b.FloatingLiteral(2.0, testLoc())}, testLoc(), testLoc())
	if !b.CheckAssignment(arr, list) {
		t.Error("array initializer with convertible elements was rejected")
	}
}

// TestBrokenPropagation verifies that broken operands suppress further
// diagnostics on the same subtree.
func TestBrokenPropagation(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	bad := b.Identifier("nope", testLoc())
	before := ctx.Rep.Amount()

	n := b.Binary(BinAdd, bad, b.IntegerLiteral(1, testLoc()), testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("binary over a broken operand is not broken")
	}
	n = b.Unary(UnMinus, bad, testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("unary over a broken operand is not broken")
	}
	n = b.Ternary(bad, bad, bad, testLoc())
	if !ctx.Nodes.IsBroken(n) {
		t.Error("ternary over broken operands is not broken")
	}

	if ctx.Rep.Amount() != before {
		t.Error("broken operands caused further diagnostics")
	}
}

// TestAssignmentCompatibility verifies the scalar assignment rule.
func TestAssignmentCompatibility(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	if !b.CheckAssignment(Floating, b.IntegerLiteral(1, testLoc())) {
		t.Error("integer to floating was rejected")
	}
	if !b.CheckAssignment(ctx.Types.Pointer(Integer), b.NullPointerLiteral(testLoc())) {
		t.Error("null pointer to pointer was rejected")
	}
	if b.CheckAssignment(ctx.Types.Pointer(Integer), b.IntegerLiteral(0, testLoc())) {
		t.Error("integer to pointer was accepted")
	}
	if b.CheckAssignment(Integer, b.FloatingLiteral(1.0, testLoc())) {
		t.Error("floating to integer was accepted")
	}
}
