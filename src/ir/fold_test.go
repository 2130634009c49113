// Tests constant folding: folded literals must be value equivalent to the
// unfolded computation under two's complement and IEEE-754 semantics.

package ir

import "testing"

// TestIntegerFoldEquivalence folds every integer operator over a table of
// operand pairs and compares against the host computation.
func TestIntegerFoldEquivalence(t *testing.T) {
	ops := []struct {
		op BinaryOp
		f  func(a, b int) int
	}{
		{BinAdd, func(a, b int) int { return a + b }},
		{BinSub, func(a, b int) int { return a - b }},
		{BinMul, func(a, b int) int { return a * b }},
		{BinDiv, func(a, b int) int { return a / b }},
		{BinRem, func(a, b int) int { return a % b }},
		{BinShl, func(a, b int) int { return int(int32(a << uint(b))) }},
		{BinShr, func(a, b int) int { return a >> uint(b) }},
		{BinAnd, func(a, b int) int { return a & b }},
		{BinOr, func(a, b int) int { return a | b }},
		{BinXor, func(a, b int) int { return a ^ b }},
		{BinLt, func(a, b int) int { return boolInt(a < b) }},
		{BinGt, func(a, b int) int { return boolInt(a > b) }},
		{BinLe, func(a, b int) int { return boolInt(a <= b) }},
		{BinGe, func(a, b int) int { return boolInt(a >= b) }},
		{BinEq, func(a, b int) int { return boolInt(a == b) }},
		{BinNe, func(a, b int) int { return boolInt(a != b) }},
		{BinLogAnd, func(a, b int) int { return boolInt(a != 0 && b != 0) }},
		{BinLogOr, func(a, b int) int { return boolInt(a != 0 || b != 0) }},
	}
	pairs := [][2]int{{7, 3}, {-9, 4}, {100, 6}, {13, 2}, {0, 5}, {-1, 1}}

	ctx := NewContext()
	b := NewBuilder(ctx)
	for _, e1 := range ops {
		for _, e2 := range pairs {
			n := b.Binary(e1.op, b.IntegerLiteral(e2[0], testLoc()), b.IntegerLiteral(e2[1], testLoc()), testLoc())
			if !ctx.Nodes.IsLiteral(n) {
				t.Fatalf("%d %s %d did not fold", e2[0], e1.op, e2[1])
			}
			if got, want := ctx.Nodes.IntValue(n), e1.f(e2[0], e2[1]); got != want {
				t.Errorf("fold(%d %s %d) = %d, want %d", e2[0], e1.op, e2[1], got, want)
			}
		}
	}
}

// TestFloatingFold verifies folding under the usual arithmetic conversion.
func TestFloatingFold(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	n := b.Binary(BinAdd, b.IntegerLiteral(1, testLoc()), b.FloatingLiteral(2.5, testLoc()), testLoc())
	if !ctx.Nodes.IsLiteral(n) || ctx.Nodes.TypeOf(n) != Floating {
		t.Fatal("1 + 2.5 did not fold to a floating literal")
	}
	if ctx.Nodes.FloatValue(n) != 3.5 {
		t.Errorf("1 + 2.5 folded to %v", ctx.Nodes.FloatValue(n))
	}

	n = b.Binary(BinLt, b.FloatingLiteral(1.5, testLoc()), b.IntegerLiteral(2, testLoc()), testLoc())
	if ctx.Nodes.TypeOf(n) != Integer || ctx.Nodes.IntValue(n) != 1 {
		t.Error("1.5 < 2 did not fold to integer 1")
	}
}

// TestDivisionByZeroNotFolded verifies that a constant division by zero is
// emitted, not folded and not a crash.
func TestDivisionByZeroNotFolded(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	n := b.Binary(BinDiv, b.IntegerLiteral(1, testLoc()), b.IntegerLiteral(0, testLoc()), testLoc())
	if ctx.Nodes.Kind(n) != ExprBinary {
		t.Error("division by zero was folded away")
	}
	n = b.Binary(BinRem, b.IntegerLiteral(1, testLoc()), b.IntegerLiteral(0, testLoc()), testLoc())
	if ctx.Nodes.Kind(n) != ExprBinary {
		t.Error("modulo by zero was folded away")
	}
	if ctx.Rep.WasError {
		t.Error("division by zero posted a diagnostic")
	}
}

// TestShortCircuitFold verifies that a deciding left operand folds the
// whole expression and drops the unevaluated right operand.
func TestShortCircuitFold(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)
	ctx.Declare("x", Integer)

	n := b.Binary(BinLogAnd, b.IntegerLiteral(0, testLoc()), b.Identifier("x", testLoc()), testLoc())
	if !ctx.Nodes.IsLiteral(n) || ctx.Nodes.IntValue(n) != 0 {
		t.Error("0 && x did not fold to 0")
	}

	n = b.Binary(BinLogOr, b.IntegerLiteral(3, testLoc()), b.Identifier("x", testLoc()), testLoc())
	if !ctx.Nodes.IsLiteral(n) || ctx.Nodes.IntValue(n) != 1 {
		t.Error("3 || x did not fold to 1")
	}

	// An undeciding literal left operand must keep the expression.
	n = b.Binary(BinLogAnd, b.IntegerLiteral(1, testLoc()), b.Identifier("x", testLoc()), testLoc())
	if ctx.Nodes.IsLiteral(n) {
		t.Error("1 && x folded although x is not a literal")
	}
}

// TestTernaryFold verifies that a literal condition selects one branch and
// drops the other.
func TestTernaryFold(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)
	ctx.Declare("x", Integer)

	then := b.Identifier("x", testLoc())
	els := b.IntegerLiteral(9, testLoc())

	n := b.Ternary(b.IntegerLiteral(1, testLoc()), then, els, testLoc())
	if n != then {
		t.Error("true condition did not select the then branch")
	}
	n = b.Ternary(b.IntegerLiteral(0, testLoc()), then, els, testLoc())
	if n != els {
		t.Error("false condition did not select the else branch")
	}
}

// TestCommaFold verifies that folding the comma operator discards the left
// operand.
func TestCommaFold(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	rhs := b.IntegerLiteral(2, testLoc())
	n := b.Binary(BinComma, b.IntegerLiteral(1, testLoc()), rhs, testLoc())
	if n != rhs {
		t.Error("comma fold did not yield the right operand")
	}
}

// TestUnaryFold verifies folding of the unary operators.
func TestUnaryFold(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	cases := []struct {
		op   UnaryOp
		v    int
		want int
	}{
		{UnMinus, 5, -5},
		{UnPlus, 5, 5},
		{UnNot, 0, -1},
		{UnLogNot, 0, 1},
		{UnLogNot, 7, 0},
		{UnAbs, -4, 4},
		{UnAbs, 4, 4},
	}
	for _, e1 := range cases {
		n := b.Unary(e1.op, b.IntegerLiteral(e1.v, testLoc()), testLoc())
		if !ctx.Nodes.IsLiteral(n) || ctx.Nodes.IntValue(n) != e1.want {
			t.Errorf("fold(%s %d) != %d", e1.op, e1.v, e1.want)
		}
	}

	n := b.Unary(UnMinus, b.FloatingLiteral(2.5, testLoc()), testLoc())
	if ctx.Nodes.FloatValue(n) != -2.5 {
		t.Error("unary minus on a float literal did not fold")
	}
}

// TestWrap32 verifies two's complement truncation of folded values.
func TestWrap32(t *testing.T) {
	ctx := NewContext()
	b := NewBuilder(ctx)

	// 2^31 wraps to the most negative 32-bit value when folded.
	n := b.Binary(BinMul, b.IntegerLiteral(1<<30, testLoc()), b.IntegerLiteral(2, testLoc()), testLoc())
	if got := ctx.Nodes.IntValue(n); got != -(1 << 31) {
		t.Errorf("2^31 folded to %d, want %d", got, -(1 << 31))
	}
}
