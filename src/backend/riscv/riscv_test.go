// End to end tests of the generator: reduced C sources go through the
// front end and the expression builder, then the emitted assembly is
// checked for its material fragments. Whitespace beyond the emitters' own
// layout is not asserted.

package riscv

import (
	"strings"
	"testing"

	"rvcc/src/frontend"
	"rvcc/src/ir"
	"rvcc/src/util"
)

// helperCompile compiles src to assembly, failing the test on any
// diagnostic before or during generation.
func helperCompile(t *testing.T, src string) string {
	t.Helper()
	ctx := ir.NewContext()
	unit, err := frontend.Parse(src, ctx)
	if err != nil {
		t.Fatalf("parse error: %s", err)
	}
	if ctx.Rep.WasError {
		t.Fatalf("unexpected diagnostics: %v", ctx.Rep.Errors())
	}

	wr := util.NewBuffer()
	if err := GenRiscv(util.Options{Src: "test.c"}, ctx, unit, &wr); err != nil {
		t.Fatalf("generation error: %s", err)
	}
	if ctx.Rep.WasError {
		t.Fatalf("generator posted diagnostics: %v", ctx.Rep.Errors())
	}
	return wr.String()
}

// helperContains fails the test when the assembly lacks a fragment.
func helperContains(t *testing.T, out string, fragments ...string) {
	t.Helper()
	for _, e1 := range fragments {
		if !strings.Contains(out, e1) {
			t.Errorf("assembly lacks fragment %q", e1)
		}
	}
}

// TestPreambleAndEpilogue verifies the output framing.
func TestPreambleAndEpilogue(t *testing.T) {
	out := helperCompile(t, "int main() { return 0; }")
	helperContains(t, out,
		"\t.text\n",
		"\t.attribute 4, 16\n",
		"\t.globl main\n",
		"\t.p2align\t1\n",
		"\t.type main,@function\n",
		".s:\n",
		".i:\n",
		".f:\n",
		".b:\n",
		".printid:\n",
		"main:\n",
		".Lfunc_end0:\n",
		"\t.size\tmain, .Lfunc_end0-main\n",
		"\t.section\t\".note.GNU-stack\",\"\",@progbits\n",
	)
}

// TestConstantFoldingReturn is the first end to end scenario: the return
// value is the folded literal and the body holds no arithmetic.
func TestConstantFoldingReturn(t *testing.T) {
	out := helperCompile(t, "int main() { return 1 + 2 * 3; }")
	helperContains(t, out, "\tli\ta0, 7\n", "\tj\tFUNCEND")
	if strings.Contains(out, "mul") {
		t.Error("folded program still multiplies")
	}
	if strings.Contains(out, "\tadd\t") {
		t.Error("folded program still adds")
	}
}

// TestGlobalVariable is the second scenario: a global lives at a gp
// relative offset.
func TestGlobalVariable(t *testing.T) {
	out := helperCompile(t, "int x; int main() { x = 5; return x; }")
	helperContains(t, out,
		"\tli\tt0, 5\n",
		"\tsw\tt0, 0(gp)\n",
		"\tlw\tt0, 0(gp)\n",
		"\tmv\ta0, t0\n",
		"\tj\tFUNCEND",
	)
}

// TestGlobalArray is the third scenario: a three word array with its size
// word one word above element zero.
func TestGlobalArray(t *testing.T) {
	out := helperCompile(t, "int a[3] = {10, 20, 30}; int main() { return a[1]; }")
	// Slot at 0(gp), size word at 16(gp), elements at 12, 8 and 4.
	helperContains(t, out,
		"\tli\tt0, 3\n",
		"\tsw\tt0, 16(gp)\n",
		"\tli\tt0, 20\n",
		"\tsw\tt0, 8(gp)\n",
		"\tlw\tt0, 0(gp)\n",
		"\tlw\tt1, -4(t0)\n",
	)
}

// TestForPrintf is the fourth scenario: loop labels and a split format
// string.
func TestForPrintf(t *testing.T) {
	out := helperCompile(t, "int main() { int i; for (i = 0; i < 3; i++) printf(\"%i\\n\", i); return 0; }")
	helperContains(t, out,
		"STRING0:\n\t.ascii \"%i\\0\"\n",
		"STRING1:\n\t.ascii \"\\n\\0\"\n",
		"BEGIN_CYCLE1:\n",
		"END1",
		"\tcall\tprintf\n",
		"%hi(STRING0)",
		"%lo(STRING0)",
	)
	if got := strings.Count(out, "\tcall\tprintf\n"); got != 2 {
		t.Errorf("printf called %d times per iteration, want value slice plus tail", got)
	}
}

// TestSwitchChain is the fifth scenario on the branch chain form.
func TestSwitchChain(t *testing.T) {
	out := helperCompile(t, `
int main() {
	int x = 3;
	switch (x) {
	case 1:
		return 1;
	case 3:
		return 3;
	default:
		return 0;
	}
}
`)
	helperContains(t, out,
		"CASE1_1:\n",
		"CASE2_1:\n",
		"DEFAULT1:\n",
		"\tli\ta0, 3\n",
	)
	if !strings.Contains(out, "\tbeq\t") {
		t.Error("switch chain emitted no beq")
	}
}

// TestSwitchTable verifies the runtime dispatch table of large switches.
func TestSwitchTable(t *testing.T) {
	src := `
int main() {
	int x = 3;
	switch (x) {
	case 0: break;
	case 1: break;
	case 2: break;
	case 3: break;
	case 4: break;
	case 5: break;
	case 6: break;
	case 7: break;
	}
	return 0;
}
`
	out := helperCompile(t, src)
	helperContains(t, out,
		"\tli\ta7, 9\n",
		"\tecall\n",
		"\tcall\tCASE_INSERT_1\n",
		"\tcall\tCASE_CONDITION_1\n",
		"CASE_CONDITION_1:\n",
		"CASE_INSERT_1:\n",
		"DEFAULT1:\n",
		"CASE8_1:\n",
	)
	if got := strings.Count(out, "\tcall\tCASE_INSERT_1\n"); got != 8 {
		t.Errorf("CASE_INSERT called %d times, want 8", got)
	}
}

// TestFloatFunction is the sixth scenario: the parameter rides in fa0, the
// square uses fmul.d and the cast converts with fcvt.w.d.
func TestFloatFunction(t *testing.T) {
	out := helperCompile(t, "double f(double x) { return x * x; } int main() { return (int)f(2.5); }")
	helperContains(t, out,
		"fa0, fa0\n",
		"\tfcvt.w.d\t",
		"\tjal\tFUNC",
	)
	if !strings.Contains(out, "fmul.d") {
		t.Error("no double multiply emitted")
	}
}

// TestFrameSymmetry verifies that prologue and epilogue save and restore
// the same callee saved set.
func TestFrameSymmetry(t *testing.T) {
	out := helperCompile(t, "int f(int x) { return x + 1; } int main() { return f(1); }")

	if saves, loads := strings.Count(out, "\tsw\ts"), strings.Count(out, "\tlw\ts"); saves != loads || saves != 24 {
		t.Errorf("saved %d s registers, restored %d, want 24 each for two functions", saves, loads)
	}
	if saves, loads := strings.Count(out, "\tfsd\tfs"), strings.Count(out, "\tfld\tfs"); saves != loads || saves != 24 {
		t.Errorf("saved %d fs registers, restored %d, want 24 each", saves, loads)
	}
	if got := strings.Count(out, "\tjr\tra\n"); got != 2 {
		t.Errorf("emitted %d returns, want one per function", got)
	}
	helperContains(t, out,
		"\tsw\tra, -4(sp)\n",
		"\tsw\tfp, -8(sp)\n",
		"\tlw\tra, -4(sp)\n",
		"\tlw\tfp, -8(sp)\n",
	)
}

// TestIfElseLabels verifies the Then/Else/End label discipline and the
// direct conditional branch.
func TestIfElseLabels(t *testing.T) {
	out := helperCompile(t, "int main() { int a = 1; if (a < 2) return 1; else return 2; return 0; }")
	helperContains(t, out, "THEN1:\n", "ELSE1:\n", "END1:\n", "\tblt\t")
	if strings.Contains(out, "\tli\tt0, 1\n\tblt") {
		// The condition must branch, not materialise a 0/1 first.
		t.Error("relational condition materialised a value")
	}
}

// TestWhileLoop verifies loop labels and break/continue targets.
func TestWhileLoop(t *testing.T) {
	out := helperCompile(t, `
int main() {
	int i = 0;
	while (i < 10) {
		i++;
		if (i == 5)
			continue;
		if (i == 8)
			break;
	}
	return i;
}
`)
	helperContains(t, out, "BEGIN_CYCLE1:\n", "\tj\tBEGIN_CYCLE1\n", "\tj\tEND1\n")
}

// TestDoWhile verifies that continue of a do loop points at the condition
// label.
func TestDoWhile(t *testing.T) {
	out := helperCompile(t, `
int main() {
	int i = 0;
	do {
		i++;
		if (i == 2)
			continue;
	} while (i < 4);
	return i;
}
`)
	helperContains(t, out, "NEXT1:\n", "\tj\tNEXT1\n", "BEGIN_CYCLE1:\n")
}

// TestStructCopy verifies the word for word copy of a structure
// assignment.
func TestStructCopy(t *testing.T) {
	out := helperCompile(t, `
struct S { int a; int b; int c; };
int main() {
	struct S s1;
	struct S s2;
	s1.a = 1;
	s2 = s1;
	return s2.a;
}
`)
	// s1 occupies fp-12..fp, s2 fp-24..fp-12; three words move.
	helperContains(t, out,
		"\tlw\tt0, -12(fp)\n",
		"\tsw\tt0, -24(fp)\n",
		"\tlw\tt0, -8(fp)\n",
		"\tsw\tt0, -20(fp)\n",
		"\tlw\tt0, -4(fp)\n",
		"\tsw\tt0, -16(fp)\n",
	)
}

// TestTernaryValue verifies that both arms feed one result register.
func TestTernaryValue(t *testing.T) {
	out := helperCompile(t, "int main() { int a = 1; return a ? 2 : 3; }")
	helperContains(t, out, "THEN1:\n", "ELSE1:\n", "END1:\n", "\tli\tt0, 2\n", "\tli\tt0, 3\n")
}

// TestShortCircuitValue verifies the join pattern of logical operators in
// value position.
func TestShortCircuitValue(t *testing.T) {
	out := helperCompile(t, "int main() { int a = 1; int b = 0; int c = a && b; return c; }")
	helperContains(t, out, "\tbeqz\t", "\tsnez\t")
}

// TestIntegerAbs verifies the inline expansion of integer abs.
func TestIntegerAbs(t *testing.T) {
	out := helperCompile(t, "int main() { int a = -5; return abs(a); }")
	helperContains(t, out, "\tsrai\t", "\txor\t", "\tsub\t")
}

// TestMathBuiltin verifies the libm lowering.
func TestMathBuiltin(t *testing.T) {
	out := helperCompile(t, "int main() { double d = sqrt(2.0); return (int)d; }")
	helperContains(t, out, "\tcall\tsqrt\n", "fa0")
}

// TestLocalArraySizeWord verifies the size word of a local array.
func TestLocalArraySizeWord(t *testing.T) {
	out := helperCompile(t, "int main() { int a[3] = {1, 2, 3}; return upb(1, a); }")
	// upb loads the size word one word above element zero.
	helperContains(t, out, "\tli\tt0, 3\n", "\tlw\tt1, 4(t0)\n")
}

// TestRegisterPoolBalance compiles a register heavy expression; pool
// exhaustion or a leak would surface as an internal diagnostic in
// helperCompile.
func TestRegisterPoolBalance(t *testing.T) {
	helperCompile(t, `
int main() {
	int a = 1;
	int b = 2;
	int c = 3;
	return (a + b) * (a - b) + (b + c) * (b - c) + (a + c) * (a - c);
}
`)
}
