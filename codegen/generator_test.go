package codegen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/assembler"
	"github.com/skx/spyre/codegen"
	"github.com/skx/spyre/lexer"
	"github.com/skx/spyre/parser"
)

func compile(t *testing.T, src string) string {
	t.Helper()
	return compileAt(t, src, parser.OptFull)
}

func compileAt(t *testing.T, src string, optLevel int) string {
	t.Helper()
	head, err := lexer.New("t.spy", src).Tokenize()
	require.NoError(t, err)
	tree, _, err := parser.Parse("t.spy", head, optLevel)
	require.NoError(t, err)
	out, err := codegen.Generate(tree)
	require.NoError(t, err)
	return out
}

func countOccurrences(asm, mnemonic string) int {
	n := 0
	for _, line := range strings.Split(asm, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], mnemonic) {
			n++
		}
	}
	return n
}

// Constant folding collapses "2 + 3 * 4" to a single literal at parse
// time (parser/fold.go); codegen should then emit one ipush and no
// arithmetic opcode at all.
func TestConstantFoldingEmitsSingleLiteral(t *testing.T) {
	asm := compile(t, `
main: () -> int {
	return 2 + 3 * 4;
}
`)
	assert.Equal(t, 0, countOccurrences(asm, "iadd"))
	assert.Equal(t, 0, countOccurrences(asm, "imul"))
	assert.Contains(t, asm, "ipush 14")
}

// A statically-true "if" condition is dead-branch eliminated entirely
// (parser/fold.go's EliminateDeadBranches), so no test/jump survives
// into codegen for it.
func TestStaticallyTrueIfIsElided(t *testing.T) {
	asm := compile(t, `
main: () -> int {
	if (1) {
		return 7;
	}
	return 0;
}
`)
	assert.Equal(t, 0, countOccurrences(asm, "jz"))
	assert.Contains(t, asm, "ipush 7")
}

func TestEntryJumpsToMain(t *testing.T) {
	asm := compile(t, `main: () -> int = 42;`)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(strings.SplitN(asm, "\n", 2)[0]), "jmp __LABEL__ENTRY"))
	assert.Contains(t, asm, "__LABEL__ENTRY:")
	assert.Contains(t, asm, "call __FUNC__main, 0")
	assert.Contains(t, asm, "__FUNC__main:")
}

func TestGenericIdentityFunction(t *testing.T) {
	asm := compile(t, `
id<T>: (x: T) -> T {
	return x;
}
main: () -> int {
	return id<int>(5);
}
`)
	assert.Contains(t, asm, "__FUNC__id:")
	assert.Contains(t, asm, "call __FUNC__id, 1")
	// The prologue copies the incoming argument into its frame slot.
	assert.Contains(t, asm, "iarg 0")
	assert.Contains(t, asm, "ilsave 0")
}

func TestStructFieldAccessUsesStaticOffset(t *testing.T) {
	asm := compile(t, `
Point: struct {
	x: int;
	y: int;
}
main: () -> int {
	p: Point;
	p.x = 10;
	p.y = 20;
	return p.x + p.y;
}
`)
	assert.Contains(t, asm, "isave")
	assert.Contains(t, asm, "iadd")
}

func TestHostCallEmitsCCall(t *testing.T) {
	asm := compile(t, `
print: cfunc (fmt: ^byte) -> void;
main: () -> int {
	print("hi\n");
	return 0;
}
`)
	assert.Equal(t, 1, countOccurrences(asm, "ccall"))
	assert.Equal(t, 1, countOccurrences(asm, "call"), "only the entry's call to main")
	assert.Contains(t, asm, `let __HOST__0000 "print"`)
}

func TestStatementExpressionDiscardsResidue(t *testing.T) {
	asm := compile(t, `
add: (a: int, b: int) -> int = a + b;
main: () -> int {
	add(1, 2);
	return 0;
}
`)
	assert.Contains(t, asm, "res -1")
}

// PostfixIncrement must assemble cleanly through the real assembler, not
// just emit plausible-looking text - this exercises the address/value
// recompute-twice lowering end to end.
func TestPostfixIncrementAssembles(t *testing.T) {
	asm := compile(t, `
main: () -> int {
	i: int = 0;
	i++;
	return i;
}
`)
	_, err := assembler.Assemble("t.spyb", asm)
	require.NoError(t, err)
}

func TestWhileLoopAssembles(t *testing.T) {
	asm := compile(t, `
main: () -> int {
	i: int = 0;
	total: int = 0;
	while (i < 10) {
		total = total + i;
		i = i + 1;
	}
	return total;
}
`)
	_, err := assembler.Assemble("t.spyb", asm)
	require.NoError(t, err)
}

func TestForLoopWithBreakAndContinueAssembles(t *testing.T) {
	asm := compile(t, `
main: () -> int {
	total: int = 0;
	i: int;
	for (i = 0; i < 10; i = i + 1) {
		if (i == 5) {
			continue;
		}
		if (i == 8) {
			break;
		}
		total = total + i;
	}
	return total;
}
`)
	out, err := assembler.Assemble("t.spyb", asm)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestFullProgramAssemblesToValidImage(t *testing.T) {
	asm := compile(t, `
println: cfunc (fmt: ^byte, ...) -> void;

factorial: (n: int) -> int {
	if (n <= 1) {
		return 1;
	}
	return n * factorial(n - 1);
}

main: () -> int {
	println("%d", factorial(5));
	return 0;
}
`)
	img, err := assembler.Assemble("t.spyb", asm)
	require.NoError(t, err)
	require.True(t, len(img) > 12)
	assert.Equal(t, byte(0x5F), img[0]) // magic's low byte, little-endian
}

// At optimization level 0 nothing is folded or elided: the arithmetic
// survives into the emitted instruction stream.
func TestOptLevelZeroKeepsArithmetic(t *testing.T) {
	asm := compileAt(t, `
main: () -> int {
	return 2 + 3 * 4;
}
`, parser.OptNone)
	assert.Equal(t, 1, countOccurrences(asm, "iadd"))
	assert.Equal(t, 1, countOccurrences(asm, "imul"))
	assert.NotContains(t, asm, "ipush 14")
}

// Level 1 folds constants but leaves branches alone: the statically
// true "if" still compiles to a test and a jump.
func TestOptLevelOneFoldsButKeepsBranches(t *testing.T) {
	asm := compileAt(t, `
main: () -> int {
	if (1) {
		return 2 + 3;
	}
	return 0;
}
`, parser.OptFold)
	assert.Contains(t, asm, "ipush 5")
	assert.Equal(t, 0, countOccurrences(asm, "iadd"))
	assert.Equal(t, 1, countOccurrences(asm, "jz"))
}
