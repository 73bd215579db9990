package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/assembler"
	"github.com/skx/spyre/codegen"
	"github.com/skx/spyre/hostlib"
	"github.com/skx/spyre/lexer"
	"github.com/skx/spyre/parser"
	"github.com/skx/spyre/vm"
)

// runSource drives the whole pipeline in-process - lex, parse,
// generate, assemble, load, run - and returns the value main left on
// the stack plus everything the program printed.
func runSource(t *testing.T, src string) (int64, string, *vm.Machine) {
	t.Helper()

	head, err := lexer.New("e2e.spy", src).Tokenize()
	require.NoError(t, err)
	tree, _, err := parser.Parse("e2e.spy", head, parser.OptFull)
	require.NoError(t, err)
	asm, err := codegen.Generate(tree)
	require.NoError(t, err)
	img, err := assembler.Assemble("e2e.spy", asm)
	require.NoError(t, err)
	rom, code, err := assembler.Load(img)
	require.NoError(t, err)

	m := vm.New(rom, code)
	var out strings.Builder
	m.SetOutputSink(func(s string) { out.WriteString(s) })
	reg := hostlib.New()
	reg.SetStdout(func(s string) { out.WriteString(s) })
	reg.Install(m)

	require.NoError(t, m.Run(nil))
	return m.PopInt(), out.String(), m
}

func TestArithmeticFoldRuns(t *testing.T) {
	ret, _, _ := runSource(t, `main: () -> int = 2 + 3 * 4;`)
	assert.Equal(t, int64(14), ret)
}

func TestDeadBranchElimination(t *testing.T) {
	ret, _, _ := runSource(t, `
main: () -> int {
	r: int;
	r = 0;
	if (0) {
		r = 5;
	}
	if (1) {
		r = r + 2;
	}
	return r;
}
`)
	assert.Equal(t, int64(2), ret)
}

func TestGenericIdentity(t *testing.T) {
	ret, _, _ := runSource(t, `
id<T>: (x: T) -> T = x;
main: () -> int = id<int>(42);
`)
	assert.Equal(t, int64(42), ret)
}

func TestStructFieldAccess(t *testing.T) {
	ret, _, _ := runSource(t, `
Pt: struct {
	x: int;
	y: int;
}
main: () -> int {
	p: Pt;
	p.x = 7;
	p.y = 5;
	return p.x + p.y;
}
`)
	assert.Equal(t, int64(12), ret)
}

func TestHeapRoundTrip(t *testing.T) {
	ret, _, m := runSource(t, `
malloc: cfunc (n: int) -> ^byte;
free: cfunc (p: ^byte) -> void;

main: () -> int {
	p: ^byte;
	p = malloc(16);
	^p = (byte)42;
	r: int;
	r = (int)^p;
	free(p);
	return r;
}
`)
	assert.Equal(t, int64(42), ret)
	assert.Empty(t, m.DumpHeap(), "heap-chunk list should be empty after free")
}

func TestHostCallPrint(t *testing.T) {
	_, out, _ := runSource(t, `
print: cfunc (fmt: ^byte, ...) -> void;
main: () -> int {
	print("%d", 17);
	return 0;
}
`)
	assert.Equal(t, "17", out)
}

func TestHostCallPrintln(t *testing.T) {
	_, out, _ := runSource(t, `
println: cfunc (fmt: ^byte, ...) -> void;
main: () -> int {
	println("%d", 17);
	return 0;
}
`)
	assert.Equal(t, "17\n", out)
}

func TestRecursiveFunctionWithParameters(t *testing.T) {
	ret, _, _ := runSource(t, `
factorial: (n: int) -> int {
	if (n <= 1) {
		return 1;
	}
	return n * factorial(n - 1);
}
main: () -> int = factorial(5);
`)
	assert.Equal(t, int64(120), ret)
}

func TestWhileLoopAccumulates(t *testing.T) {
	ret, _, _ := runSource(t, `
main: () -> int {
	i: int;
	s: int;
	i = 0;
	s = 0;
	while (i < 5) {
		i = i + 1;
		s = s + i;
	}
	return s;
}
`)
	assert.Equal(t, int64(15), ret)
}

func TestForLoopWithBreak(t *testing.T) {
	ret, _, _ := runSource(t, `
main: () -> int {
	s: int;
	i: int;
	s = 0;
	for (i = 0; i < 10; i = i + 1) {
		if (i == 4) {
			break;
		}
		s = s + i;
	}
	return s;
}
`)
	assert.Equal(t, int64(6), ret)
}

func TestFloatParameterAndCast(t *testing.T) {
	ret, _, _ := runSource(t, `
half: (x: float) -> float = x / 2.0;
main: () -> int = (int)half(7.0);
`)
	assert.Equal(t, int64(3), ret)
}

func TestPointerThroughAddressOf(t *testing.T) {
	ret, _, _ := runSource(t, `
main: () -> int {
	v: int;
	p: ^int;
	v = 9;
	p = &v;
	^p = ^p + 1;
	return v;
}
`)
	assert.Equal(t, int64(10), ret)
}

func TestWithExt(t *testing.T) {
	assert.Equal(t, "prog.spyb", withExt("prog.spy", ".spyb"))
	assert.Equal(t, "dir.v2/prog.spyb", withExt("dir.v2/prog", ".spyb"))
}
