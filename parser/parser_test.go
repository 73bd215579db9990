package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/lexer"
	"github.com/skx/spyre/parser"
	"github.com/skx/spyre/types"
)

func parse(t *testing.T, src string) (*ast.Tree, *types.Table) {
	t.Helper()
	head, err := lexer.New("t.spy", src).Tokenize()
	require.NoError(t, err)
	tree, tbl, err := parser.Parse("t.spy", head, parser.OptFull)
	require.NoError(t, err)
	return tree, tbl
}

func parseErr(t *testing.T, src string) error {
	t.Helper()
	head, err := lexer.New("t.spy", src).Tokenize()
	require.NoError(t, err)
	_, _, err = parser.Parse("t.spy", head, parser.OptFull)
	return err
}

func TestLocalDeclarationAndArithmetic(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	x: int = 1 + 2;
	return x;
}
`)
	fn := tree.S(tree.Root).Children[0]
	require.Equal(t, ast.StmtFunction, tree.S(fn).Kind)
	assert.True(t, tree.S(fn).Implemented)
}

func TestShortFunctionSugar(t *testing.T) {
	tree, _ := parse(t, `add: (a: int, b: int) -> int = a + b;`)
	fn := tree.S(tree.Root).Children[0]
	s := tree.S(fn)
	require.Equal(t, ast.StmtFunction, s.Kind)
	body := tree.S(s.Body)
	require.Len(t, body.Children, 1)
	assert.Equal(t, ast.StmtReturn, tree.S(body.Children[0]).Kind)
}

func TestForwardDeclarationMustMatch(t *testing.T) {
	err := parseErr(t, `
add: (a: int, b: int) -> int;
add: (a: int, b: float) -> int { return a; }
`)
	assert.Error(t, err)
}

func TestForwardDeclarationMatchesAndImplements(t *testing.T) {
	tree, _ := parse(t, `
add: (a: int, b: int) -> int;
add: (a: int, b: int) -> int { return a + b; }
`)
	assert.Len(t, tree.S(tree.Root).Children, 1, "the forward decl contributes no statement of its own")
}

func TestUndeclaredFunctionMustBeDeclaredBeforeUse(t *testing.T) {
	err := parseErr(t, `
main: () -> int {
	return add(1, 2);
}
`)
	assert.Error(t, err)
}

func TestCallArityAndTypeChecking(t *testing.T) {
	err := parseErr(t, `
add: (a: int, b: int) -> int { return a + b; }
main: () -> int {
	return add(1);
}
`)
	assert.Error(t, err)
}

func TestStructFieldAccess(t *testing.T) {
	tree, tbl := parse(t, `
Point: struct {
	x: int;
	y: int;
}
main: () -> int {
	p: Point;
	return p.x;
}
`)
	pt, ok := tbl.Lookup("Point")
	require.True(t, ok)
	assert.Len(t, pt.Fields, 2)

	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	ret := tree.S(body.Children[len(body.Children)-1])
	retExpr := tree.E(ret.Expr)
	assert.Equal(t, types.Int, retExpr.Type)
}

func TestPointerDereferenceAndAddressOf(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	x: int = 5;
	p: ^int = &x;
	return ^p;
}
`)
	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	ret := tree.S(body.Children[len(body.Children)-1])
	assert.Equal(t, types.Int, tree.E(ret.Expr).Type)
}

func TestIfElseAndWhileParse(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	x: int = 0;
	while (x < 10) {
		x = x + 1;
	}
	if (x == 10) {
		return 1;
	} else {
		return 0;
	}
}
`)
	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	assert.Len(t, body.Children, 3)
}

func TestBreakOutsideLoopErrors(t *testing.T) {
	err := parseErr(t, `
main: () -> int {
	break;
}
`)
	assert.Error(t, err)
}

func TestGenericIdentityFunction(t *testing.T) {
	tree, _ := parse(t, `
identity<T>: (x: T) -> T { return x; }
main: () -> int {
	return identity<int>(5);
}
`)
	fn := tree.S(tree.Root).Children[0]
	s := tree.S(fn)
	assert.Equal(t, []string{"T"}, s.Generics)
}

func TestDuplicateLocalInSameBlockErrors(t *testing.T) {
	err := parseErr(t, `
main: () -> int {
	x: int = 1;
	x: int = 2;
	return x;
}
`)
	assert.Error(t, err)
}

func TestMismatchedBinaryOperandTypesError(t *testing.T) {
	err := parseErr(t, `
main: () -> int {
	x: float = 1.0;
	return x + 1;
}
`)
	assert.Error(t, err)
}

func TestVariadicCFuncAcceptsExtraArguments(t *testing.T) {
	parse(t, `
print: cfunc (fmt: ^byte, ...) -> void;
main: () -> int {
	print("%d %d", 1, 2);
	return 0;
}
`)
}

func TestVariadicCFuncStillChecksDeclaredPrefix(t *testing.T) {
	err := parseErr(t, `
print: cfunc (fmt: ^byte, ...) -> void;
main: () -> int {
	print(1, 2);
	return 0;
}
`)
	assert.Error(t, err)
}

func TestVariadicRequiresCFunc(t *testing.T) {
	err := parseErr(t, `sum: (a: int, ...) -> int = a;`)
	assert.Error(t, err)
}

func TestGenericInstantiatedWithTwoDifferentTypes(t *testing.T) {
	parse(t, `
identity<T>: (x: T) -> T = x;
main: () -> int {
	f: float;
	f = identity<float>(2.5);
	return identity<int>(5);
}
`)
}

func TestShortFunctionReturnTypeMismatchErrors(t *testing.T) {
	err := parseErr(t, `main: () -> int = 2.5;`)
	assert.Error(t, err)
}
