package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skx/spyre/ast"
)

func TestConstantArithmeticFoldsToALiteral(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	return 1 + 2 + 3;
}
`)
	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	ret := tree.S(body.Children[0])
	e := tree.E(ret.Expr)
	assert.Equal(t, ast.ExprInteger, e.Kind)
	assert.Equal(t, int64(6), e.IntVal)
}

func TestDeadIfBranchIsElided(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	if (1) {
		return 1;
	} else {
		return 0;
	}
}
`)
	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	assert.Len(t, body.Children, 1, "the if/else should have been replaced by its true branch")
	assert.Equal(t, ast.StmtReturn, tree.S(body.Children[0]).Kind)
}

func TestFalseIfWithNoElseIsUnlinked(t *testing.T) {
	tree, _ := parse(t, `
main: () -> int {
	if (0) {
		return 1;
	}
	return 2;
}
`)
	fn := tree.S(tree.Root).Children[0]
	body := tree.S(tree.S(fn).Body)
	assert.Len(t, body.Children, 1)
	assert.Equal(t, ast.StmtReturn, tree.S(body.Children[0]).Kind)
}
