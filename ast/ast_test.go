package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/types"
)

func TestNewTreeRootIsEmptyBlock(t *testing.T) {
	tr := NewTree()
	root := tr.S(tr.Root)
	assert.Equal(t, StmtBlock, root.Kind)
	assert.Empty(t, root.Children)
}

func TestAppendChildLinksConsistently(t *testing.T) {
	tr := NewTree()

	a := tr.NewStmt(Stmt{Kind: StmtBreak})
	b := tr.NewStmt(Stmt{Kind: StmtContinue})
	c := tr.NewStmt(Stmt{Kind: StmtBreak})

	tr.AppendChild(tr.Root, a)
	tr.AppendChild(tr.Root, b)
	tr.AppendChild(tr.Root, c)

	assertDoublyLinked(t, tr, tr.Root)

	root := tr.S(tr.Root)
	require.Len(t, root.Children, 3)
	assert.Equal(t, a, root.Children[0])
	assert.Equal(t, c, root.Children[2])

	for _, id := range root.Children {
		assert.Equal(t, tr.Root, tr.S(id).Parent)
	}
}

func TestSpliceBodyInlinesChildren(t *testing.T) {
	tr := NewTree()

	keep1 := tr.NewStmt(Stmt{Kind: StmtBreak})
	ifNode := tr.NewStmt(Stmt{Kind: StmtIf})
	keep2 := tr.NewStmt(Stmt{Kind: StmtContinue})

	tr.AppendChild(tr.Root, keep1)
	tr.AppendChild(tr.Root, ifNode)
	tr.AppendChild(tr.Root, keep2)

	inner1 := tr.NewStmt(Stmt{Kind: StmtBreak})
	inner2 := tr.NewStmt(Stmt{Kind: StmtBreak})

	tr.SpliceBody(tr.Root, ifNode, []StmtID{inner1, inner2})

	root := tr.S(tr.Root)
	require.Len(t, root.Children, 4)
	assert.Equal(t, []StmtID{keep1, inner1, inner2, keep2}, root.Children)

	assertDoublyLinked(t, tr, tr.Root)
}

func TestUnlinkRemovesNode(t *testing.T) {
	tr := NewTree()

	keep1 := tr.NewStmt(Stmt{Kind: StmtBreak})
	dead := tr.NewStmt(Stmt{Kind: StmtIf})
	keep2 := tr.NewStmt(Stmt{Kind: StmtContinue})

	tr.AppendChild(tr.Root, keep1)
	tr.AppendChild(tr.Root, dead)
	tr.AppendChild(tr.Root, keep2)

	tr.Unlink(tr.Root, dead)

	root := tr.S(tr.Root)
	assert.Equal(t, []StmtID{keep1, keep2}, root.Children)
	assertDoublyLinked(t, tr, tr.Root)
}

func TestReplaceExprInPlacePreservesParentSide(t *testing.T) {
	tr := NewTree()

	left := tr.NewExpr(Expr{Kind: ExprInteger, IntVal: 2, Side: Left})
	right := tr.NewExpr(Expr{Kind: ExprInteger, IntVal: 3, Side: Right})
	bin := tr.NewExpr(Expr{Kind: ExprBinaryOp, Left: left, Right: right, Type: types.Int})
	tr.E(left).Parent = bin
	tr.E(right).Parent = bin

	tr.ReplaceExprInPlace(left, Expr{Kind: ExprInteger, IntVal: 99})

	folded := tr.E(left)
	assert.Equal(t, int64(99), folded.IntVal)
	assert.Equal(t, bin, folded.Parent)
	assert.Equal(t, Left, folded.Side)
}

// assertDoublyLinked walks a block's Children forward via Next and
// backward via Prev and checks the two walks agree, and that every
// child reports exactly the block as its parent - the tree invariant
// spec.md §8 requires.
func assertDoublyLinked(t *testing.T, tr *Tree, blockID StmtID) {
	t.Helper()
	block := tr.S(blockID)
	if len(block.Children) == 0 {
		return
	}

	for i, id := range block.Children {
		n := tr.S(id)
		assert.Equal(t, blockID, n.Parent)
		if i == 0 {
			assert.Equal(t, NoStmt, n.Prev)
		} else {
			assert.Equal(t, block.Children[i-1], n.Prev)
		}
		if i == len(block.Children)-1 {
			assert.Equal(t, NoStmt, n.Next)
		} else {
			assert.Equal(t, block.Children[i+1], n.Next)
		}
	}
}
