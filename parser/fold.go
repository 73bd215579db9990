package parser

import (
	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/token"
	"github.com/skx/spyre/types"
)

// FoldConstants folds every binary node in tree whose operator is on
// the foldable whitelist and whose two operands are literals of
// matching kind, repeating to a fixed point. Operands sit before their
// parent in the arena, so one pass folds `1+2+3` fully: `(1+2)` becomes
// `3`, then `3+3` becomes `6`. Reports whether anything changed.
func FoldConstants(tree *ast.Tree) bool {
	changed := false
	for {
		progress := false
		for id := range tree.Exprs {
			e := &tree.Exprs[id]
			if e.Kind != ast.ExprBinaryOp || !foldableOps[e.Op] {
				continue
			}
			lit, ok := foldLiterals(e.Op, tree.E(e.Left), tree.E(e.Right))
			if !ok {
				continue
			}
			tree.ReplaceExprInPlace(ast.ExprID(id), lit)
			progress = true
		}
		changed = changed || progress
		if !progress {
			break
		}
	}
	return changed
}

func foldLiterals(op token.Type, l, r *ast.Expr) (ast.Expr, bool) {
	if l.Kind == ast.ExprInteger && r.Kind == ast.ExprInteger {
		return foldIntegers(op, l.IntVal, r.IntVal)
	}
	if l.Kind == ast.ExprFloat && r.Kind == ast.ExprFloat {
		return foldFloats(op, l.FloatVal, r.FloatVal)
	}
	return ast.Expr{}, false
}

func foldIntegers(op token.Type, a, b int64) (ast.Expr, bool) {
	mkInt := func(v int64) (ast.Expr, bool) {
		return ast.Expr{Kind: ast.ExprInteger, IntVal: v, Type: types.Int}, true
	}
	mkBool := func(v bool) (ast.Expr, bool) {
		if v {
			return mkInt(1)
		}
		return mkInt(0)
	}
	switch op {
	case token.PLUS, token.PLUSEQ:
		return mkInt(a + b)
	case token.MINUS, token.MINUSEQ:
		return mkInt(a - b)
	case token.ASTERISK, token.ASTEREQ:
		return mkInt(a * b)
	case token.SLASH, token.SLASHEQ:
		if b == 0 {
			return ast.Expr{}, false
		}
		return mkInt(a / b)
	case token.PERCENEQ:
		if b == 0 {
			return ast.Expr{}, false
		}
		return mkInt(a % b)
	case token.SHL, token.SHLEQ:
		return mkInt(a << uint(b))
	case token.SHR, token.SHREQ:
		return mkInt(a >> uint(b))
	case token.AMPEQ:
		return mkInt(a & b)
	case token.PIPEEQ:
		return mkInt(a | b)
	case token.CARETEQ:
		return mkInt(a ^ b)
	case token.GT:
		return mkBool(a > b)
	case token.LT:
		return mkBool(a < b)
	case token.GE:
		return mkBool(a >= b)
	case token.LE:
		return mkBool(a <= b)
	case token.EQ:
		return mkBool(a == b)
	case token.NEQ:
		return mkBool(a != b)
	}
	return ast.Expr{}, false
}

func foldFloats(op token.Type, a, b float64) (ast.Expr, bool) {
	mkFloat := func(v float64) (ast.Expr, bool) {
		return ast.Expr{Kind: ast.ExprFloat, FloatVal: v, Type: types.Float}, true
	}
	mkBool := func(v bool) (ast.Expr, bool) {
		if v {
			return ast.Expr{Kind: ast.ExprInteger, IntVal: 1, Type: types.Int}, true
		}
		return ast.Expr{Kind: ast.ExprInteger, IntVal: 0, Type: types.Int}, true
	}
	switch op {
	case token.PLUS, token.PLUSEQ:
		return mkFloat(a + b)
	case token.MINUS, token.MINUSEQ:
		return mkFloat(a - b)
	case token.ASTERISK, token.ASTEREQ:
		return mkFloat(a * b)
	case token.SLASH, token.SLASHEQ:
		if b == 0 {
			return ast.Expr{}, false
		}
		return mkFloat(a / b)
	case token.GT:
		return mkBool(a > b)
	case token.LT:
		return mkBool(a < b)
	case token.GE:
		return mkBool(a >= b)
	case token.LE:
		return mkBool(a <= b)
	case token.EQ:
		return mkBool(a == b)
	case token.NEQ:
		return mkBool(a != b)
	}
	return ast.Expr{}, false
}

// EliminateDeadBranches runs one pass over every If node whose
// condition is now a literal (after folding): a truthy condition
// splices the body in place of the If, a falsy one unlinks it
// entirely. Only applies to If nodes actually reachable inside a
// Block's Children list, which is how every If is parented.
func EliminateDeadBranches(tree *ast.Tree) {
	FoldConstants(tree)
	for blockID := range tree.Stmts {
		if tree.Stmts[blockID].Kind != ast.StmtBlock {
			continue
		}
		eliminateInBlock(tree, ast.StmtID(blockID))
	}
}

func eliminateInBlock(tree *ast.Tree, blockID ast.StmtID) {
	block := tree.S(blockID)
	for _, childID := range append([]ast.StmtID{}, block.Children...) {
		child := tree.S(childID)
		if child.Kind != ast.StmtIf {
			continue
		}
		cond := tree.E(child.Cond)
		if cond.Kind != ast.ExprInteger {
			continue
		}
		if cond.IntVal != 0 {
			body := tree.S(child.Body)
			// The body block disappears in the splice; its locals move
			// up so the spliced statements still resolve them.
			block.Locals = append(block.Locals, body.Locals...)
			tree.SpliceBody(blockID, childID, body.Children)
		} else if child.Else != ast.NoStmt {
			elseStmt := tree.S(child.Else)
			if elseStmt.Kind == ast.StmtBlock {
				block.Locals = append(block.Locals, elseStmt.Locals...)
				tree.SpliceBody(blockID, childID, elseStmt.Children)
			} else {
				// an `elif` chain: splice the nested If in its place.
				tree.SpliceBody(blockID, childID, []ast.StmtID{child.Else})
			}
		} else {
			tree.Unlink(blockID, childID)
		}
		eliminateInBlock(tree, blockID)
		return
	}
}
