package parser

import (
	"strconv"

	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/token"
	"github.com/skx/spyre/types"
)

// parseExpression parses a full expression via precedence climbing -
// the tree-building equivalent of the shunting-yard table in
// original_source/parse.c's expression_to_tree, extended with casts,
// member access, and typed calls per spec.md §4.2. terminators are the
// tokens that end the expression without being consumed.
func (p *Parser) parseExpression(terminators ...token.Type) (ast.ExprID, error) {
	return p.parseBinaryExpr(1, terminators)
}

func isTerminator(tt token.Type, terms []token.Type) bool {
	if tt == token.EOF {
		return true
	}
	for _, t := range terms {
		if t == tt {
			return true
		}
	}
	return false
}

func (p *Parser) parseBinaryExpr(minPrec int, terms []token.Type) (ast.ExprID, error) {
	left, err := p.parseUnary(terms)
	if err != nil {
		return ast.NoExpr, err
	}

	for {
		if isTerminator(p.cur.Type, terms) {
			break
		}
		info, ok := binaryOps[p.cur.Type]
		if !ok || info.prec < minPrec {
			break
		}
		op := p.cur.Type
		line := p.cur.Line

		if assignOps[op] {
			if err := p.checkLValue(left); err != nil {
				return ast.NoExpr, err
			}
		}

		p.advance()
		nextMin := info.prec + 1
		if info.assoc == assocRight {
			nextMin = info.prec
		}
		right, err := p.parseBinaryExpr(nextMin, terms)
		if err != nil {
			return ast.NoExpr, err
		}

		var t *types.Type
		if op == token.COMMA {
			t = p.tree.E(right).Type
		} else {
			t, err = inferBinaryType(op, p.tree.E(left).Type, p.tree.E(right).Type)
			if err != nil {
				return ast.NoExpr, err
			}
		}

		id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprBinaryOp, Line: line, Op: op, Left: left, Right: right, Type: t})
		p.tree.E(left).Parent = id
		p.tree.E(left).Side = ast.Left
		p.tree.E(right).Parent = id
		p.tree.E(right).Side = ast.Right
		left = id
	}
	return left, nil
}

// checkLValue rejects assignment operators whose left operand cannot be
// stored to: only identifiers, struct field access, and pointer
// dereferences are addressable.
func (p *Parser) checkLValue(id ast.ExprID) error {
	e := p.tree.E(id)
	switch e.Kind {
	case ast.ExprIdentifier:
		return nil
	case ast.ExprBinaryOp:
		if e.Op == token.DOT {
			return nil
		}
	case ast.ExprUnaryOp:
		if e.Op == token.CARET {
			return nil
		}
	}
	return p.errorf("left-hand side of assignment is not assignable")
}

// parseUnary parses a single precedence-10 prefix (or a cast, which
// shares the prefix position) followed by postfix operators.
func (p *Parser) parseUnary(terms []token.Type) (ast.ExprID, error) {
	if p.cur.Type == token.LPAREN && p.isTypeStart(p.peekAt(1)) {
		return p.parseCast(terms)
	}

	if unaryPrefix[p.cur.Type] {
		line := p.cur.Line
		op := p.cur.Type
		p.advance()
		operand, err := p.parseUnary(terms)
		if err != nil {
			return ast.NoExpr, err
		}
		t, err := inferUnaryType(op, p.tree.E(operand).Type)
		if err != nil {
			return ast.NoExpr, err
		}
		id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprUnaryOp, Line: line, Op: op, Operand: operand, Type: t})
		p.tree.E(operand).Parent = id
		return p.parsePostfix(id, terms)
	}

	prim, err := p.parsePrimary()
	if err != nil {
		return ast.NoExpr, err
	}
	return p.parsePostfix(prim, terms)
}

// parseCast parses `( type )` followed by the operand it casts.
func (p *Parser) parseCast(terms []token.Type) (ast.ExprID, error) {
	line := p.cur.Line
	p.advance() // '('
	t, err := p.parseType()
	if err != nil {
		return ast.NoExpr, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return ast.NoExpr, err
	}
	operand, err := p.parseUnary(terms)
	if err != nil {
		return ast.NoExpr, err
	}
	rt, err := inferCastType(t, p.tree.E(operand).Type)
	if err != nil {
		return ast.NoExpr, err
	}
	id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprCast, Line: line, CastType: t, Operand: operand, Type: rt})
	p.tree.E(operand).Parent = id
	return p.parsePostfix(id, terms)
}

// parsePostfix handles precedence-11 suffixes: member access and
// postfix increment/decrement.
func (p *Parser) parsePostfix(expr ast.ExprID, terms []token.Type) (ast.ExprID, error) {
	for {
		switch p.cur.Type {
		case token.DOT:
			line := p.cur.Line
			p.advance()
			if p.cur.Type != token.IDENT {
				return ast.NoExpr, p.errorf("expected a field name after '.', found '%s'", p.cur.Type)
			}
			field := p.cur.Literal
			p.advance()

			t, err := inferMemberType(p.tree.E(expr).Type, field)
			if err != nil {
				return ast.NoExpr, err
			}
			fieldIdent := p.tree.NewExpr(ast.Expr{Kind: ast.ExprIdentifier, Line: line, Name: field, Type: t})
			id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprBinaryOp, Line: line, Op: token.DOT, Left: expr, Right: fieldIdent, Name: field, Type: t})
			p.tree.E(expr).Parent = id
			p.tree.E(expr).Side = ast.Left
			p.tree.E(fieldIdent).Parent = id
			p.tree.E(fieldIdent).Side = ast.Right
			expr = id
			continue

		case token.INC, token.DEC:
			line := p.cur.Line
			op := p.cur.Type
			t, err := inferUnaryType(op, p.tree.E(expr).Type)
			if err != nil {
				return ast.NoExpr, err
			}
			id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprUnaryOp, Line: line, Op: op, Operand: expr, Type: t})
			p.tree.E(expr).Parent = id
			p.advance()
			expr = id
			continue
		}
		break
	}
	return expr, nil
}

func (p *Parser) parsePrimary() (ast.ExprID, error) {
	line := p.cur.Line
	switch p.cur.Type {
	case token.INT:
		v, _ := strconv.ParseInt(p.cur.Literal, 10, 64)
		id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprInteger, Line: line, IntVal: v, Type: types.Int})
		p.advance()
		return id, nil

	case token.FLOAT:
		v, _ := strconv.ParseFloat(p.cur.Literal, 64)
		id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprFloat, Line: line, FloatVal: v, Type: types.Float})
		p.advance()
		return id, nil

	case token.STRING:
		id := p.tree.NewExpr(ast.Expr{Kind: ast.ExprString, Line: line, StringVal: p.cur.Literal, Type: types.Pointer(types.Byte)})
		p.advance()
		return id, nil

	case token.IDENT:
		return p.parseIdentOrCall()

	case token.LPAREN:
		p.advance()
		inner, err := p.parseExpression(token.RPAREN)
		if err != nil {
			return ast.NoExpr, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return ast.NoExpr, err
		}
		return inner, nil
	}
	return ast.NoExpr, p.errorf("unexpected token '%s' in expression", p.cur.Type)
}

// parseIdentOrCall distinguishes a plain identifier from a function
// call (`IDENT ['<' types '>'] '(' args ')'`), per spec.md §4.2.
func (p *Parser) parseIdentOrCall() (ast.ExprID, error) {
	line := p.cur.Line
	name := p.cur.Literal
	p.advance()

	var genericTypes []*types.Type
	hasGenerics := false
	if p.cur.Type == token.LT && p.looksLikeGenericArgs() {
		hasGenerics = true
		p.advance() // '<'
		for p.cur.Type != token.GT {
			t, err := p.parseType()
			if err != nil {
				return ast.NoExpr, err
			}
			genericTypes = append(genericTypes, t)
			if p.cur.Type == token.COMMA {
				p.advance()
			}
		}
		p.advance() // '>'
	}

	if p.cur.Type != token.LPAREN {
		if hasGenerics {
			return ast.NoExpr, p.errorf("'<...>' is only valid on a function call")
		}
		t, ok := p.lookupVar(name)
		if !ok {
			return ast.NoExpr, p.errorf("undeclared identifier '%s'", name)
		}
		return p.tree.NewExpr(ast.Expr{Kind: ast.ExprIdentifier, Line: line, Name: name, Type: t}), nil
	}

	fn, ok := p.funcs[name]
	if !ok {
		return ast.NoExpr, p.errorf("call to undeclared function '%s'", name)
	}
	p.advance() // '('

	argID := ast.NoExpr
	var argTypes []*types.Type
	if p.cur.Type != token.RPAREN {
		var err error
		argID, err = p.parseExpression(token.RPAREN)
		if err != nil {
			return ast.NoExpr, err
		}
		for _, e := range flattenCommaExprs(p.tree, argID) {
			argTypes = append(argTypes, p.tree.E(e).Type)
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return ast.NoExpr, err
	}

	if len(fn.generics) > 0 {
		if len(genericTypes) != len(fn.generics) {
			return ast.NoExpr, p.errorf("'%s' expects %d type argument(s), found %d", name, len(fn.generics), len(genericTypes))
		}
		if err := instantiate(p.tree, p.types, fn, genericTypes, map[string]bool{}); err != nil {
			return ast.NoExpr, err
		}
	} else if hasGenerics {
		return ast.NoExpr, p.errorf("'%s' is not a generic function", name)
	}

	retType, err := inferCallType(fn, argTypes, genericTypes)
	if err != nil {
		return ast.NoExpr, err
	}

	calleeID := p.tree.NewExpr(ast.Expr{Kind: ast.ExprIdentifier, Line: line, Name: name})
	callID := p.tree.NewExpr(ast.Expr{
		Kind: ast.ExprFuncCall, Line: line, Name: name, Callee: calleeID, Arg: argID,
		GenericArgs: genericTypes, Type: retType, IsHostCall: fn.modifiers.Has(types.ModCFunc),
	})
	p.tree.E(calleeID).Parent = callID
	if argID != ast.NoExpr {
		p.tree.E(argID).Parent = callID
	}
	return callID, nil
}

// looksLikeGenericArgs peeks past a '<' for a matching top-level '>'
// immediately followed by '(', over a bounded run of type-shaped
// tokens - the cheapest way to tell a generic call's `<T>` apart from
// a less-than comparison without unbounded backtracking.
func (p *Parser) looksLikeGenericArgs() bool {
	depth := 1
	for n := 1; n <= 64; n++ {
		t := p.peekAt(n)
		switch t.Type {
		case token.EOF, token.SEMI, token.LBRACE, token.RPAREN:
			return false
		case token.LT:
			depth++
		case token.GT:
			depth--
			if depth == 0 {
				return p.peekAt(n+1).Type == token.LPAREN
			}
		case token.IDENT, token.COMMA, token.CARET:
			// plausible type-list content, keep scanning
		default:
			return false
		}
	}
	return false
}

// flattenCommaExprs walks a left-leaning comma-operator chain and
// returns its leaves in source (left-to-right) order.
func flattenCommaExprs(tree *ast.Tree, id ast.ExprID) []ast.ExprID {
	e := tree.E(id)
	if e.Kind == ast.ExprBinaryOp && e.Op == token.COMMA {
		return append(flattenCommaExprs(tree, e.Left), e.Right)
	}
	return []ast.ExprID{id}
}
