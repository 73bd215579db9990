// Package parser builds a typed syntax tree from a Spyre token stream:
// statement dispatch, a precedence-climbing expression parser, name
// and generic resolution, constant folding and dead-branch elimination.
// Grounded in original_source/parse.c's shunting-yard operator table
// and spec.md's fuller statement/typechecking grammar - the original
// C parser only ever finished the expression half, so the statement
// grammar, generics, and struct support here are a clean-room
// implementation of the unfinished design, written the way
// skx-math-compiler's single compiler.go builds its own tree.
package parser

import (
	"github.com/pkg/errors"

	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/token"
	"github.com/skx/spyre/types"
)

// function records one declared function's signature, used to check
// forward declarations against their implementation and to typecheck
// call sites.
type function struct {
	name        string
	modifiers   types.Modifier
	generics    []string
	params      []ast.Param
	variadic    bool
	returnType  *types.Type
	implemented bool
	stmt        ast.StmtID
}

// Parser turns a token stream into a *ast.Tree, resolving names and
// types as it goes.
type Parser struct {
	file string
	cur  *token.Token

	tree  *ast.Tree
	types *types.Table

	scopes []ast.StmtID // enclosing Block ids, innermost last

	funcs map[string]*function

	curParams   []ast.Param // nil outside a function body
	curGenerics []string    // generic names in scope, nil outside a generic function
	curReturn   *types.Type // enclosing function's return type
	inLoop      int         // >0 inside a While/For body, for break/continue validation
}

// Optimization levels accepted by Parse: each level includes every
// transform below it.
const (
	OptNone = 0 // no tree transforms
	OptFold = 1 // constant folding
	OptFull = 2 // constant folding plus dead-branch elimination
)

// Parse consumes the whole token stream rooted at head and returns the
// resulting tree together with the type table it populated (built-ins
// plus any struct declarations). filename is used in error messages;
// optLevel selects which post-parse transforms run over the tree.
func Parse(filename string, head *token.Token, optLevel int) (*ast.Tree, *types.Table, error) {
	p := &Parser{
		file:  filename,
		cur:   head,
		tree:  ast.NewTree(),
		types: types.NewTable(),
		funcs: map[string]*function{},
	}
	p.scopes = []ast.StmtID{p.tree.Root}

	for p.cur.Type != token.EOF {
		id, err := p.parseStatement()
		if err != nil {
			return nil, nil, err
		}
		if id == ast.NoStmt {
			continue
		}
		// A forward declaration with no body contributes nothing to
		// run; it only registers a signature for later calls and
		// matching against its eventual implementation.
		if s := p.tree.S(id); s.Kind == ast.StmtFunction && !s.Implemented {
			continue
		}
		p.tree.AppendChild(p.tree.Root, id)
	}

	for _, fn := range p.funcs {
		if !fn.implemented && !fn.modifiers.Has(types.ModCFunc) {
			return nil, nil, p.errorf("function '%s' declared but never implemented", fn.name)
		}
	}

	switch {
	case optLevel >= OptFull:
		EliminateDeadBranches(p.tree)
	case optLevel >= OptFold:
		FoldConstants(p.tree)
	}

	return p.tree, p.types, nil
}

func (p *Parser) advance() {
	if p.cur.Next != nil {
		p.cur = p.cur.Next
	}
}

func (p *Parser) at(tt token.Type) bool { return p.cur.Type == tt }

func (p *Parser) peekAt(n int) *token.Token {
	t := p.cur
	for i := 0; i < n && t.Next != nil; i++ {
		t = t.Next
	}
	return t
}

func (p *Parser) expect(tt token.Type) (*token.Token, error) {
	if p.cur.Type != tt {
		return nil, p.errorf("expected '%s', found '%s' (%q)", tt, p.cur.Type, p.cur.Literal)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

// parseStatement dispatches on the leading token(s), per spec.md's
// top-level loop.
func (p *Parser) parseStatement() (ast.StmtID, error) {
	switch p.cur.Type {
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		if p.inLoop == 0 {
			return ast.NoStmt, p.errorf("'break' outside of a loop")
		}
		line := p.cur.Line
		p.advance()
		if _, err := p.expect(token.SEMI); err != nil {
			return ast.NoStmt, err
		}
		return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtBreak, Line: line}), nil
	case token.CONTINUE:
		if p.inLoop == 0 {
			return ast.NoStmt, p.errorf("'continue' outside of a loop")
		}
		line := p.cur.Line
		p.advance()
		if _, err := p.expect(token.SEMI); err != nil {
			return ast.NoStmt, err
		}
		return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtContinue, Line: line}), nil
	case token.LBRACE:
		return p.parseBlock()
	case token.SEMI:
		p.advance()
		return ast.NoStmt, nil
	case token.FUNC, token.SWITCH, token.CASE, token.DO:
		return ast.NoStmt, p.errorf("'%s' is not supported by this implementation", p.cur.Type)
	case token.IDENT:
		switch p.classifyIdentHead() {
		case headFunction:
			return p.parseFunction()
		case headStruct:
			return p.parseStruct()
		case headLocal:
			return p.parseLocalDecl()
		}
	}
	return p.parseStatementExpr()
}

type identHead int

const (
	headNone identHead = iota
	headFunction
	headStruct
	headLocal
)

// classifyIdentHead looks ahead from an IDENT at p.cur without
// consuming anything, distinguishing a function head, a struct head,
// and a local declaration - all three share the `IDENT ':' ...` prefix.
func (p *Parser) classifyIdentHead() identHead {
	n := 1 // offset of the token after the identifier
	if p.peekAt(n).Type == token.LT {
		n++
		for p.peekAt(n).Type != token.GT {
			if p.peekAt(n).Type == token.EOF {
				return headNone
			}
			n++
		}
		n++ // past '>'
	}
	if p.peekAt(n).Type != token.COLON {
		return headNone
	}
	n++
	for p.peekAt(n).Type == token.CFUNC || (p.peekAt(n).Type == token.IDENT && isModifierWord(p.peekAt(n).Literal)) {
		n++
	}
	switch p.peekAt(n).Type {
	case token.LPAREN:
		return headFunction
	case token.STRUCT:
		return headStruct
	default:
		if p.isTypeStart(p.peekAt(n)) {
			return headLocal
		}
	}
	return headNone
}

// parseModifiers consumes a run of modifier identifiers (plus the
// `cfunc` keyword, which is lexed as its own token type rather than an
// identifier), returning the combined flag set.
func (p *Parser) parseModifiers() types.Modifier {
	var m types.Modifier
	for {
		if p.cur.Type == token.CFUNC {
			m |= types.ModCFunc
			p.advance()
			continue
		}
		if p.cur.Type != token.IDENT || !isModifierWord(p.cur.Literal) {
			break
		}
		switch p.cur.Literal {
		case "static":
			m |= types.ModStatic
		case "const":
			m |= types.ModConst
		case "volatile":
			m |= types.ModVolatile
		}
		p.advance()
	}
	return m
}

// parseType parses a type reference: optional modifiers, a run of
// pointer-depth carets, then a base type name (built-in, struct, or
// in-scope generic parameter).
func (p *Parser) parseType() (*types.Type, error) {
	mods := p.parseModifiers()

	depth := 0
	for p.cur.Type == token.CARET {
		depth++
		p.advance()
	}

	if p.cur.Type != token.IDENT {
		return nil, p.errorf("expected a type name, found '%s'", p.cur.Type)
	}
	name := p.cur.Literal
	p.advance()

	base, ok := p.types.Lookup(name)
	if !ok {
		return nil, p.errorf("undeclared type '%s'", name)
	}

	t := *base
	t.Modifiers = mods
	for i := 0; i < depth; i++ {
		t = *types.Pointer(&t)
	}
	return &t, nil
}

// parseBlock parses a `{ ... }` statement sequence as a new lexical
// scope, pushing/popping it on the scope stack around the body.
func (p *Parser) parseBlock() (ast.StmtID, error) {
	line := p.cur.Line
	if _, err := p.expect(token.LBRACE); err != nil {
		return ast.NoStmt, err
	}

	id := p.tree.NewStmt(ast.Stmt{Kind: ast.StmtBlock, Line: line, Body: ast.NoStmt, Else: ast.NoStmt})
	p.scopes = append(p.scopes, id)

	for p.cur.Type != token.RBRACE {
		if p.cur.Type == token.EOF {
			p.scopes = p.scopes[:len(p.scopes)-1]
			return ast.NoStmt, p.errorf("unterminated block")
		}
		child, err := p.parseStatement()
		if err != nil {
			return ast.NoStmt, err
		}
		if child != ast.NoStmt {
			p.tree.AppendChild(id, child)
		}
	}
	p.advance() // consume '}'

	p.scopes = p.scopes[:len(p.scopes)-1]
	return id, nil
}

func (p *Parser) currentBlock() ast.StmtID { return p.scopes[len(p.scopes)-1] }

// declareLocal registers name in the innermost open block, rejecting a
// duplicate in the same block.
func (p *Parser) declareLocal(name string, t *types.Type) error {
	blk := p.tree.S(p.currentBlock())
	for _, l := range blk.Locals {
		if l.Name == name {
			return p.errorf("'%s' already declared in this block", name)
		}
	}
	blk.Locals = append(blk.Locals, ast.Local{Name: name, Type: t})
	return nil
}

// lookupVar resolves an identifier against the enclosing block chain,
// then the current function's parameters - per spec.md's scope rule.
func (p *Parser) lookupVar(name string) (*types.Type, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		blk := p.tree.S(p.scopes[i])
		for _, l := range blk.Locals {
			if l.Name == name {
				return l.Type, true
			}
		}
	}
	for _, prm := range p.curParams {
		if prm.Name == name {
			return prm.Type, true
		}
	}
	return nil, false
}

func (p *Parser) parseIf() (ast.StmtID, error) {
	line := p.cur.Line
	p.advance() // 'if'
	if _, err := p.expect(token.LPAREN); err != nil {
		return ast.NoStmt, err
	}
	cond, err := p.parseExpression(token.RPAREN)
	if err != nil {
		return ast.NoStmt, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return ast.NoStmt, err
	}
	if !isBoolish(p.tree.E(cond).Type) {
		return ast.NoStmt, p.errorf("if condition must be int or pointer, found %s", p.tree.E(cond).Type)
	}

	body, err := p.parseBlock()
	if err != nil {
		return ast.NoStmt, err
	}

	elseID := ast.NoStmt
	switch p.cur.Type {
	case token.ELIF:
		p.cur.Type = token.IF // an elif is a nested if in the else slot
		elseID, err = p.parseIf()
		if err != nil {
			return ast.NoStmt, err
		}
	case token.ELSE:
		p.advance()
		elseID, err = p.parseBlock()
		if err != nil {
			return ast.NoStmt, err
		}
	}

	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtIf, Line: line, Cond: cond, Body: body, Else: elseID}), nil
}

func (p *Parser) parseWhile() (ast.StmtID, error) {
	line := p.cur.Line
	p.advance()
	if _, err := p.expect(token.LPAREN); err != nil {
		return ast.NoStmt, err
	}
	cond, err := p.parseExpression(token.RPAREN)
	if err != nil {
		return ast.NoStmt, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return ast.NoStmt, err
	}

	p.inLoop++
	body, err := p.parseBlock()
	p.inLoop--
	if err != nil {
		return ast.NoStmt, err
	}

	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtWhile, Line: line, Cond: cond, Body: body, Else: ast.NoStmt}), nil
}

func (p *Parser) parseFor() (ast.StmtID, error) {
	line := p.cur.Line
	p.advance()
	if _, err := p.expect(token.LPAREN); err != nil {
		return ast.NoStmt, err
	}

	init := ast.NoExpr
	if p.cur.Type != token.SEMI {
		var err error
		init, err = p.parseExpression(token.SEMI)
		if err != nil {
			return ast.NoStmt, err
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return ast.NoStmt, err
	}

	cond := ast.NoExpr
	if p.cur.Type != token.SEMI {
		var err error
		cond, err = p.parseExpression(token.SEMI)
		if err != nil {
			return ast.NoStmt, err
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return ast.NoStmt, err
	}

	step := ast.NoExpr
	if p.cur.Type != token.RPAREN {
		var err error
		step, err = p.parseExpression(token.RPAREN)
		if err != nil {
			return ast.NoStmt, err
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return ast.NoStmt, err
	}

	p.inLoop++
	body, err := p.parseBlock()
	p.inLoop--
	if err != nil {
		return ast.NoStmt, err
	}

	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtFor, Line: line, Init: init, Cond: cond, Step: step, Body: body, Else: ast.NoStmt}), nil
}

func (p *Parser) parseReturn() (ast.StmtID, error) {
	if p.curReturn == nil {
		return ast.NoStmt, p.errorf("'return' outside of a function")
	}
	line := p.cur.Line
	p.advance()

	expr := ast.NoExpr
	if p.cur.Type != token.SEMI {
		var err error
		expr, err = p.parseExpression(token.SEMI)
		if err != nil {
			return ast.NoStmt, err
		}
		rt := p.tree.E(expr).Type
		if rt != nil && !rt.IsGeneric && !p.curReturn.IsGeneric && !types.Equal(rt, p.curReturn) {
			return ast.NoStmt, p.errorf("return type mismatch: function returns %s, got %s", p.curReturn, rt)
		}
	} else if !types.Equal(p.curReturn, types.Void) {
		return ast.NoStmt, p.errorf("missing return value: function returns %s", p.curReturn)
	}

	if _, err := p.expect(token.SEMI); err != nil {
		return ast.NoStmt, err
	}
	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtReturn, Line: line, Expr: expr}), nil
}

func (p *Parser) parseLocalDecl() (ast.StmtID, error) {
	line := p.cur.Line
	name := p.cur.Literal
	p.advance()
	if _, err := p.expect(token.COLON); err != nil {
		return ast.NoStmt, err
	}
	t, err := p.parseType()
	if err != nil {
		return ast.NoStmt, err
	}
	if err := p.declareLocal(name, t); err != nil {
		return ast.NoStmt, err
	}

	if p.cur.Type != token.ASSIGN {
		if _, err := p.expect(token.SEMI); err != nil {
			return ast.NoStmt, err
		}
		return ast.NoStmt, nil
	}
	p.advance() // '='

	rhs, err := p.parseExpression(token.SEMI)
	if err != nil {
		return ast.NoStmt, err
	}
	if !types.Equal(t, p.tree.E(rhs).Type) {
		return ast.NoStmt, p.errorf("cannot initialize %s '%s' with %s", t, name, p.tree.E(rhs).Type)
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return ast.NoStmt, err
	}

	lhs := p.tree.NewExpr(ast.Expr{Kind: ast.ExprIdentifier, Line: line, Name: name, Type: t})
	assign := p.tree.NewExpr(ast.Expr{Kind: ast.ExprBinaryOp, Line: line, Op: token.ASSIGN, Left: lhs, Right: rhs, Type: t})
	p.tree.E(lhs).Parent = assign
	p.tree.E(lhs).Side = ast.Left
	p.tree.E(rhs).Parent = assign
	p.tree.E(rhs).Side = ast.Right

	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtExpr, Line: line, Expr: assign}), nil
}

func (p *Parser) parseStatementExpr() (ast.StmtID, error) {
	line := p.cur.Line
	expr, err := p.parseExpression(token.SEMI)
	if err != nil {
		return ast.NoStmt, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return ast.NoStmt, err
	}
	return p.tree.NewStmt(ast.Stmt{Kind: ast.StmtExpr, Line: line, Expr: expr}), nil
}

// parseStruct parses `name : modifier* struct { field : type ; ... }`.
func (p *Parser) parseStruct() (ast.StmtID, error) {
	name := p.cur.Literal
	p.advance()
	if _, err := p.expect(token.COLON); err != nil {
		return ast.NoStmt, err
	}
	p.parseModifiers()
	if _, err := p.expect(token.STRUCT); err != nil {
		return ast.NoStmt, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return ast.NoStmt, err
	}

	var fields []types.Field
	for p.cur.Type != token.RBRACE {
		if p.cur.Type != token.IDENT {
			return ast.NoStmt, p.errorf("expected a field name, found '%s'", p.cur.Type)
		}
		fname := p.cur.Literal
		p.advance()
		if _, err := p.expect(token.COLON); err != nil {
			return ast.NoStmt, err
		}
		ftype, err := p.parseType()
		if err != nil {
			return ast.NoStmt, err
		}
		if _, err := p.expect(token.SEMI); err != nil {
			return ast.NoStmt, err
		}
		fields = append(fields, types.Field{Name: fname, Type: ftype})
	}
	p.advance() // '}'

	if _, err := p.types.DeclareStruct(name, fields); err != nil {
		return ast.NoStmt, p.errorf("%s", err)
	}

	// Struct declarations carve out no runtime statement of their own;
	// they only populate the type table.
	return ast.NoStmt, nil
}

// parseFunction parses a function head plus (if present) its body or
// short-sugar expression, per spec.md's `IDENT ['<' generics '>'] ':'
// modifier* '(' params ')' ['->' type] (';' | '=' expr ';' | block)`.
func (p *Parser) parseFunction() (ast.StmtID, error) {
	line := p.cur.Line
	name := p.cur.Literal
	p.advance()

	var generics []string
	if p.cur.Type == token.LT {
		p.advance()
		for p.cur.Type != token.GT {
			if p.cur.Type != token.IDENT {
				return ast.NoStmt, p.errorf("expected a generic parameter name, found '%s'", p.cur.Type)
			}
			generics = append(generics, p.cur.Literal)
			p.advance()
			if p.cur.Type == token.COMMA {
				p.advance()
			}
		}
		p.advance() // '>'
	}

	if _, err := p.expect(token.COLON); err != nil {
		return ast.NoStmt, err
	}
	mods := p.parseModifiers()

	if _, err := p.expect(token.LPAREN); err != nil {
		return ast.NoStmt, err
	}

	p.curGenerics = generics
	for _, g := range generics {
		p.types.BindGeneric(g, &types.Type{Name: g, IsGeneric: true, Size: 8})
	}

	var params []ast.Param
	variadic := false
	for p.cur.Type != token.RPAREN {
		if p.cur.Type == token.ELLIPSIS {
			p.advance()
			if p.cur.Type != token.RPAREN {
				return ast.NoStmt, p.errorf("'...' must be the last parameter")
			}
			variadic = true
			break
		}
		if p.cur.Type != token.IDENT {
			return ast.NoStmt, p.errorf("expected a parameter name, found '%s'", p.cur.Type)
		}
		pname := p.cur.Literal
		p.advance()
		if _, err := p.expect(token.COLON); err != nil {
			return ast.NoStmt, err
		}
		ptype, err := p.parseType()
		if err != nil {
			return ast.NoStmt, err
		}
		params = append(params, ast.Param{Name: pname, Type: ptype})
		if p.cur.Type == token.COMMA {
			p.advance()
		}
	}
	p.advance() // ')'

	returnType := types.Void
	if p.cur.Type == token.ARROW {
		p.advance()
		var err error
		returnType, err = p.parseType()
		if err != nil {
			return ast.NoStmt, err
		}
	}

	if variadic && !mods.Has(types.ModCFunc) {
		return ast.NoStmt, p.errorf("only a 'cfunc' declaration may take '...'")
	}

	existing, redeclared := p.funcs[name]
	if redeclared {
		if err := matchSignature(existing, params, returnType, variadic); err != nil {
			return ast.NoStmt, p.errorf("%s", err)
		}
		if existing.implemented && p.cur.Type != token.SEMI {
			return ast.NoStmt, p.errorf("function '%s' already implemented", name)
		}
	}

	p.curParams = params
	p.curReturn = returnType
	id := p.tree.NewStmt(ast.Stmt{
		Kind: ast.StmtFunction, Line: line, Name: name, Modifiers: mods,
		Generics: generics, Params: params, ReturnType: returnType,
		Body: ast.NoStmt,
	})
	if !redeclared {
		// registered before the body so the function can call itself
		p.funcs[name] = &function{name: name, modifiers: mods, generics: generics, params: params, variadic: variadic, returnType: returnType, stmt: id}
	}

	if mods.Has(types.ModCFunc) && p.cur.Type != token.SEMI {
		return ast.NoStmt, p.errorf("a 'cfunc' declaration names a host function and takes no body")
	}

	var err error
	switch p.cur.Type {
	case token.SEMI:
		p.advance()
		// forward declaration only
	case token.ASSIGN:
		p.advance()
		var expr ast.ExprID
		expr, err = p.parseExpression(token.SEMI)
		if err == nil {
			if _, serr := p.expect(token.SEMI); serr != nil {
				err = serr
			}
		}
		if err == nil {
			rt := p.tree.E(expr).Type
			if rt != nil && !rt.IsGeneric && !returnType.IsGeneric && !types.Equal(rt, returnType) {
				return ast.NoStmt, p.errorf("return type mismatch: function returns %s, got %s", returnType, rt)
			}
			ret := p.tree.NewStmt(ast.Stmt{Kind: ast.StmtReturn, Line: line, Expr: expr})
			body := p.tree.NewStmt(ast.Stmt{Kind: ast.StmtBlock, Parent: id})
			p.tree.AppendChild(body, ret)
			s := p.tree.S(id)
			s.Body = body
			s.Implemented = true
		}
	case token.LBRACE:
		var body ast.StmtID
		body, err = p.parseFunctionBlock(params)
		if err == nil {
			s := p.tree.S(id)
			s.Body = body
			s.Implemented = true
		}
	default:
		err = p.errorf("expected ';', '=', or '{' after function header, found '%s'", p.cur.Type)
	}

	for _, g := range generics {
		p.types.UnbindGeneric(g, nil)
	}
	p.curParams = nil
	p.curGenerics = nil
	p.curReturn = nil

	if err != nil {
		return ast.NoStmt, err
	}

	fn := &function{name: name, modifiers: mods, generics: generics, params: params, variadic: variadic, returnType: returnType, stmt: id}
	fn.implemented = p.tree.S(id).Implemented
	p.funcs[name] = fn

	return id, nil
}

// parseFunctionBlock parses a function body block, with the function's
// own parameters shadowed into lookupVar (via p.curParams, already set
// by the caller).
func (p *Parser) parseFunctionBlock(params []ast.Param) (ast.StmtID, error) {
	return p.parseBlock()
}

func matchSignature(existing *function, params []ast.Param, ret *types.Type, variadic bool) error {
	if len(existing.params) != len(params) || existing.variadic != variadic {
		return errors.Errorf("function '%s' redeclared with a different arity", existing.name)
	}
	for i := range params {
		if !types.Equal(existing.params[i].Type, params[i].Type) {
			return errors.Errorf("function '%s' parameter %d type mismatch: %s vs %s",
				existing.name, i, existing.params[i].Type, params[i].Type)
		}
	}
	if !types.Equal(existing.returnType, ret) {
		return errors.Errorf("function '%s' redeclared with a different return type", existing.name)
	}
	return nil
}

// isBoolish reports whether t may be used as an if/while condition:
// int or any pointer depth.
func isBoolish(t *types.Type) bool {
	if t == nil {
		return false
	}
	return t.Name == "int" || t.PointerDepth > 0
}
