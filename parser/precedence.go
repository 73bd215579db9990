package parser

import "github.com/skx/spyre/token"

// assoc is an operator's associativity.
type assoc int

const (
	assocLeft assoc = iota
	assocRight
)

// opInfo is one entry of the operator-precedence table the expression
// parser climbs. Higher prec binds tighter.
type opInfo struct {
	prec  int
	assoc assoc
}

// binaryOps assigns every binary/assignment operator its precedence and
// associativity, per spec.md's operator table: 1 comma, 2 assignment
// family, 3 logical, 4 equality, 6 relational, 7 bitwise-shift /
// bitwise (and, or, xor grouped with it), 8 additive, 9 multiplicative.
// Level 5 is intentionally unused - the source table skips it.
var binaryOps = map[token.Type]opInfo{
	token.COMMA: {1, assocLeft},

	token.ASSIGN:   {2, assocRight},
	token.PLUSEQ:   {2, assocRight},
	token.MINUSEQ:  {2, assocRight},
	token.ASTEREQ:  {2, assocRight},
	token.SLASHEQ:  {2, assocRight},
	token.PERCENEQ: {2, assocRight},
	token.AMPEQ:    {2, assocRight},
	token.PIPEEQ:   {2, assocRight},
	token.CARETEQ:  {2, assocRight},
	token.SHLEQ:    {2, assocRight},
	token.SHREQ:    {2, assocRight},

	token.LAND: {3, assocLeft},
	token.LOR:  {3, assocLeft},

	token.EQ:  {4, assocLeft},
	token.NEQ: {4, assocLeft},

	token.GT: {6, assocLeft},
	token.GE: {6, assocLeft},
	token.LT: {6, assocLeft},
	token.LE: {6, assocLeft},

	token.SHL:   {7, assocLeft},
	token.SHR:   {7, assocLeft},
	token.PIPE:  {7, assocLeft},
	token.AMP:   {7, assocLeft},
	token.CARET: {7, assocLeft},

	token.PLUS:  {8, assocLeft},
	token.MINUS: {8, assocLeft},

	token.ASTERISK: {9, assocLeft},
	token.SLASH:    {9, assocLeft},
	token.PERCENT:  {9, assocLeft},
}

// assignOps is the whitelist of assignment operators; parseBinaryExpr
// requires their left operand to be assignable.
var assignOps = map[token.Type]bool{
	token.ASSIGN: true, token.PLUSEQ: true, token.MINUSEQ: true,
	token.ASTEREQ: true, token.SLASHEQ: true, token.PERCENEQ: true,
	token.AMPEQ: true, token.PIPEEQ: true, token.CARETEQ: true,
	token.SHLEQ: true, token.SHREQ: true,
}

// foldableOps is the whitelist constant folding is permitted to touch.
var foldableOps = map[token.Type]bool{
	token.PLUS: true, token.MINUS: true, token.ASTERISK: true, token.SLASH: true,
	token.SHL: true, token.SHR: true, token.GT: true, token.LT: true,
	token.GE: true, token.LE: true, token.EQ: true, token.NEQ: true,
	token.ASSIGN: true, token.PLUSEQ: true, token.MINUSEQ: true,
	token.ASTEREQ: true, token.SLASHEQ: true, token.PERCENEQ: true,
	token.SHLEQ: true, token.SHREQ: true, token.AMPEQ: true,
	token.PIPEEQ: true, token.CARETEQ: true,
}

// unaryPrefix are the tokens that may start a unary expression.
// Precedence 10.
var unaryPrefix = map[token.Type]bool{
	token.MINUS: true, token.BANG: true, token.TILDE: true,
	token.AMP: true, token.CARET: true, token.INC: true, token.DEC: true,
}

// isTypeStart reports whether tok can open a type (and therefore a
// cast, when it immediately follows an open paren): a built-in name, a
// modifier keyword, a struct or generic name, or a pointer-depth caret.
func (p *Parser) isTypeStart(tok *token.Token) bool {
	if tok.Type == token.CARET {
		return true
	}
	if tok.Type != token.IDENT {
		return false
	}
	if isModifierWord(tok.Literal) {
		return true
	}
	switch tok.Literal {
	case "int", "float", "byte", "void":
		return true
	}
	if _, ok := p.types.Lookup(tok.Literal); ok {
		return true
	}
	return false
}

func isModifierWord(s string) bool {
	switch s {
	case "static", "const", "volatile":
		return true
	}
	return false
}
