// Package lexer turns Spyre source text into a doubly-linked sequence of
// tokens, as described by the token stream component of the language.
package lexer

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/skx/spyre/token"
)

// three and two character punctuators are tried longest-match-first.
var threeCharPuncts = map[string]token.Type{
	">>=": token.SHREQ,
	"<<=": token.SHLEQ,
	"...": token.ELLIPSIS,
}

var twoCharPuncts = map[string]token.Type{
	"&&": token.LAND,
	"||": token.LOR,
	"<<": token.SHL,
	">>": token.SHR,
	"++": token.INC,
	"--": token.DEC,
	"+=": token.PLUSEQ,
	"-=": token.MINUSEQ,
	"*=": token.ASTEREQ,
	"/=": token.SLASHEQ,
	"%=": token.PERCENEQ,
	"&=": token.AMPEQ,
	"|=": token.PIPEEQ,
	"^=": token.CARETEQ,
	"==": token.EQ,
	"!=": token.NEQ,
	">=": token.GE,
	"<=": token.LE,
	"->": token.ARROW,
	":=": token.DEFINE,
}

var oneCharPuncts = map[rune]token.Type{
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.ASTERISK,
	'/': token.SLASH,
	'%': token.PERCENT,
	'&': token.AMP,
	'|': token.PIPE,
	'^': token.CARET,
	'!': token.BANG,
	'<': token.LT,
	'>': token.GT,
	'=': token.ASSIGN,
	'(': token.LPAREN,
	')': token.RPAREN,
	'{': token.LBRACE,
	'}': token.RBRACE,
	'[': token.LBRACKET,
	']': token.RBRACKET,
	',': token.COMMA,
	';': token.SEMI,
	':': token.COLON,
	'.': token.DOT,
	'~': token.TILDE,
}

// Lexer holds scanning state over a rune slice of source text.
type Lexer struct {
	filename string
	src      []rune
	pos      int
	line     int
}

// New creates a Lexer over input, attributing errors to filename.
func New(filename, input string) *Lexer {
	return &Lexer{filename: filename, src: []rune(input), line: 1}
}

// Tokenize scans the whole input and returns the head of the resulting
// doubly-linked token list, terminated by an EOF token.
func (l *Lexer) Tokenize() (*token.Token, error) {
	var head, tail *token.Token

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}

		if head == nil {
			head = tok
			tail = tok
		} else {
			tail.Next = tok
			tok.Prev = tail
			tail = tok
		}

		if tok.Type == token.EOF {
			break
		}
	}

	return head, nil
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) advance() rune {
	ch := l.peek()
	l.pos++
	if ch == '\n' {
		l.line++
	}
	return ch
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
			continue
		case '/':
			if l.peekAt(1) == '*' {
				startLine := l.line
				l.advance()
				l.advance()
				closed := false
				for l.pos < len(l.src) {
					if l.peek() == '*' && l.peekAt(1) == '/' {
						l.advance()
						l.advance()
						closed = true
						break
					}
					l.advance()
				}
				if !closed {
					return errors.Errorf("%s:%d: unterminated block comment", l.filename, startLine)
				}
				continue
			}
		}
		return nil
	}
}

func (l *Lexer) next() (*token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return nil, err
	}

	line := l.line

	if l.pos >= len(l.src) {
		return &token.Token{Type: token.EOF, Line: line}, nil
	}

	ch := l.peek()

	switch {
	case ch == '"':
		return l.readString(line)
	case isDigit(ch):
		return l.readNumber(line)
	case isIdentStart(ch):
		return l.readIdentifier(line)
	}

	if tok, ok := l.tryPunct(threeCharPuncts, 3); ok {
		tok.Line = line
		return tok, nil
	}
	if tok, ok := l.tryPunct(twoCharPuncts, 2); ok {
		tok.Line = line
		return tok, nil
	}
	if typ, ok := oneCharPuncts[ch]; ok {
		l.advance()
		return &token.Token{Type: typ, Literal: string(ch), Line: line}, nil
	}

	l.advance()
	return &token.Token{Type: token.ERROR, Literal: "unexpected character '" + string(ch) + "'", Line: line}, nil
}

func (l *Lexer) tryPunct(table map[string]token.Type, n int) (*token.Token, bool) {
	if l.pos+n > len(l.src) {
		return nil, false
	}
	s := string(l.src[l.pos : l.pos+n])
	if typ, ok := table[s]; ok {
		for i := 0; i < n; i++ {
			l.advance()
		}
		return &token.Token{Type: typ, Literal: s}, true
	}
	return nil, false
}

func (l *Lexer) readString(startLine int) (*token.Token, error) {
	l.advance() // opening quote

	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return nil, errors.Errorf("%s:%d: unterminated string literal", l.filename, startLine)
		}
		ch := l.advance()
		if ch == '"' {
			break
		}
		if ch == '\\' {
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '0':
				sb.WriteByte(0)
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			default:
				return nil, errors.Errorf("%s:%d: unknown escape sequence '\\%c'", l.filename, l.line, esc)
			}
			continue
		}
		sb.WriteRune(ch)
	}

	return &token.Token{Type: token.STRING, Literal: sb.String(), Line: startLine}, nil
}

func (l *Lexer) readNumber(startLine int) (*token.Token, error) {
	var sb strings.Builder
	isFloat := false

	for isDigit(l.peek()) {
		sb.WriteRune(l.advance())
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		sb.WriteRune(l.advance())
		for isDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}

	typ := token.INT
	if isFloat {
		typ = token.FLOAT
	}
	return &token.Token{Type: typ, Literal: sb.String(), Line: startLine}, nil
}

func (l *Lexer) readIdentifier(startLine int) (*token.Token, error) {
	var sb strings.Builder
	for isIdentPart(l.peek()) {
		sb.WriteRune(l.advance())
	}
	lit := sb.String()
	return &token.Token{Type: token.LookupIdentifier(lit), Literal: lit, Line: startLine}, nil
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}
