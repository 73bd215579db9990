package parser

import "github.com/pkg/errors"

// errorf builds a source-located parse/typecheck error: filename, line,
// and a formatted message. Recovery is never attempted - the first
// error returned by Parse terminates parsing.
func (p *Parser) errorf(format string, args ...interface{}) error {
	line := 0
	if p.cur != nil {
		line = p.cur.Line
	}
	msg := errors.Errorf(format, args...)
	return errors.Errorf("%s:%d: %s", p.file, line, msg)
}
