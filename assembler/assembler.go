// Package assembler turns Spyre assembly source into the binary image
// the VM loads: a small header followed by a ROM blob and a code blob.
// Grounded in original_source/assembler.c's three-pass algorithm -
// label/constant scan, reference resolution, and emission - reproduced
// here as a scan pass followed by a combined resolve-and-emit pass.
package assembler

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/skx/spyre/asmlex"
	"github.com/skx/spyre/opcode"
)

// Magic is the fixed 4-byte signature at the start of every image.
const Magic uint32 = 0x5950535F

// headerSize is the three leading uint32 fields: magic, rom-start
// field, code-start field. The loader always begins copying ROM bytes
// at the absolute file offset 12 (3*4); the rom-start field itself is
// carried for format fidelity but is not consulted by the loader,
// matching the original binary's own behavior.
const headerSize = 12

// Assemble compiles Spyre assembly source into a binary image, or
// returns the first error encountered.
func Assemble(filename, src string) ([]byte, error) {
	toks, err := asmlex.New(filename, src).Tokenize()
	if err != nil {
		return nil, err
	}

	a := &assembler{file: filename, toks: toks, labels: map[string]int{}, constants: map[string]int{}}
	if err := a.scan(); err != nil {
		return nil, err
	}
	code, err := a.emit()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	romStart := uint32(8)
	codeStart := uint32(headerSize + len(a.rom))
	binary.Write(&out, binary.LittleEndian, Magic)
	binary.Write(&out, binary.LittleEndian, romStart)
	binary.Write(&out, binary.LittleEndian, codeStart)
	out.Write(a.rom)
	out.Write(code)
	return out.Bytes(), nil
}

// Load splits a previously-assembled binary image back into its ROM
// and code blobs, the inverse of Assemble's header-plus-two-blobs
// layout - used by the `spyre r` subcommand to hand both slices to
// vm.New.
func Load(img []byte) (rom, code []byte, err error) {
	if len(img) < headerSize {
		return nil, nil, errors.New("spyre: truncated image: missing header")
	}
	magic := binary.LittleEndian.Uint32(img[0:4])
	if magic != Magic {
		return nil, nil, errors.Errorf("spyre: bad magic %#x, expected %#x", magic, Magic)
	}
	codeStart := binary.LittleEndian.Uint32(img[8:12])
	if int(codeStart) > len(img) {
		return nil, nil, errors.New("spyre: truncated image: code-start offset past end of file")
	}
	return img[headerSize:codeStart], img[codeStart:], nil
}

type assembler struct {
	file string
	toks []asmlex.Token

	labels    map[string]int // label name -> code byte offset
	constants map[string]int // constant name -> rom byte offset
	rom       []byte
}

func (a *assembler) line(i int) int {
	if i < len(a.toks) {
		return a.toks[i].Line
	}
	return 0
}

// scan is the label/constant pass: it walks the token stream without
// emitting anything, computing the byte offset each label and each
// "let" constant will land at.
func (a *assembler) scan() error {
	codeIndex := 0
	romSize := 0

	i := 0
	for i < len(a.toks) {
		tok := a.toks[i]
		switch {
		case tok.Kind == asmlex.NEWLINE || tok.Kind == asmlex.EOF:
			i++

		case tok.Kind == asmlex.LABEL:
			a.labels[tok.Literal] = codeIndex
			i++

		case tok.Kind == asmlex.IDENT && strings.EqualFold(tok.Literal, "let"):
			if i+2 >= len(a.toks) || a.toks[i+1].Kind != asmlex.IDENT || a.toks[i+2].Kind != asmlex.STRING {
				return errors.Errorf("%s:%d: malformed 'let' declaration", a.file, a.line(i))
			}
			name := a.toks[i+1].Literal
			str := a.toks[i+2].Literal
			a.constants[name] = romSize
			a.rom = append(a.rom, []byte(str)...)
			a.rom = append(a.rom, 0)
			romSize += len(str) + 1
			i += 3

		case tok.Kind == asmlex.IDENT:
			ins, ok := opcode.ByName(strings.ToUpper(tok.Literal))
			if !ok {
				return errors.Errorf("%s:%d: unknown instruction '%s'", a.file, a.line(i), tok.Literal)
			}
			codeIndex += ins.EncodedSize()
			i++
			for range ins.Operands {
				if i < len(a.toks) && a.toks[i].Kind == asmlex.COMMA {
					i++
				}
				i++
			}

		default:
			return errors.Errorf("%s:%d: unexpected token", a.file, a.line(i))
		}
	}
	return nil
}

// emit is the reference-resolution + assembly pass: it re-walks the
// token stream, this time writing opcode bytes and operand bytes,
// resolving bare identifiers against the label/constant tables built
// by scan.
func (a *assembler) emit() ([]byte, error) {
	var out bytes.Buffer

	i := 0
	for i < len(a.toks) {
		tok := a.toks[i]
		switch {
		case tok.Kind == asmlex.NEWLINE || tok.Kind == asmlex.EOF || tok.Kind == asmlex.LABEL:
			i++

		case tok.Kind == asmlex.IDENT && strings.EqualFold(tok.Literal, "let"):
			i += 3

		case tok.Kind == asmlex.IDENT:
			ins, ok := opcode.ByName(strings.ToUpper(tok.Literal))
			if !ok {
				return nil, errors.Errorf("%s:%d: unknown instruction '%s'", a.file, a.line(i), tok.Literal)
			}
			out.WriteByte(byte(ins.Opcode))
			i++
			for _, operand := range ins.Operands {
				if i < len(a.toks) && a.toks[i].Kind == asmlex.COMMA {
					i++
				}
				if i >= len(a.toks) {
					return nil, errors.Errorf("%s:%d: expected operand for %s", a.file, a.line(i-1), ins.Name)
				}
				n, fl, err := a.resolveOperand(i)
				if err != nil {
					return nil, err
				}
				switch operand {
				case opcode.Int64:
					binary.Write(&out, binary.LittleEndian, n)
				case opcode.Int32:
					binary.Write(&out, binary.LittleEndian, int32(n))
				case opcode.Float64:
					binary.Write(&out, binary.LittleEndian, fl)
				}
				i++
			}

		default:
			return nil, errors.Errorf("%s:%d: unexpected token", a.file, a.line(i))
		}
	}
	return out.Bytes(), nil
}

// resolveOperand returns the integer or float value of the operand
// token at index i: a literal, or an identifier resolved against the
// label table (first) then the constant table.
func (a *assembler) resolveOperand(i int) (int64, float64, error) {
	tok := a.toks[i]
	switch tok.Kind {
	case asmlex.INT:
		// An integer literal in a float operand slot (e.g. "fpush 2")
		// is still a valid float value.
		return tok.IntVal, float64(tok.IntVal), nil
	case asmlex.FLOAT:
		return 0, tok.FltVal, nil
	case asmlex.IDENT:
		if idx, ok := a.labels[tok.Literal]; ok {
			return int64(idx), 0, nil
		}
		if idx, ok := a.constants[tok.Literal]; ok {
			return int64(idx), 0, nil
		}
		return 0, 0, errors.Errorf("%s:%d: unresolved reference '%s'", a.file, a.line(i), tok.Literal)
	default:
		return 0, 0, errors.Errorf("%s:%d: expected a literal or identifier operand", a.file, a.line(i))
	}
}
