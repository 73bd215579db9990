// Package hostlib implements Spyre's default host-function registry:
// println/print, line input, file I/O, heap allocation, and the small
// math intrinsics every program can `ccall` into. Grounded in
// original_source/api.c's SpyL_* functions; guest-visible behavior
// (argument order, return values) matches the original exactly, but
// host FILE* pointers - which have no meaningful representation as a
// guest integer - are replaced by small integer handles into a local
// file table, per spec.md's virtual-address redesign note.
package hostlib

import (
	"bufio"
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/skx/spyre/vm"
)

// Registry owns the host-side state (open files) behind the handles
// Spyre programs pass around as "pointers".
type Registry struct {
	files  []*os.File
	stdin  *bufio.Reader
	stdout func(string)
}

// New creates an empty host-function registry that writes console
// output to os.Stdout until SetStdout installs another sink - tests
// pass a capturing sink there.
func New() *Registry {
	return &Registry{stdin: bufio.NewReader(os.Stdin)}
}

// SetStdout overrides the sink used for console output.
func (r *Registry) SetStdout(fn func(string)) { r.stdout = fn }

func (r *Registry) print(s string) {
	if r.stdout != nil {
		r.stdout(s)
		return
	}
	fmt.Print(s)
}

// Install registers every standard-library host function on m.
func (r *Registry) Install(m *vm.Machine) {
	m.Register("println", r.println)
	m.Register("print", r.print_)
	m.Register("getline", r.getline)

	m.Register("fopen", r.fopen)
	m.Register("fclose", r.fclose)
	m.Register("fputc", r.fputc)
	m.Register("fputs", r.fputs)
	m.Register("fprintf", r.fprintf)
	m.Register("fgetc", r.fgetc)
	m.Register("fread", r.fread)
	m.Register("ftell", r.ftell)
	m.Register("fseek", r.fseek)

	m.Register("malloc", r.malloc)
	m.Register("free", r.free)
	m.Register("exit", r.exit)

	m.Register("min", r.min)
	m.Register("max", r.max)
	m.Register("sqrt", r.sqrt)
	m.Register("sin", r.sin)
	m.Register("cos", r.cos)
	m.Register("tan", r.tan)
}

func (r *Registry) println(m *vm.Machine) (int, error) {
	if _, err := r.print_(m); err != nil {
		return 0, err
	}
	r.print("\n")
	return 0, nil
}

// print_ implements Spyre's printf-like `print`: a format string on
// the stack followed by one value per directive, consumed left to
// right as '%' directives are encountered.
func (r *Registry) print_(m *vm.Machine) (int, error) {
	format := m.PopString()
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '%':
			i++
			if i >= len(format) {
				break
			}
			switch format[i] {
			case 's':
				r.print(m.PopString())
			case 'd':
				r.print(fmt.Sprintf("%d", m.PopInt()))
			case 'x':
				r.print(fmt.Sprintf("%X", m.PopInt()))
			case 'p':
				r.print(fmt.Sprintf("0x%X", m.PopInt()))
			case 'f':
				r.print(fmt.Sprintf("%f", m.PopFloat()))
			case 'c':
				r.print(string(rune(m.PopInt())))
			case '%':
				r.print("%")
			default:
				r.print("%" + string(format[i]))
			}
		case '\\':
			i++
			if i >= len(format) {
				break
			}
			switch format[i] {
			case 'n':
				r.print("\n")
			case 't':
				r.print("\t")
			case '\\':
				r.print("\\")
			}
		default:
			r.print(string(c))
		}
	}
	return 0, nil
}

func (r *Registry) getline(m *vm.Machine) (int, error) {
	buf := m.PopAddr()
	length := m.PopInt()

	line, _ := r.stdin.ReadString('\n')
	if int64(len(line)) >= length {
		line = line[:length-1]
	}
	line = trimTrailingNewline(line)

	mem := m.Memory()
	copy(mem[buf:], line)
	mem[int(buf)+len(line)] = 0
	m.PushInt(int64(len(line)))
	return 1, nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (r *Registry) handleFor(f *os.File) int64 {
	r.files = append(r.files, f)
	return int64(len(r.files) - 1)
}

func (r *Registry) fileAt(handle int64) (*os.File, error) {
	if handle < 0 || int(handle) >= len(r.files) || r.files[handle] == nil {
		return nil, errors.Errorf("hostlib: invalid file handle %d", handle)
	}
	return r.files[handle], nil
}

func (r *Registry) fopen(m *vm.Machine) (int, error) {
	filename := m.PopString()
	mode := m.PopString()

	flags := os.O_RDONLY
	switch mode {
	case "w":
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "r+", "w+":
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(filename, flags, 0644)
	if err != nil {
		m.PushInt(-1)
		return 1, nil
	}
	m.PushInt(r.handleFor(f))
	return 1, nil
}

func (r *Registry) fclose(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	return 0, f.Close()
}

func (r *Registry) fputc(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	ch := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	_, err = f.Write([]byte{byte(ch)})
	return 0, err
}

func (r *Registry) fputs(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	s := m.PopString()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	_, err = f.WriteString(s)
	return 0, err
}

// fprintf is the file-bound analogue of print (the original's C body
// was left empty; see spec.md's resolution of this open question).
func (r *Registry) fprintf(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	prevSink := r.stdout
	r.stdout = func(s string) { _, _ = f.WriteString(s) }
	defer func() { r.stdout = prevSink }()
	return r.print_(m)
}

func (r *Registry) fgetc(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	var b [1]byte
	n, _ := f.Read(b[:])
	if n == 0 {
		m.PushInt(-1)
		return 1, nil
	}
	m.PushInt(int64(b[0]))
	return 1, nil
}

func (r *Registry) fread(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	dest := m.PopAddr()
	count := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	mem := m.Memory()
	_, _ = f.Read(mem[dest : int64(dest)+count])
	return 0, nil
}

func (r *Registry) ftell(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	pos, err := f.Seek(0, os.SEEK_CUR)
	if err != nil {
		return 0, err
	}
	m.PushInt(pos)
	return 1, nil
}

func (r *Registry) fseek(m *vm.Machine) (int, error) {
	handle := m.PopInt()
	mode := m.PopInt()
	offset := m.PopInt()
	f, err := r.fileAt(handle)
	if err != nil {
		return 0, err
	}
	whence := os.SEEK_END
	if mode == 1 {
		whence = os.SEEK_SET
	}
	_, err = f.Seek(offset, whence)
	return 0, err
}

func (r *Registry) malloc(m *vm.Machine) (int, error) {
	size := m.PopInt()
	addr, err := m.Malloc(size)
	if err != nil {
		return 0, err
	}
	m.PushInt(int64(addr))
	return 1, nil
}

func (r *Registry) free(m *vm.Machine) (int, error) {
	addr := m.PopAddr()
	return 0, m.Free(addr)
}

func (r *Registry) exit(m *vm.Machine) (int, error) {
	os.Exit(0)
	return 0, nil
}

func (r *Registry) min(m *vm.Machine) (int, error) {
	a := m.PopInt()
	b := m.PopInt()
	if a < b {
		m.PushInt(a)
	} else {
		m.PushInt(b)
	}
	return 1, nil
}

func (r *Registry) max(m *vm.Machine) (int, error) {
	a := m.PopInt()
	b := m.PopInt()
	if a > b {
		m.PushInt(a)
	} else {
		m.PushInt(b)
	}
	return 1, nil
}

func (r *Registry) sqrt(m *vm.Machine) (int, error) {
	m.PushFloat(math.Sqrt(m.PopFloat()))
	return 1, nil
}

func (r *Registry) sin(m *vm.Machine) (int, error) {
	m.PushFloat(math.Sin(m.PopFloat()))
	return 1, nil
}

func (r *Registry) cos(m *vm.Machine) (int, error) {
	m.PushFloat(math.Cos(m.PopFloat()))
	return 1, nil
}

func (r *Registry) tan(m *vm.Machine) (int, error) {
	m.PushFloat(math.Tan(m.PopFloat()))
	return 1, nil
}
