package vm_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/assembler"
	"github.com/skx/spyre/vm"
)

// build assembles src and splits the resulting image into its ROM and
// code slices, the way a loader would.
func build(t *testing.T, src string) (rom, code []byte) {
	t.Helper()
	img, err := assembler.Assemble("t.asm", src)
	require.NoError(t, err)
	codeStart := binary.LittleEndian.Uint32(img[8:12])
	return img[12:codeStart], img[codeStart:]
}

func TestArithmetic(t *testing.T) {
	rom, code := build(t, "ipush 2\nipush 3\niadd\nnoop\n")
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(5), m.PopInt())
}

func TestDivisionByZero(t *testing.T) {
	rom, code := build(t, "ipush 1\nipush 0\nidiv\nnoop\n")
	m := vm.New(rom, code)
	err := m.RunFrom(0)
	assert.Error(t, err)
}

func TestComparisonOperators(t *testing.T) {
	rom, code := build(t, "ipush 3\nipush 5\nilt\nnoop\n")
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(1), m.PopInt())
}

func TestFunctionCallAndReturn(t *testing.T) {
	src := "jmp main\n" +
		"add1:\n" +
		"iarg 0\n" +
		"ipush 1\n" +
		"iadd\n" +
		"iret\n" +
		"main:\n" +
		"ipush 5\n" +
		"call add1, 1\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(6), m.PopInt())
}

func TestConditionalJumpNotTaken(t *testing.T) {
	src := "ipush 1\n" +
		"jz skip\n" +
		"ipush 99\n" +
		"skip:\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(99), m.PopInt())
}

func TestConditionalJumpTaken(t *testing.T) {
	src := "ipush 7\n" +
		"ipush 0\n" +
		"jz skip\n" +
		"ipush 99\n" +
		"skip:\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(7), m.PopInt(), "99 should never have been pushed")
}

func TestFloatArithmeticAndCast(t *testing.T) {
	src := "fpush 1.5\n" +
		"fpush 2.5\n" +
		"fadd\n" +
		"ftoi 1\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(4), m.PopInt())
}

func TestHeapAllocFreeReuse(t *testing.T) {
	m := vm.New(nil, nil)
	a, err := m.Malloc(8)
	require.NoError(t, err)
	b, err := m.Malloc(8)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, m.Free(a))
	c, err := m.Malloc(8)
	require.NoError(t, err)
	assert.Equal(t, a, c, "freeing a should let a same-sized allocation reuse its slot")
}

func TestFreeInvalidPointerErrors(t *testing.T) {
	m := vm.New(nil, nil)
	err := m.Free(vm.StartHeap + 4096)
	assert.Error(t, err)
}

func TestHostFunctionCall(t *testing.T) {
	src := `let fname "double"` + "\n" +
		"ipush 21\n" +
		"ccall fname, 1\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	m.Register("double", func(mm *vm.Machine) (int, error) {
		mm.PushInt(mm.PopInt() * 2)
		return 1, nil
	})
	require.NoError(t, m.RunFrom(0))
	assert.Equal(t, int64(42), m.PopInt())
}

func TestUndefinedHostFunctionErrors(t *testing.T) {
	src := `let fname "nope"` + "\n" +
		"ccall fname, 0\n" +
		"noop\n"
	rom, code := build(t, src)
	m := vm.New(rom, code)
	assert.Error(t, m.RunFrom(0))
}

func TestStackOverflowDetected(t *testing.T) {
	// RES grows the stack in 8-byte slots; ask for more slots than fit
	// between the stack start and the heap boundary.
	slots := (vm.SizeStack / 8) + 10
	rom, code := build(t, "res "+itoaHelper(slots)+"\nnoop\n")
	m := vm.New(rom, code)
	assert.Error(t, m.RunFrom(0))
}

func itoaHelper(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestMallocReturnsZeroWhenExhausted(t *testing.T) {
	m := vm.New(nil, nil)
	addr, err := m.Malloc(vm.SizeMemory) // larger than the whole heap region
	require.NoError(t, err)
	assert.Equal(t, vm.Addr(0), addr, "heap exhaustion is a null pointer, not a crash")

	// The failed request must not have been linked into the chunk
	// list: a sane-sized allocation still lands at the heap's start.
	a, err := m.Malloc(8)
	require.NoError(t, err)
	assert.Equal(t, vm.StartHeap, a)
}
