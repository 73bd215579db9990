package assembler

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/spyre/opcode"
)

func TestHeaderLayout(t *testing.T) {
	img, err := Assemble("t.asm", "ipush 1\nipush 2\niadd\n")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(img), 12)

	magic := binary.LittleEndian.Uint32(img[0:4])
	romStart := binary.LittleEndian.Uint32(img[4:8])
	codeStart := binary.LittleEndian.Uint32(img[8:12])

	assert.Equal(t, Magic, magic)
	assert.Equal(t, uint32(8), romStart)
	assert.Equal(t, uint32(12), codeStart) // no ROM constants, so code follows the header immediately

	code := img[codeStart:]
	assert.Equal(t, byte(opcode.IPUSH), code[0])
}

func TestLetConstantsLandInROM(t *testing.T) {
	img, err := Assemble("t.asm", `let greeting "hi"`+"\n"+`log greeting`+"\n")
	require.NoError(t, err)

	codeStart := binary.LittleEndian.Uint32(img[8:12])
	rom := img[12:codeStart]
	assert.Equal(t, []byte("hi\x00"), rom)

	code := img[codeStart:]
	assert.Equal(t, byte(opcode.LOG), code[0])
	assert.Equal(t, int32(0), int32(binary.LittleEndian.Uint32(code[1:5])))
}

func TestLabelResolvesToCodeOffset(t *testing.T) {
	src := "jmp target\n" +
		"ipush 1\n" +
		"target:\n" +
		"ipush 2\n"
	img, err := Assemble("t.asm", src)
	require.NoError(t, err)

	codeStart := binary.LittleEndian.Uint32(img[8:12])
	code := img[codeStart:]

	assert.Equal(t, byte(opcode.JMP), code[0])
	target := int32(binary.LittleEndian.Uint32(code[1:5]))
	// jmp (5 bytes) + ipush 1 (9 bytes) = 14
	assert.Equal(t, int32(14), target)
}

func TestUnresolvedReferenceErrors(t *testing.T) {
	_, err := Assemble("t.asm", "jmp nowhere\n")
	assert.Error(t, err)
}

func TestUnknownInstructionErrors(t *testing.T) {
	_, err := Assemble("t.asm", "bogus 1\n")
	assert.Error(t, err)
}

func TestMultiOperandInstruction(t *testing.T) {
	src := "foo: ipush 0\n" +
		"call foo, 2\n"
	img, err := Assemble("t.asm", src)
	require.NoError(t, err)

	codeStart := binary.LittleEndian.Uint32(img[8:12])
	code := img[codeStart:]
	// ipush (9 bytes), then call
	call := code[9:]
	assert.Equal(t, byte(opcode.CALL), call[0])
	assert.Equal(t, int32(0), int32(binary.LittleEndian.Uint32(call[1:5])))
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(call[5:9])))
}
