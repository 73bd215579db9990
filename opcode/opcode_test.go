package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteValuesMatchAssembler(t *testing.T) {
	assert.Equal(t, Op(0x00), NOOP)
	assert.Equal(t, Op(0x01), IPUSH)
	assert.Equal(t, Op(0x16), CALL)
	assert.Equal(t, Op(0x33), VRET)
	assert.Equal(t, Op(0x3A), ILNSAVE)
	assert.Equal(t, Op(0x42), LNOT)
}

func TestTableCoversEveryOpcode(t *testing.T) {
	assert.Len(t, Table, 0x43)
	seen := map[Op]bool{}
	for _, ins := range Table {
		assert.False(t, seen[ins.Opcode], "duplicate opcode %#x", ins.Opcode)
		seen[ins.Opcode] = true
	}
	for b := Op(0x00); b <= LNOT; b++ {
		assert.True(t, seen[b], "missing opcode %#x", b)
	}
}

func TestByName(t *testing.T) {
	ins, ok := ByName("CALL")
	require.True(t, ok)
	assert.Equal(t, CALL, ins.Opcode)
	assert.Equal(t, []Operand{Int32, Int32}, ins.Operands)

	_, ok = ByName("NOPE")
	assert.False(t, ok)
}

func TestByOpcode(t *testing.T) {
	ins, ok := ByOpcode(ILLOAD)
	require.True(t, ok)
	assert.Equal(t, "ILLOAD", ins.Name)
}

func TestEncodedSize(t *testing.T) {
	noop, _ := ByName("NOOP")
	assert.Equal(t, 1, noop.EncodedSize())

	ipush, _ := ByName("IPUSH")
	assert.Equal(t, 9, ipush.EncodedSize())

	call, _ := ByName("CALL")
	assert.Equal(t, 9, call.EncodedSize())

	ilnsave, _ := ByName("ILNSAVE")
	assert.Equal(t, 9, ilnsave.EncodedSize())
}

func TestOperandSize(t *testing.T) {
	assert.Equal(t, 0, NoOperand.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 4, Int32.Size())
	assert.Equal(t, 8, Float64.Size())
}
