package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int, Int))
	assert.False(t, Equal(Int, Float))

	p1 := Pointer(Int)
	p2 := Pointer(Int)
	assert.True(t, Equal(p1, p2))
	assert.False(t, Equal(p1, Int))
}

func TestPointerDeref(t *testing.T) {
	p := Pointer(Int)
	assert.Equal(t, 1, p.PointerDepth)
	assert.Equal(t, 8, p.Size)

	back := Deref(p)
	assert.True(t, Equal(back, Int))

	assert.Nil(t, Deref(Int))
}

func TestStructTable(t *testing.T) {
	tb := NewTable()

	pt, err := tb.DeclareStruct("Pt", []Field{
		{Name: "x", Type: Int},
		{Name: "y", Type: Int},
	})
	require.NoError(t, err)
	assert.Equal(t, 16, pt.Size)

	got, ok := tb.Lookup("Pt")
	require.True(t, ok)
	assert.Same(t, pt, got)

	f := pt.FieldByName("y")
	require.NotNil(t, f)
	assert.True(t, Equal(f.Type, Int))

	assert.Nil(t, pt.FieldByName("z"))

	_, err = tb.DeclareStruct("Pt", nil)
	assert.Error(t, err)
}

func TestGenericBinding(t *testing.T) {
	tb := NewTable()

	_, ok := tb.Lookup("T")
	assert.False(t, ok)

	prev := tb.BindGeneric("T", Int)
	got, ok := tb.Lookup("T")
	require.True(t, ok)
	assert.True(t, Equal(got, Int))

	tb.UnbindGeneric("T", prev)
	_, ok = tb.Lookup("T")
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Equal(t, "int", Int.String())
	p := Pointer(Int)
	assert.Equal(t, "int^", p.String())

	c := &Type{Name: "int", Modifiers: ModConst}
	assert.Equal(t, "const int", c.String())
}
