// Package types implements Spyre's type model: built-in primitives,
// pointer types, user-defined structs, and generic type parameters.
package types

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Modifier is a bit flag attached to a type or declaration.
type Modifier uint8

// Modifier flags, may be combined.
const (
	ModNone     Modifier = 0
	ModStatic   Modifier = 1 << 0
	ModConst    Modifier = 1 << 1
	ModVolatile Modifier = 1 << 2
	ModCFunc    Modifier = 1 << 3
)

// Has reports whether m contains flag.
func (m Modifier) Has(flag Modifier) bool { return m&flag != 0 }

// Field is one named, typed member of a struct body.
type Field struct {
	Name string
	Type *Type
}

// Type describes a Spyre type: a name, a pointer depth, its size in
// bytes, modifier flags, and - for struct types - an ordered field list.
type Type struct {
	Name         string
	PointerDepth int
	Size         int
	Modifiers    Modifier
	IsGeneric    bool
	Fields       []Field // non-nil only for struct types
}

// Built-in primitive types.
var (
	Int   = &Type{Name: "int", Size: 8}
	Float = &Type{Name: "float", Size: 8}
	Byte  = &Type{Name: "byte", Size: 1}
	Void  = &Type{Name: "void", Size: 0}
)

// IsPrimitive reports whether t is one of the four built-in scalar types
// (at pointer depth zero).
func IsPrimitive(t *Type) bool {
	if t == nil || t.PointerDepth != 0 {
		return false
	}
	switch t.Name {
	case "int", "float", "byte", "void":
		return true
	}
	return false
}

// Equal reports whether a and b are exactly the same type: same name,
// same modifier flags, and same pointer depth. Struct field lists are
// not compared - two structs with the same name are always the same
// declaration, since struct names are unique in a program.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && a.Modifiers == b.Modifiers && a.PointerDepth == b.PointerDepth
}

// Pointer returns a pointer-to-t type, incrementing the pointer depth.
func Pointer(t *Type) *Type {
	cp := *t
	cp.PointerDepth++
	cp.Size = 8
	return &cp
}

// Deref returns the pointee type of a pointer type t, or nil if t is
// not a pointer.
func Deref(t *Type) *Type {
	if t == nil || t.PointerDepth == 0 {
		return nil
	}
	cp := *t
	cp.PointerDepth--
	if cp.PointerDepth == 0 {
		cp.Size = baseSize(cp.Name)
	} else {
		cp.Size = 8
	}
	return &cp
}

func baseSize(name string) int {
	switch name {
	case "int", "float":
		return 8
	case "byte":
		return 1
	case "void":
		return 0
	}
	return 8
}

// FieldByName returns the named field of a struct type, or nil if t is
// not a struct or has no such field.
func (t *Type) FieldByName(name string) *Field {
	f, ok := lo.Find(t.Fields, func(f Field) bool { return f.Name == name })
	if !ok {
		return nil
	}
	return &f
}

// String renders a type the way diagnostics pretty-print it, e.g.
// "int", "const int^^", "Point".
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var mods []string
	if t.Modifiers.Has(ModStatic) {
		mods = append(mods, "static")
	}
	if t.Modifiers.Has(ModConst) {
		mods = append(mods, "const")
	}
	if t.Modifiers.Has(ModVolatile) {
		mods = append(mods, "volatile")
	}
	prefix := ""
	if len(mods) > 0 {
		prefix = strings.Join(mods, " ") + " "
	}
	return fmt.Sprintf("%s%s%s", prefix, t.Name, strings.Repeat("^", t.PointerDepth))
}

// Table tracks every type known to a program: the built-ins, registered
// structs, and - while typechecking a generic function body - the
// binding of generic parameter names to concrete types.
type Table struct {
	structs  map[string]*Type
	generics map[string]*Type
}

// NewTable creates an empty type table.
func NewTable() *Table {
	return &Table{structs: map[string]*Type{}, generics: map[string]*Type{}}
}

// DeclareStruct registers a new struct type. It returns an error if a
// type of that name already exists.
func (tb *Table) DeclareStruct(name string, fields []Field) (*Type, error) {
	if _, exists := tb.Lookup(name); exists {
		return nil, fmt.Errorf("type '%s' already declared", name)
	}
	t := &Type{Name: name, Fields: fields}
	for _, f := range fields {
		t.Size += f.Type.Size
	}
	tb.structs[name] = t
	return t, nil
}

// Lookup resolves a bare type name: a built-in, a registered struct, or
// (if bound) a generic parameter. The generic binding always takes
// precedence so a function body sees its own type parameters.
func (tb *Table) Lookup(name string) (*Type, bool) {
	if t, ok := tb.generics[name]; ok {
		return t, true
	}
	switch name {
	case "int":
		return Int, true
	case "float":
		return Float, true
	case "byte":
		return Byte, true
	case "void":
		return Void, true
	}
	if t, ok := tb.structs[name]; ok {
		return t, true
	}
	return nil, false
}

// BindGeneric binds a generic parameter name to a concrete type for the
// duration of the current typecheck, returning the previous binding (or
// nil) so the caller can restore it afterwards.
func (tb *Table) BindGeneric(name string, concrete *Type) *Type {
	prev := tb.generics[name]
	tb.generics[name] = concrete
	return prev
}

// UnbindGeneric restores a generic binding saved by BindGeneric.
func (tb *Table) UnbindGeneric(name string, prev *Type) {
	if prev == nil {
		delete(tb.generics, name)
		return
	}
	tb.generics[name] = prev
}

// IsGenericName reports whether name currently names an unbound or
// bound generic parameter in scope - i.e. whether it should be treated
// as a type variable rather than an error when not found in the
// built-ins/struct table.
func (tb *Table) IsGenericName(name string, declared []string) bool {
	return lo.Contains(declared, name)
}
