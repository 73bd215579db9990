package codegen

import (
	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/types"
)

// slots returns how many 8-byte frame slots a value of type t occupies.
// Every primitive and pointer fits in one slot; a struct value occupies
// one slot per 8 bytes of its declared size, so a direct (non-pointer)
// struct local can be addressed field-by-field with a plain offset.
func slots(t *types.Type) int {
	if t == nil || t.PointerDepth != 0 || types.IsPrimitive(t) {
		return 1
	}
	n := t.Size / 8
	if n < 1 {
		n = 1
	}
	return n
}

// layout assigns a frame slot to every parameter and local declared in
// fn, and returns the total slot count (the operand to the function's
// leading "res" instruction). Parameters occupy the first slots, in
// declaration order; locals are then numbered by a pre-order walk of
// the function body's nested blocks, the same traversal order the
// parser's own scope stack uses, so a local declared in an inner block
// never collides with one from a sibling block.
//
// ast.Local.Offset is otherwise unset by the parser (see its doc
// comment in ast/ast.go) - this is where it gets filled in, mirroring
// original_source/generate.c's func->stack_space, computed once up
// front instead of incrementally during emission.
func layout(tree *ast.Tree, fn *ast.Stmt) int {
	next := len(fn.Params)
	var walk func(id ast.StmtID)
	walk = func(id ast.StmtID) {
		if id == ast.NoStmt {
			return
		}
		s := tree.S(id)
		switch s.Kind {
		case ast.StmtBlock:
			for i := range s.Locals {
				s.Locals[i].Offset = next
				next += slots(s.Locals[i].Type)
			}
			for _, c := range s.Children {
				walk(c)
			}
		case ast.StmtIf:
			walk(s.Body)
			walk(s.Else)
		case ast.StmtWhile:
			walk(s.Body)
		case ast.StmtFor:
			walk(s.Body)
		}
	}
	walk(fn.Body)
	return next
}

// paramOffsets builds the name -> slot map for fn's parameters, which
// always occupy slots 0..len(Params)-1 in declaration order.
func paramOffsets(fn *ast.Stmt) map[string]int {
	m := make(map[string]int, len(fn.Params))
	for i, p := range fn.Params {
		m[p.Name] = i
	}
	return m
}

// fieldOffset returns the slot offset of field within struct type t,
// relative to the start of a t-typed value, along with the field's own
// type. Fields are laid out contiguously in declaration order, one
// slot per 8 bytes of the field's size - the same rule slots() uses for
// whole values.
func fieldOffset(t *types.Type, field string) (int, *types.Type) {
	off := 0
	for _, f := range t.Fields {
		if f.Name == field {
			return off, f.Type
		}
		off += slots(f.Type)
	}
	return -1, nil
}
