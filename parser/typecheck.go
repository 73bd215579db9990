package parser

import (
	"github.com/pkg/errors"

	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/token"
	"github.com/skx/spyre/types"
)

// bail picks whichever operand is still an unresolved generic
// placeholder and returns it unchanged, short-circuiting the caller's
// type rule instead of reporting an error. This is spec.md's "generic
// bail": a function body is type-checked once, eagerly, against
// placeholder types for its own generic parameters; real verification
// happens later, per call site, once instantiate (below) re-checks the
// body under a concrete binding.
func bail(left, right *types.Type) *types.Type {
	if left != nil && left.IsGeneric {
		return left
	}
	return right
}

// inferBinaryType implements spec.md's binary-expression typing rules.
func inferBinaryType(op token.Type, left, right *types.Type) (*types.Type, error) {
	if left == nil || right == nil {
		return nil, errors.Errorf("operator '%s' has an untyped operand", op)
	}
	if left.IsGeneric || right.IsGeneric {
		return bail(left, right), nil
	}

	switch op {
	case token.SHL, token.SHR, token.PERCENT,
		token.SHLEQ, token.SHREQ, token.PERCENEQ,
		token.AMP, token.PIPE, token.CARET,
		token.AMPEQ, token.PIPEEQ, token.CARETEQ:
		if left.Name != "int" && left.PointerDepth == 0 {
			return nil, errors.Errorf("operator '%s' requires an int or pointer left operand, found %s", op, left)
		}
		if right.Name != "int" {
			return nil, errors.Errorf("operator '%s' requires an int right operand, found %s", op, right)
		}
		return left, nil
	case token.LAND, token.LOR:
		if !isBoolish(left) || !isBoolish(right) {
			return nil, errors.Errorf("operator '%s' requires int or pointer operands, found %s and %s", op, left, right)
		}
		return types.Int, nil
	case token.EQ, token.NEQ, token.GT, token.GE, token.LT, token.LE:
		if !types.Equal(left, right) {
			return nil, errors.Errorf("operator '%s' requires matching operand types, found %s and %s", op, left, right)
		}
		return types.Int, nil
	default:
		if !types.Equal(left, right) {
			return nil, errors.Errorf("operator '%s' requires matching operand types, found %s and %s", op, left, right)
		}
		return left, nil
	}
}

// inferUnaryType implements the unary rules: dereference, address-of,
// logical/bitwise negation, and prefix increment/decrement.
func inferUnaryType(op token.Type, operand *types.Type) (*types.Type, error) {
	if operand == nil {
		return nil, errors.Errorf("operator '%s' has an untyped operand", op)
	}
	if operand.IsGeneric {
		return operand, nil
	}

	switch op {
	case token.CARET:
		if operand.PointerDepth == 0 {
			return nil, errors.Errorf("cannot dereference non-pointer type %s", operand)
		}
		return types.Deref(operand), nil
	case token.AMP:
		return types.Pointer(operand), nil
	case token.MINUS:
		if operand.Name != "int" && operand.Name != "float" {
			return nil, errors.Errorf("unary '-' requires int or float, found %s", operand)
		}
		return operand, nil
	case token.BANG:
		if !isBoolish(operand) {
			return nil, errors.Errorf("unary '!' requires int or pointer, found %s", operand)
		}
		return types.Int, nil
	case token.TILDE:
		if operand.Name != "int" {
			return nil, errors.Errorf("unary '~' requires int, found %s", operand)
		}
		return operand, nil
	case token.INC, token.DEC:
		if operand.Name != "int" && operand.PointerDepth == 0 {
			return nil, errors.Errorf("'%s' requires int or pointer, found %s", op, operand)
		}
		return operand, nil
	}
	return nil, errors.Errorf("unsupported unary operator '%s'", op)
}

// inferMemberType implements the `.` field-access rule: the left
// operand must be a non-pointer struct, the right an identifier naming
// one of its fields.
func inferMemberType(left *types.Type, field string) (*types.Type, error) {
	if left == nil {
		return nil, errors.Errorf("member access on untyped expression")
	}
	if left.IsGeneric {
		return left, nil
	}
	if left.PointerDepth != 0 || types.IsPrimitive(left) {
		return nil, errors.Errorf("'.%s' requires a struct value, found %s", field, left)
	}
	f := left.FieldByName(field)
	if f == nil {
		return nil, errors.Errorf("type %s has no field '%s'", left, field)
	}
	return f.Type, nil
}

// inferCastType implements the cast rule: a numeric cast requires a
// primitive operand; casts to pointer or struct types accept any
// operand (a raw reinterpretation), matching the VM's untyped
// ftoi/itof opcodes plus plain bit-pattern reuse for everything else.
func inferCastType(target, operand *types.Type) (*types.Type, error) {
	if operand == nil {
		return nil, errors.Errorf("cast has an untyped operand")
	}
	if operand.IsGeneric || target.IsGeneric {
		return target, nil
	}
	if types.IsPrimitive(target) && !types.IsPrimitive(operand) {
		return nil, errors.Errorf("cannot cast %s to primitive type %s", operand, target)
	}
	return target, nil
}

// substituteType replaces a generic placeholder type with its bound
// concrete type, preserving any extra pointer depth the declaration
// applied on top of the bare type parameter (e.g. a `^T` parameter
// bound to `int` becomes `^int`).
func substituteType(t *types.Type, names []string, concrete []*types.Type) *types.Type {
	if t == nil || !t.IsGeneric {
		return t
	}
	for i, n := range names {
		if n == t.Name {
			cp := *concrete[i]
			cp.PointerDepth += t.PointerDepth
			if cp.PointerDepth > 0 {
				cp.Size = 8
			}
			return &cp
		}
	}
	return t
}

// inferCallType implements the function-call rule: exact arity (or a
// minimum arity for a variadic cfunc, whose trailing '...' arguments
// are unchecked), each argument's inferred type equal to the declared
// parameter type at the same position (substituting any generic
// binding first), result is the declared return type.
func inferCallType(fn *function, args []*types.Type, generics []*types.Type) (*types.Type, error) {
	if fn.variadic {
		if len(args) < len(fn.params) {
			return nil, errors.Errorf("'%s' expects at least %d argument(s), found %d", fn.name, len(fn.params), len(args))
		}
	} else if len(args) != len(fn.params) {
		return nil, errors.Errorf("'%s' expects %d argument(s), found %d", fn.name, len(fn.params), len(args))
	}
	for i, a := range args {
		if i >= len(fn.params) {
			break
		}
		want := substituteType(fn.params[i].Type, fn.generics, generics)
		if want.IsGeneric || (a != nil && a.IsGeneric) {
			continue
		}
		if !types.Equal(want, a) {
			return nil, errors.Errorf("'%s' argument %d: expected %s, found %s", fn.name, i, want, a)
		}
	}
	return substituteType(fn.returnType, fn.generics, generics), nil
}

// instantiate re-typechecks fn's body under a concrete binding of its
// generic parameters, rewriting every expression's inferred Type in
// place. visiting guards against infinite recursion when a generic
// function calls itself with the same type parameters.
func instantiate(tree *ast.Tree, tbl *types.Table, fn *function, bound []*types.Type, visiting map[string]bool) error {
	key := fn.name
	for _, b := range bound {
		key += "," + b.String()
	}
	if visiting[key] {
		return nil
	}
	visiting[key] = true
	defer delete(visiting, key)

	var saved []*types.Type
	for i, g := range fn.generics {
		saved = append(saved, tbl.BindGeneric(g, bound[i]))
	}
	defer func() {
		for i, g := range fn.generics {
			tbl.UnbindGeneric(g, saved[i])
		}
	}()

	want := substituteType(fn.returnType, fn.generics, bound)
	return retypeStmt(tree, tbl, fn.stmt, want)
}

func retypeStmt(tree *ast.Tree, tbl *types.Table, id ast.StmtID, ret *types.Type) error {
	if id == ast.NoStmt {
		return nil
	}
	s := tree.S(id)
	switch s.Kind {
	case ast.StmtIf:
		if err := retypeExpr(tree, tbl, s.Cond); err != nil {
			return err
		}
		if err := retypeStmt(tree, tbl, s.Body, ret); err != nil {
			return err
		}
		return retypeStmt(tree, tbl, s.Else, ret)
	case ast.StmtWhile:
		if err := retypeExpr(tree, tbl, s.Cond); err != nil {
			return err
		}
		return retypeStmt(tree, tbl, s.Body, ret)
	case ast.StmtFor:
		for _, e := range []ast.ExprID{s.Init, s.Cond, s.Step} {
			if err := retypeExpr(tree, tbl, e); err != nil {
				return err
			}
		}
		return retypeStmt(tree, tbl, s.Body, ret)
	case ast.StmtFunction:
		return retypeStmt(tree, tbl, s.Body, ret)
	case ast.StmtBlock:
		for _, c := range s.Children {
			if err := retypeStmt(tree, tbl, c, ret); err != nil {
				return err
			}
		}
		return nil
	case ast.StmtExpr:
		return retypeExpr(tree, tbl, s.Expr)
	case ast.StmtReturn:
		if err := retypeExpr(tree, tbl, s.Expr); err != nil {
			return err
		}
		if s.Expr != ast.NoExpr {
			rt := tree.E(s.Expr).Type
			if rt != nil && !rt.IsGeneric && ret != nil && !ret.IsGeneric && !types.Equal(rt, ret) {
				return errors.Errorf("return type mismatch: function returns %s, got %s", ret, rt)
			}
		}
		return nil
	}
	return nil
}

func retypeExpr(tree *ast.Tree, tbl *types.Table, id ast.ExprID) error {
	if id == ast.NoExpr {
		return nil
	}
	e := tree.E(id)
	switch e.Kind {
	case ast.ExprInteger, ast.ExprFloat, ast.ExprString, ast.ExprDatatype:
		return nil
	case ast.ExprIdentifier:
		// Remember the declared generic form the first time through, so
		// a later instantiation with different type arguments can
		// re-resolve from it rather than from the previous binding.
		if e.Datatype == nil && e.Type != nil && e.Type.IsGeneric {
			e.Datatype = e.Type
		}
		if e.Datatype != nil && e.Datatype.IsGeneric {
			if t, ok := tbl.Lookup(e.Datatype.Name); ok && !t.IsGeneric {
				cp := *t
				cp.PointerDepth += e.Datatype.PointerDepth
				if cp.PointerDepth > 0 {
					cp.Size = 8
				}
				e.Type = &cp
			}
		}
		return nil
	case ast.ExprUnaryOp:
		if err := retypeExpr(tree, tbl, e.Operand); err != nil {
			return err
		}
		t, err := inferUnaryType(e.Op, tree.E(e.Operand).Type)
		if err != nil {
			return err
		}
		e.Type = t
		return nil
	case ast.ExprBinaryOp:
		if err := retypeExpr(tree, tbl, e.Left); err != nil {
			return err
		}
		if err := retypeExpr(tree, tbl, e.Right); err != nil {
			return err
		}
		if e.Op == token.DOT {
			t, err := inferMemberType(tree.E(e.Left).Type, e.Name)
			if err != nil {
				return err
			}
			e.Type = t
			return nil
		}
		t, err := inferBinaryType(e.Op, tree.E(e.Left).Type, tree.E(e.Right).Type)
		if err != nil {
			return err
		}
		e.Type = t
		return nil
	case ast.ExprCast:
		if err := retypeExpr(tree, tbl, e.Operand); err != nil {
			return err
		}
		if e.Datatype == nil && e.CastType.IsGeneric {
			e.Datatype = e.CastType
		}
		if e.Datatype != nil && e.Datatype.IsGeneric {
			if t, ok := tbl.Lookup(e.Datatype.Name); ok && !t.IsGeneric {
				e.CastType = t
			}
		}
		t, err := inferCastType(e.CastType, tree.E(e.Operand).Type)
		if err != nil {
			return err
		}
		e.Type = t
		return nil
	case ast.ExprFuncCall:
		return retypeExpr(tree, tbl, e.Arg)
	}
	return nil
}
