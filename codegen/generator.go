// Package codegen walks a typed syntax tree and emits Spyre assembly
// text: instruction mnemonics, labels, and "let" string constants, in
// the dialect consumed by package assembler. Grounded in
// original_source/generate.c's single recursive walk over the parse
// tree, which maintains an "out" channel for immediate emission and a
// stack of deferred instruction lists flushed once a structural node's
// subtree is complete (spec.md §4.3, resolved in SPEC_FULL.md §6.4).
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/skx/spyre/ast"
	"github.com/skx/spyre/token"
	"github.com/skx/spyre/types"
)

// deferredFrame is one entry of the generator's deferred-instruction
// stack: the lines queued by Defer, flushed to the out channel once the
// structural node that opened the frame finishes walking its subtree.
type deferredFrame struct {
	lines []string
}

// Generator walks an *ast.Tree and produces Spyre assembly source. The
// deferred stack is used for a function's epilogue only: because
// package assembler resolves labels in a full separate scan pass
// before emission (unlike the original's single forward pass), control
// flow (if/while/for) can reference a not-yet-emitted label directly
// and has no need to defer its own instructions the way generate.c
// does for forward jumps.
type Generator struct {
	tree *ast.Tree

	out      strings.Builder // the immediate "out channel"
	deferred []deferredFrame // the deferred stack, innermost last

	constants  map[string]string // string literal value -> "let" label
	constOrder []string          // labels, in first-seen order
	hostNames  map[string]string // host function name -> "let" label
	hostOrder  []string

	labelCounter int

	scopes []ast.StmtID   // open Block ids in the current function, innermost last
	params map[string]int // current function's parameter name -> slot

	loopBreak    []string // break targets, matching the loop nesting
	loopContinue []string // continue targets, matching the loop nesting
}

// Generate emits Spyre assembly for every top-level function in tree,
// returning the complete assembly-source text.
func Generate(tree *ast.Tree) (string, error) {
	g := &Generator{
		tree:      tree,
		constants: map[string]string{},
		hostNames: map[string]string{},
	}

	root := tree.S(tree.Root)
	for _, id := range root.Children {
		s := tree.S(id)
		if s.Kind != ast.StmtFunction {
			return "", errors.Errorf("line %d: only function declarations are supported at the top level", s.Line)
		}
		if s.Modifiers.Has(types.ModCFunc) {
			// A forward declaration of a host function; it has no
			// Spyre body of its own; call sites reach it via ccall.
			continue
		}
		if err := g.genFunction(id); err != nil {
			return "", err
		}
	}

	letLines := lo.Map(g.constOrder, func(label string, _ int) string {
		return fmt.Sprintf("let %s %q", label, reverseLookup(g.constants, label))
	})
	letLines = append(letLines, lo.Map(g.hostOrder, func(label string, _ int) string {
		return fmt.Sprintf("let %s %q", label, reverseLookup(g.hostNames, label))
	})...)

	var final strings.Builder
	for _, line := range letLines {
		final.WriteString(line)
		final.WriteByte('\n')
	}
	if len(letLines) > 0 {
		final.WriteByte('\n')
	}
	final.WriteString("jmp __LABEL__ENTRY\n\n")
	final.WriteString(g.out.String())
	final.WriteString("\n__LABEL__ENTRY:\n")
	final.WriteString("\tcall __FUNC__main, 0\n")

	return final.String(), nil
}

// reverseLookup finds the key mapping to v in m - used to recover a
// constant's original text from its generated label when emitting the
// "let" header, since the maps above are keyed by the constant's
// payload rather than its label.
func reverseLookup(m map[string]string, label string) string {
	for k, v := range m {
		if v == label {
			return k
		}
	}
	return ""
}

func (g *Generator) emit(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if len(g.deferred) > 0 {
		top := &g.deferred[len(g.deferred)-1]
		top.lines = append(top.lines, line)
		return
	}
	g.out.WriteString(line)
	g.out.WriteByte('\n')
}

// pushFrame opens a new deferred frame: while it is open, emit and
// writeDeferred queue lines in it instead of writing straight to out.
func (g *Generator) pushFrame() {
	g.deferred = append(g.deferred, deferredFrame{})
}

// writeDeferred queues a line in the innermost open deferred frame,
// to be flushed by popFrame once the enclosing node's subtree is done.
// Its only user is the function epilogue.
func (g *Generator) writeDeferred(format string, args ...interface{}) {
	top := &g.deferred[len(g.deferred)-1]
	top.lines = append(top.lines, fmt.Sprintf(format, args...))
}

// popFrame closes the innermost deferred frame, flushing its queued
// lines straight to out, even when another frame is still open.
func (g *Generator) popFrame() {
	n := len(g.deferred) - 1
	frame := g.deferred[n]
	g.deferred = g.deferred[:n]
	for _, l := range frame.lines {
		g.out.WriteString(l)
		g.out.WriteByte('\n')
	}
}

func (g *Generator) newLabel() string {
	g.labelCounter++
	return fmt.Sprintf("__LABEL__%04d", g.labelCounter)
}

// internString interns a string literal's decoded value as a ROM
// constant, returning the "let"-declared label that names it. Repeated
// literals with the same text share one constant.
func (g *Generator) internString(s string) string {
	if label, ok := g.constants[s]; ok {
		return label
	}
	label := fmt.Sprintf("__STR__%04d", len(g.constOrder))
	g.constants[s] = label
	g.constOrder = append(g.constOrder, label)
	return label
}

// internHostName interns a cfunc's name as a ROM constant, for ccall's
// name operand.
func (g *Generator) internHostName(name string) string {
	if label, ok := g.hostNames[name]; ok {
		return label
	}
	label := fmt.Sprintf("__HOST__%04d", len(g.hostOrder))
	g.hostNames[name] = label
	g.hostOrder = append(g.hostOrder, label)
	return label
}

// genFunction emits one function: its __FUNC__ label, frame
// reservation, body, and a deferred epilogue flushed once the body's
// been walked - mirroring generate.c's per-function "pushb" of the
// return label and "iret".
func (g *Generator) genFunction(id ast.StmtID) error {
	fn := g.tree.S(id)

	total := layout(g.tree, fn)
	g.params = paramOffsets(fn)
	g.scopes = nil

	g.emit("__FUNC__%s:", fn.Name)
	g.emit("\tres %d", total)
	// Arguments arrive below bp (the caller's reversed push order);
	// copy each into its reserved frame slot so the body addresses
	// parameters and locals uniformly through ilload/lea.
	for i := range fn.Params {
		g.emit("\tiarg %d", i)
		g.emit("\tilsave %d", i)
	}

	g.pushFrame()
	if err := g.genStmt(fn.Body); err != nil {
		return err
	}
	// Fallback return for control flow that reaches the end of the
	// body without an explicit return statement.
	switch {
	case types.Equal(fn.ReturnType, types.Void):
		g.writeDeferred("\tvret")
	case fn.ReturnType.Name == "float" && fn.ReturnType.PointerDepth == 0:
		g.writeDeferred("\tfpush 0.0")
		g.writeDeferred("\tfret")
	default:
		g.writeDeferred("\tipush 0")
		g.writeDeferred("\tiret")
	}
	g.popFrame()

	g.params = nil
	return nil
}

// resolveSlot finds the frame slot for a local variable name, walking
// the open block chain outward and then falling through to the
// function's parameters - the codegen-time mirror of the parser's own
// lookupVar (spec.md's scope rule).
func (g *Generator) resolveSlot(name string) (int, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		blk := g.tree.S(g.scopes[i])
		for _, l := range blk.Locals {
			if l.Name == name {
				return l.Offset, true
			}
		}
	}
	if off, ok := g.params[name]; ok {
		return off, true
	}
	return 0, false
}

func (g *Generator) genStmt(id ast.StmtID) error {
	if id == ast.NoStmt {
		return nil
	}
	s := g.tree.S(id)

	switch s.Kind {
	case ast.StmtBlock:
		g.scopes = append(g.scopes, id)
		for _, c := range s.Children {
			if err := g.genStmt(c); err != nil {
				return err
			}
		}
		g.scopes = g.scopes[:len(g.scopes)-1]
		return nil

	case ast.StmtExpr:
		return g.genStatementExpr(s.Expr)

	case ast.StmtReturn:
		if s.Expr == ast.NoExpr {
			g.emit("\tvret")
			return nil
		}
		if err := g.compileValue(s.Expr); err != nil {
			return err
		}
		if isFloatType(g.tree.E(s.Expr).Type) {
			g.emit("\tfret")
		} else {
			g.emit("\tiret")
		}
		return nil

	case ast.StmtIf:
		return g.genIf(s)

	case ast.StmtWhile:
		return g.genWhile(s)

	case ast.StmtFor:
		return g.genFor(s)

	case ast.StmtBreak:
		if len(g.loopBreak) == 0 {
			return errors.New("'break' outside of a loop")
		}
		g.emit("\tjmp %s", g.loopBreak[len(g.loopBreak)-1])
		return nil

	case ast.StmtContinue:
		if len(g.loopContinue) == 0 {
			return errors.New("'continue' outside of a loop")
		}
		g.emit("\tjmp %s", g.loopContinue[len(g.loopContinue)-1])
		return nil
	}

	return errors.Errorf("codegen: unsupported statement kind %d", s.Kind)
}

func (g *Generator) genIf(s *ast.Stmt) error {
	if err := g.compileValue(s.Cond); err != nil {
		return err
	}

	end := g.newLabel()
	if s.Else == ast.NoStmt {
		g.emit("\tjz %s", end)
		if err := g.genStmt(s.Body); err != nil {
			return err
		}
		g.emit("%s:", end)
		return nil
	}

	elseLabel := g.newLabel()
	g.emit("\tjz %s", elseLabel)
	if err := g.genStmt(s.Body); err != nil {
		return err
	}
	g.emit("\tjmp %s", end)
	g.emit("%s:", elseLabel)
	if err := g.genStmt(s.Else); err != nil {
		return err
	}
	g.emit("%s:", end)
	return nil
}

func (g *Generator) genWhile(s *ast.Stmt) error {
	top := g.newLabel()
	end := g.newLabel()

	g.loopContinue = append(g.loopContinue, top)
	g.loopBreak = append(g.loopBreak, end)
	defer func() {
		g.loopContinue = g.loopContinue[:len(g.loopContinue)-1]
		g.loopBreak = g.loopBreak[:len(g.loopBreak)-1]
	}()

	g.emit("%s:", top)
	if err := g.compileValue(s.Cond); err != nil {
		return err
	}
	g.emit("\tjz %s", end)
	if err := g.genStmt(s.Body); err != nil {
		return err
	}
	g.emit("\tjmp %s", top)
	g.emit("%s:", end)
	return nil
}

// genFor mirrors generate_for's shape: the initializer runs once, the
// condition test sits at the loop head, and the step expression is
// generated into the tail position - after the body, but before the
// backward jump - so "continue" lands there rather than skipping it.
func (g *Generator) genFor(s *ast.Stmt) error {
	if s.Init != ast.NoExpr {
		if err := g.genDiscardingExpr(s.Init); err != nil {
			return err
		}
	}

	top := g.newLabel()
	step := g.newLabel()
	end := g.newLabel()

	g.loopContinue = append(g.loopContinue, step)
	g.loopBreak = append(g.loopBreak, end)
	defer func() {
		g.loopContinue = g.loopContinue[:len(g.loopContinue)-1]
		g.loopBreak = g.loopBreak[:len(g.loopBreak)-1]
	}()

	g.emit("%s:", top)
	if s.Cond != ast.NoExpr {
		if err := g.compileValue(s.Cond); err != nil {
			return err
		}
		g.emit("\tjz %s", end)
	}
	if err := g.genStmt(s.Body); err != nil {
		return err
	}
	g.emit("%s:", step)
	if s.Step != ast.NoExpr {
		if err := g.genDiscardingExpr(s.Step); err != nil {
			return err
		}
	}
	g.emit("\tjmp %s", top)
	g.emit("%s:", end)
	return nil
}

// genStatementExpr compiles an expression used as a bare statement,
// discarding whatever value it leaves on the stack. Assignments and
// void calls leave nothing to discard; everything else leaves exactly
// one 8-byte slot.
func (g *Generator) genStatementExpr(id ast.ExprID) error {
	return g.genDiscardingExpr(id)
}

func (g *Generator) genDiscardingExpr(id ast.ExprID) error {
	e := g.tree.E(id)

	if e.Kind == ast.ExprUnaryOp && (e.Op == token.INC || e.Op == token.DEC) {
		return g.compileIncDec(e, false)
	}
	if e.Kind == ast.ExprBinaryOp && e.Op == token.COMMA {
		if err := g.genDiscardingExpr(e.Left); err != nil {
			return err
		}
		return g.genDiscardingExpr(e.Right)
	}

	leavesResidue := true
	if e.Kind == ast.ExprBinaryOp && isAssignOp(e.Op) {
		leavesResidue = false
	}
	if e.Kind == ast.ExprFuncCall && types.Equal(e.Type, types.Void) {
		leavesResidue = false
	}

	if err := g.compileValue(id); err != nil {
		return err
	}
	if leavesResidue {
		// The instruction set has no dedicated "pop"; a negative RES
		// operand shrinks sp by the same amount a positive one grows
		// it, which is exactly a pop of the unused result.
		g.emit("\tres -1")
	}
	return nil
}

func isAssignOp(op token.Type) bool {
	switch op {
	case token.ASSIGN, token.PLUSEQ, token.MINUSEQ, token.ASTEREQ, token.SLASHEQ,
		token.PERCENEQ, token.AMPEQ, token.PIPEEQ, token.CARETEQ, token.SHLEQ, token.SHREQ:
		return true
	}
	return false
}

func isFloatType(t *types.Type) bool {
	return t != nil && t.Name == "float" && t.PointerDepth == 0
}

// compileValue emits code that leaves expr's value on top of the
// stack.
func (g *Generator) compileValue(id ast.ExprID) error {
	e := g.tree.E(id)

	switch e.Kind {
	case ast.ExprInteger:
		g.emit("\tipush %d", e.IntVal)
		return nil

	case ast.ExprFloat:
		g.emit("\tfpush %s", formatFloat(e.FloatVal))
		return nil

	case ast.ExprString:
		label := g.internString(e.StringVal)
		g.emit("\tipush %s", label)
		return nil

	case ast.ExprIdentifier:
		slot, ok := g.resolveSlot(e.Name)
		if !ok {
			return errors.Errorf("codegen: unresolved identifier '%s'", e.Name)
		}
		if isFloatType(e.Type) {
			g.emit("\tflload %d", slot)
		} else {
			g.emit("\tilload %d", slot)
		}
		return nil

	case ast.ExprUnaryOp:
		return g.compileUnary(e)

	case ast.ExprBinaryOp:
		return g.compileBinary(e)

	case ast.ExprCast:
		return g.compileCast(e)

	case ast.ExprFuncCall:
		return g.compileCall(e)
	}

	return errors.Errorf("codegen: unsupported expression kind %d", e.Kind)
}

// compileAddr emits code that leaves the virtual address of an
// addressable expression (identifier, struct-field access, or pointer
// dereference) on top of the stack.
func (g *Generator) compileAddr(id ast.ExprID) error {
	e := g.tree.E(id)

	switch {
	case e.Kind == ast.ExprIdentifier:
		slot, ok := g.resolveSlot(e.Name)
		if !ok {
			return errors.Errorf("codegen: unresolved identifier '%s'", e.Name)
		}
		g.emit("\tlea %d", slot)
		return nil

	case e.Kind == ast.ExprBinaryOp && e.Op == token.DOT:
		return g.compileFieldAddr(e)

	case e.Kind == ast.ExprUnaryOp && e.Op == token.CARET:
		// The address to store through a dereference is just the
		// pointer's own value.
		return g.compileValue(e.Operand)
	}

	return errors.Errorf("codegen: expression is not addressable")
}

// compileFieldAddr resolves a possibly-nested `a.b.c` chain down to its
// identifier root, summing slot offsets along the way - struct fields
// are laid out as contiguous frame slots (frame.go's fieldOffset), so
// `.field` never needs a runtime address computation.
func (g *Generator) compileFieldAddr(e *ast.Expr) error {
	base, extra, err := g.structBase(e)
	if err != nil {
		return err
	}
	g.emit("\tlea %d", base+extra)
	return nil
}

func (g *Generator) structBase(e *ast.Expr) (int, int, error) {
	switch {
	case e.Kind == ast.ExprIdentifier:
		slot, ok := g.resolveSlot(e.Name)
		if !ok {
			return 0, 0, errors.Errorf("codegen: unresolved identifier '%s'", e.Name)
		}
		return slot, 0, nil

	case e.Kind == ast.ExprBinaryOp && e.Op == token.DOT:
		left := g.tree.E(e.Left)
		base, extra, err := g.structBase(left)
		if err != nil {
			return 0, 0, err
		}
		off, _ := fieldOffset(left.Type, e.Name)
		if off < 0 {
			return 0, 0, errors.Errorf("codegen: type %s has no field '%s'", left.Type, e.Name)
		}
		return base, extra + off, nil
	}
	return 0, 0, errors.Errorf("codegen: unsupported struct-field base expression")
}

func (g *Generator) compileFieldValue(e *ast.Expr) error {
	base, extra, err := g.structBase(e)
	if err != nil {
		return err
	}
	if isFloatType(e.Type) {
		g.emit("\tflload %d", base+extra)
	} else {
		g.emit("\tilload %d", base+extra)
	}
	return nil
}

func (g *Generator) compileUnary(e *ast.Expr) error {
	switch e.Op {
	case token.CARET:
		if err := g.compileValue(e.Operand); err != nil {
			return err
		}
		switch {
		case isFloatType(e.Type):
			g.emit("\tfder")
		case e.Type != nil && e.Type.Name == "byte" && e.Type.PointerDepth == 0:
			g.emit("\tcder")
		default:
			g.emit("\tider")
		}
		return nil

	case token.AMP:
		return g.compileAddr(e.Operand)

	case token.MINUS:
		if isFloatType(e.Type) {
			g.emit("\tfpush 0.0")
			if err := g.compileValue(e.Operand); err != nil {
				return err
			}
			g.emit("\tfsub")
			return nil
		}
		if err := g.compileValue(e.Operand); err != nil {
			return err
		}
		g.emit("\tneg")
		return nil

	case token.BANG:
		if err := g.compileValue(e.Operand); err != nil {
			return err
		}
		g.emit("\tlnot")
		return nil

	case token.TILDE:
		if err := g.compileValue(e.Operand); err != nil {
			return err
		}
		g.emit("\tnot")
		return nil

	case token.INC, token.DEC:
		return g.compileIncDec(e, true)
	}

	return errors.Errorf("codegen: unsupported unary operator '%s'", e.Op)
}

// compileIncDec lowers a postfix ++/-- into an address load, an
// immediate add via icinc, and a store; the addressable operand is
// compiled twice (once for its address, once for its current value),
// which is safe because every addressable expression this compiles
// (identifiers, field access, dereferences) is side-effect free.
// wantValue controls whether the new value is left on the stack
// afterwards - a bare "i++;" statement needs no residual.
func (g *Generator) compileIncDec(e *ast.Expr, wantValue bool) error {
	delta := int64(1)
	if e.Op == token.DEC {
		delta = -1
	}

	if err := g.compileAddr(e.Operand); err != nil {
		return err
	}
	if err := g.compileValue(e.Operand); err != nil {
		return err
	}
	g.emit("\ticinc %d", delta)
	if isFloatType(e.Type) {
		g.emit("\tfsave")
	} else {
		g.emit("\tisave")
	}
	if wantValue {
		return g.compileValue(e.Operand)
	}
	return nil
}

func (g *Generator) compileCast(e *ast.Expr) error {
	operand := g.tree.E(e.Operand)
	if err := g.compileValue(e.Operand); err != nil {
		return err
	}
	fromFloat := isFloatType(operand.Type)
	toFloat := isFloatType(e.Type)
	switch {
	case fromFloat && !toFloat:
		g.emit("\tftoi 1")
	case !fromFloat && toFloat:
		g.emit("\titof 1")
	}
	return nil
}

func (g *Generator) compileBinary(e *ast.Expr) error {
	if e.Op == token.DOT {
		return g.compileFieldValue(e)
	}
	if e.Op == token.COMMA {
		if err := g.genDiscardingExpr(e.Left); err != nil {
			return err
		}
		return g.compileValue(e.Right)
	}
	if isAssignOp(e.Op) {
		return g.compileAssign(e)
	}

	left := g.tree.E(e.Left)
	float := isFloatType(left.Type)

	if err := g.compileValue(e.Left); err != nil {
		return err
	}
	if err := g.compileValue(e.Right); err != nil {
		return err
	}

	if e.Op == token.NEQ {
		if float {
			g.emit("\tfcmp")
		} else {
			g.emit("\ticmp")
		}
		g.emit("\tlnot")
		return nil
	}

	mnemonic, ok := binaryMnemonics(e.Op, float, isPointerType(left.Type))
	if !ok {
		return errors.Errorf("codegen: unsupported binary operator '%s'", e.Op)
	}
	g.emit("\t%s", mnemonic)
	return nil
}

func isPointerType(t *types.Type) bool { return t != nil && t.PointerDepth > 0 }

// binaryMnemonics maps a binary operator plus its operand kind to an
// opcode mnemonic, per spec.md's "numeric operators emit with prefix i
// or f based on the inferred type" rule, with pointer arithmetic
// routed to padd/psub (which scale the integer operand by 8 bytes).
func binaryMnemonics(op token.Type, float, pointer bool) (string, bool) {
	if pointer {
		switch op {
		case token.PLUS:
			return "padd", true
		case token.MINUS:
			return "psub", true
		}
	}
	if float {
		switch op {
		case token.PLUS:
			return "fadd", true
		case token.MINUS:
			return "fsub", true
		case token.ASTERISK:
			return "fmul", true
		case token.SLASH:
			return "fdiv", true
		case token.GT:
			return "fgt", true
		case token.GE:
			return "fge", true
		case token.LT:
			return "flt", true
		case token.LE:
			return "fle", true
		case token.EQ:
			return "fcmp", true
		}
		return "", false
	}
	switch op {
	case token.PLUS:
		return "iadd", true
	case token.MINUS:
		return "isub", true
	case token.ASTERISK:
		return "imul", true
	case token.SLASH:
		return "idiv", true
	case token.PERCENT:
		return "mod", true
	case token.SHL:
		return "shl", true
	case token.SHR:
		return "shr", true
	case token.AMP:
		return "and", true
	case token.PIPE:
		return "or", true
	case token.CARET:
		return "xor", true
	case token.GT:
		return "igt", true
	case token.GE:
		return "ige", true
	case token.LT:
		return "ilt", true
	case token.LE:
		return "ile", true
	case token.EQ:
		return "icmp", true
	case token.LAND:
		return "land", true
	case token.LOR:
		return "lor", true
	}
	return "", false
}

// compileAssign compiles the LHS in address mode and the RHS in value
// mode, per spec.md §4.3, then emits a typed save. Compound operators
// (+=, &=, ...) first load the current value to combine with the RHS.
func (g *Generator) compileAssign(e *ast.Expr) error {
	float := isFloatType(e.Type)

	if err := g.compileAddr(e.Left); err != nil {
		return err
	}

	if e.Op == token.ASSIGN {
		if err := g.compileValue(e.Right); err != nil {
			return err
		}
	} else {
		if err := g.compileValue(e.Left); err != nil {
			return err
		}
		if err := g.compileValue(e.Right); err != nil {
			return err
		}
		leftType := g.tree.E(e.Left).Type
		mnemonic, ok := binaryMnemonics(compoundBaseOp(e.Op), float, isPointerType(leftType))
		if !ok {
			return errors.Errorf("codegen: unsupported compound assignment '%s'", e.Op)
		}
		g.emit("\t%s", mnemonic)
	}

	if float {
		g.emit("\tfsave")
	} else {
		g.emit("\tisave")
	}
	return nil
}

// compoundBaseOp maps a compound-assignment token to the plain binary
// operator it combines with the current value (+= -> +, and so on).
func compoundBaseOp(op token.Type) token.Type {
	switch op {
	case token.PLUSEQ:
		return token.PLUS
	case token.MINUSEQ:
		return token.MINUS
	case token.ASTEREQ:
		return token.ASTERISK
	case token.SLASHEQ:
		return token.SLASH
	case token.PERCENEQ:
		return token.PERCENT
	case token.AMPEQ:
		return token.AMP
	case token.PIPEEQ:
		return token.PIPE
	case token.CARETEQ:
		return token.CARET
	case token.SHLEQ:
		return token.SHL
	case token.SHREQ:
		return token.SHR
	}
	return op
}

func (g *Generator) compileCall(e *ast.Expr) error {
	args := flattenArgs(g.tree, e.Arg)
	for _, a := range args {
		if err := g.compileValue(a); err != nil {
			return err
		}
	}
	if e.IsHostCall {
		label := g.internHostName(e.Name)
		g.emit("\tccall %s, %d", label, len(args))
		return nil
	}
	g.emit("\tcall __FUNC__%s, %d", e.Name, len(args))
	return nil
}

// flattenArgs walks a left-leaning comma-operator chain, returning its
// leaves in source (left-to-right) order - the same shape
// parser.flattenCommaExprs builds while typechecking a call's argument
// list.
func flattenArgs(tree *ast.Tree, id ast.ExprID) []ast.ExprID {
	if id == ast.NoExpr {
		return nil
	}
	e := tree.E(id)
	if e.Kind == ast.ExprBinaryOp && e.Op == token.COMMA {
		return append(flattenArgs(tree, e.Left), e.Right)
	}
	return []ast.ExprID{id}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
