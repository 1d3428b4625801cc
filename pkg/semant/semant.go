// Package semant type-checks a Tiger program against nested value and
// type environments and, in the same pass, lowers every well-typed
// expression into tree IR, emitting one fragment per function plus
// string and vtable data fragments.
package semant

import (
	"fmt"

	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/diag"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/translate"
	"github.com/raymyers/tiger-go/pkg/types"
)

type expTy struct {
	expr translate.Expr
	ty   types.Type
}

// classMeta records what instantiation and dispatch need beyond the
// class type itself: the level the class was declared at and the label
// of its synthesized constructor.
type classMeta struct {
	declLevel *translate.Level
	initLabel temp.Label
}

// Semant is the combined analyser and translator.
type Semant struct {
	strings      *symbol.Strings
	env          *Env
	translator   *translate.Translator
	classes      map[types.Unique]*classMeta
	currentClass *types.Class
	frameRoots   []int64
	selfSym      symbol.Symbol
	objectSym    symbol.Symbol
}

// New creates an analyser over the given intern table.
func New(strings *symbol.Strings) *Semant {
	return &Semant{
		strings:    strings,
		translator: translate.NewTranslator(),
		classes:    make(map[types.Unique]*classMeta),
		selfSym:    strings.Symbol("self"),
		objectSym:  strings.Symbol("Object"),
	}
}

// Analyze type-checks the program and returns the translated fragments.
// The program itself becomes the body of main, which returns exit code 0.
func (s *Semant) Analyze(program ast.Exp) ([]frame.Fragment, error) {
	outermost := translate.Outermost()
	s.env = NewEnv(s.strings, outermost)
	mainLevel := translate.NewLevel(outermost, temp.NamedLabel("main"), nil)

	body, err := s.transExp(program, mainLevel, "")
	if err != nil {
		return nil, err
	}
	result := translate.SeqExp([]translate.Expr{body.expr, translate.IntLit(0)}, true)
	s.translator.Function(mainLevel, result, false, s.frameRoots)
	return s.translator.Fragments(), nil
}

func (s *Semant) describe(t types.Type) string {
	return types.Describe(s.strings, t)
}

func (s *Semant) name(sym symbol.Symbol) string {
	return s.strings.Name(sym)
}

// checkInt verifies an operand has type int.
func (s *Semant) checkInt(e expTy, pos diag.Pos) error {
	if !types.Equal(types.Int{}, e.ty) {
		return diag.TypeMismatchError(pos, "int", s.describe(e.ty))
	}
	return nil
}

// checkCompatible verifies actual may be used where expected is required.
func (s *Semant) checkCompatible(expected, actual types.Type, pos diag.Pos) error {
	if !types.Equal(expected, actual) {
		return diag.TypeMismatchError(pos, s.describe(expected), s.describe(actual))
	}
	return nil
}

var arithOps = map[ast.Oper]ir.BinOpKind{
	ast.PlusOp:   ir.Plus,
	ast.MinusOp:  ir.Minus,
	ast.TimesOp:  ir.Mul,
	ast.DivideOp: ir.Div,
}

var relOps = map[ast.Oper]ir.RelOp{
	ast.EqOp:  ir.Eq,
	ast.NeqOp: ir.Ne,
	ast.LtOp:  ir.Lt,
	ast.LeOp:  ir.Le,
	ast.GtOp:  ir.Gt,
	ast.GeOp:  ir.Ge,
}

func (s *Semant) transExp(exp ast.Exp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	switch e := exp.(type) {
	case *ast.VarExp:
		result, _, err := s.transVar(e.Var, level, breakLabel)
		return result, err

	case *ast.NilExp:
		return expTy{expr: translate.NilLit(), ty: types.Nil{}}, nil

	case *ast.IntExp:
		return expTy{expr: translate.IntLit(e.Value), ty: types.Int{}}, nil

	case *ast.StringExp:
		return expTy{expr: s.translator.StringLit(e.Value), ty: types.String{}}, nil

	case *ast.CallExp:
		return s.transCall(e, level, breakLabel)

	case *ast.MethodCallExp:
		return s.transMethodCall(e, level, breakLabel)

	case *ast.OpExp:
		return s.transOp(e, level, breakLabel)

	case *ast.RecordExp:
		return s.transRecord(e, level, breakLabel)

	case *ast.SeqExp:
		if len(e.Exps) == 0 {
			return expTy{expr: translate.Unit(), ty: types.Unit{}}, nil
		}
		exprs := make([]translate.Expr, 0, len(e.Exps))
		var last expTy
		for _, sub := range e.Exps {
			result, err := s.transExp(sub, level, breakLabel)
			if err != nil {
				return expTy{}, err
			}
			exprs = append(exprs, result.expr)
			last = result
		}
		valued := !types.Equal(types.Unit{}, last.ty)
		return expTy{expr: translate.SeqExp(exprs, valued), ty: last.ty}, nil

	case *ast.AssignExp:
		dst, assignable, err := s.transVar(e.Var, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if !assignable {
			return expTy{}, diag.Errorf(diag.Semantic, e.Pos, "loop variable cannot be assigned")
		}
		src, err := s.transExp(e.Exp, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkCompatible(dst.ty, src.ty, e.Exp.ExpPos()); err != nil {
			return expTy{}, err
		}
		return expTy{expr: translate.Assign(dst.expr, src.expr), ty: types.Unit{}}, nil

	case *ast.IfExp:
		cond, err := s.transExp(e.Cond, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(cond, e.Cond.ExpPos()); err != nil {
			return expTy{}, err
		}
		then, err := s.transExp(e.Then, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if e.Else == nil {
			if !types.Equal(types.Unit{}, then.ty) {
				return expTy{}, diag.TypeMismatchError(e.Then.ExpPos(), "unit", s.describe(then.ty))
			}
			return expTy{expr: translate.IfExp(cond.expr, then.expr, nil), ty: types.Unit{}}, nil
		}
		els, err := s.transExp(e.Else, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		var joined types.Type
		switch {
		case types.Equal(then.ty, els.ty):
			joined = then.ty
		case types.Equal(els.ty, then.ty):
			joined = els.ty
		default:
			return expTy{}, diag.TypeMismatchError(e.Else.ExpPos(), s.describe(then.ty), s.describe(els.ty))
		}
		if _, isNil := types.Actual(joined).(types.Nil); isNil {
			joined = els.ty
		}
		return expTy{expr: translate.IfExp(cond.expr, then.expr, els.expr), ty: joined}, nil

	case *ast.WhileExp:
		cond, err := s.transExp(e.Cond, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(cond, e.Cond.ExpPos()); err != nil {
			return expTy{}, err
		}
		done := temp.NewLabel()
		body, err := s.transExp(e.Body, level, done)
		if err != nil {
			return expTy{}, err
		}
		if !types.Equal(types.Unit{}, body.ty) {
			return expTy{}, diag.TypeMismatchError(e.Body.ExpPos(), "unit", s.describe(body.ty))
		}
		return expTy{expr: translate.WhileExp(cond.expr, body.expr, done), ty: types.Unit{}}, nil

	case *ast.ForExp:
		lo, err := s.transExp(e.Lo, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(lo, e.Lo.ExpPos()); err != nil {
			return expTy{}, err
		}
		hi, err := s.transExp(e.Hi, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(hi, e.Hi.ExpPos()); err != nil {
			return expTy{}, err
		}
		s.env.BeginScope()
		access := level.AllocLocal(e.Escape)
		s.env.venv.Enter(e.Var, &VarEntry{Access: access, Ty: types.Int{}, Assignable: false})
		done := temp.NewLabel()
		body, err := s.transExp(e.Body, level, done)
		if err != nil {
			return expTy{}, err
		}
		s.env.EndScope()
		if !types.Equal(types.Unit{}, body.ty) {
			return expTy{}, diag.TypeMismatchError(e.Body.ExpPos(), "unit", s.describe(body.ty))
		}
		expr := translate.ForExp(access, level, lo.expr, hi.expr, body.expr, done)
		return expTy{expr: expr, ty: types.Unit{}}, nil

	case *ast.BreakExp:
		if breakLabel == "" {
			return expTy{}, diag.BreakOutsideLoopError(e.Pos)
		}
		return expTy{expr: translate.Break(breakLabel), ty: types.Unit{}}, nil

	case *ast.LetExp:
		s.env.BeginScope()
		var inits []translate.Expr
		for _, dec := range e.Decs {
			if err := s.transDec(dec, level, breakLabel, &inits); err != nil {
				s.env.EndScope()
				return expTy{}, err
			}
		}
		body, err := s.transExp(e.Body, level, breakLabel)
		s.env.EndScope()
		if err != nil {
			return expTy{}, err
		}
		valued := !types.Equal(types.Unit{}, body.ty)
		expr := translate.SeqExp(append(inits, body.expr), valued)
		return expTy{expr: expr, ty: body.ty}, nil

	case *ast.ArrayExp:
		return s.transArray(e, level, breakLabel)

	case *ast.NewExp:
		return s.transNew(e, level)
	}
	panic(fmt.Sprintf("semant: unhandled expression %T", exp))
}

func (s *Semant) transOp(e *ast.OpExp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	left, err := s.transExp(e.Left, level, breakLabel)
	if err != nil {
		return expTy{}, err
	}
	right, err := s.transExp(e.Right, level, breakLabel)
	if err != nil {
		return expTy{}, err
	}

	if op, ok := arithOps[e.Op]; ok {
		if err := s.checkInt(left, e.Left.ExpPos()); err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(right, e.Right.ExpPos()); err != nil {
			return expTy{}, err
		}
		return expTy{expr: translate.BinOp(op, left.expr, right.expr), ty: types.Int{}}, nil
	}

	if e.Op == ast.AndOp || e.Op == ast.OrOp {
		if err := s.checkInt(left, e.Left.ExpPos()); err != nil {
			return expTy{}, err
		}
		if err := s.checkInt(right, e.Right.ExpPos()); err != nil {
			return expTy{}, err
		}
		if e.Op == ast.AndOp {
			return expTy{expr: translate.And(left.expr, right.expr), ty: types.Int{}}, nil
		}
		return expTy{expr: translate.Or(left.expr, right.expr), ty: types.Int{}}, nil
	}

	op := relOps[e.Op]
	if !types.Equal(left.ty, right.ty) && !types.Equal(right.ty, left.ty) {
		return expTy{}, diag.TypeMismatchError(e.Right.ExpPos(), s.describe(left.ty), s.describe(right.ty))
	}

	switch types.Actual(left.ty).(type) {
	case types.Int:
		return expTy{expr: translate.RelOp(op, left.expr, right.expr), ty: types.Int{}}, nil
	case types.String:
		var expr translate.Expr
		switch e.Op {
		case ast.EqOp:
			expr = s.translator.StringEq(false, left.expr, right.expr)
		case ast.NeqOp:
			expr = s.translator.StringEq(true, left.expr, right.expr)
		default:
			expr = s.translator.StringOrd(op, left.expr, right.expr)
		}
		return expTy{expr: expr, ty: types.Int{}}, nil
	default:
		// Records, arrays, classes and nil compare by identity
		if e.Op != ast.EqOp && e.Op != ast.NeqOp {
			return expTy{}, diag.Errorf(diag.Semantic, e.Pos,
				"%s values only support = and <>", s.describe(left.ty))
		}
		return expTy{expr: translate.RelOp(op, left.expr, right.expr), ty: types.Int{}}, nil
	}
}

func (s *Semant) transCall(e *ast.CallExp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	binding, ok := s.env.venv.Look(e.Func)
	if !ok {
		return expTy{}, diag.UndefinedError(e.Pos, "function", s.name(e.Func))
	}
	entry, ok := binding.(*FunEntry)
	if !ok {
		return expTy{}, diag.Errorf(diag.Semantic, e.Pos, "%q is a variable, not a function", s.name(e.Func))
	}
	if len(e.Args) != len(entry.Formals) {
		return expTy{}, diag.ArityError(e.Pos, s.name(e.Func), len(entry.Formals), len(e.Args))
	}
	args := make([]translate.Expr, len(e.Args))
	for i, arg := range e.Args {
		result, err := s.transExp(arg, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkCompatible(entry.Formals[i], result.ty, arg.ExpPos()); err != nil {
			return expTy{}, err
		}
		args[i] = result.expr
	}
	isProcedure := types.Equal(types.Unit{}, entry.Result)
	resultIsPointer := types.IsPointer(entry.Result)
	var expr translate.Expr
	if entry.External {
		expr = s.translator.ExternalCall(entry.Name, args, resultIsPointer, isProcedure)
	} else {
		expr = s.translator.Call(entry.Label, entry.Level.Parent, level, args, resultIsPointer, isProcedure)
	}
	return expTy{expr: expr, ty: entry.Result}, nil
}

func (s *Semant) transMethodCall(e *ast.MethodCallExp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	receiver, _, err := s.transVar(e.Receiver, level, breakLabel)
	if err != nil {
		return expTy{}, err
	}
	cls, ok := types.Actual(receiver.ty).(*types.Class)
	if !ok {
		return expTy{}, diag.NotAClassError(e.Pos, s.describe(receiver.ty))
	}
	var method *types.Method
	for i := range cls.Methods {
		if cls.Methods[i].Name == e.Method {
			method = &cls.Methods[i]
			break
		}
	}
	if method == nil {
		return expTy{}, diag.UndefinedError(e.Pos, "method", s.name(e.Method))
	}
	if len(e.Args) != len(method.Formals) {
		return expTy{}, diag.ArityError(e.Pos, s.name(e.Method), len(method.Formals), len(e.Args))
	}
	args := make([]translate.Expr, len(e.Args))
	for i, arg := range e.Args {
		result, err := s.transExp(arg, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkCompatible(method.Formals[i], result.ty, arg.ExpPos()); err != nil {
			return expTy{}, err
		}
		args[i] = result.expr
	}
	meta := s.classes[cls.Unique]
	isProcedure := types.Equal(types.Unit{}, method.Result)
	resultIsPointer := types.IsPointer(method.Result)
	expr := s.translator.MethodCall(receiver.expr, method.Index, meta.declLevel, level, args, resultIsPointer, isProcedure)
	return expTy{expr: expr, ty: method.Result}, nil
}

func (s *Semant) transRecord(e *ast.RecordExp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	ty, ok := s.env.tenv.Look(e.Type)
	if !ok {
		return expTy{}, diag.UndefinedError(e.Pos, "type", s.name(e.Type))
	}
	rec, ok := types.Actual(ty).(*types.Record)
	if !ok {
		return expTy{}, diag.Errorf(diag.Semantic, e.Pos, "%q is not a record type", s.name(e.Type))
	}
	if len(e.Fields) != len(rec.Fields) {
		return expTy{}, diag.Errorf(diag.Semantic, e.Pos,
			"record %q has %d fields, %d given", s.name(e.Type), len(rec.Fields), len(e.Fields))
	}
	inits := make([]translate.Expr, len(e.Fields))
	offsets := make([]int64, len(e.Fields))
	for i, field := range e.Fields {
		if field.Name != rec.Fields[i].Name {
			return expTy{}, diag.Errorf(diag.Semantic, field.Pos,
				"expected field %q, found %q", s.name(rec.Fields[i].Name), s.name(field.Name))
		}
		result, err := s.transExp(field.Init, level, breakLabel)
		if err != nil {
			return expTy{}, err
		}
		if err := s.checkCompatible(rec.Fields[i].Type, result.ty, field.Init.ExpPos()); err != nil {
			return expTy{}, err
		}
		inits[i] = result.expr
		offsets[i] = rec.Fields[i].Offset
	}
	size := int64(frame.DataLayoutSize) + int64(len(rec.Fields))*frame.WordSize
	layout := s.translator.LayoutLit(recordLayout(rec.Fields, false))
	return expTy{expr: s.translator.RecordExp(layout, size, offsets, inits), ty: rec}, nil
}

func (s *Semant) transArray(e *ast.ArrayExp, level *translate.Level, breakLabel temp.Label) (expTy, error) {
	ty, ok := s.env.tenv.Look(e.Type)
	if !ok {
		return expTy{}, diag.UndefinedError(e.Pos, "type", s.name(e.Type))
	}
	arr, ok := types.Actual(ty).(*types.Array)
	if !ok {
		return expTy{}, diag.Errorf(diag.Semantic, e.Pos, "%q is not an array type", s.name(e.Type))
	}
	size, err := s.transExp(e.Size, level, breakLabel)
	if err != nil {
		return expTy{}, err
	}
	if err := s.checkInt(size, e.Size.ExpPos()); err != nil {
		return expTy{}, err
	}
	init, err := s.transExp(e.Init, level, breakLabel)
	if err != nil {
		return expTy{}, err
	}
	if err := s.checkCompatible(arr.Elem, init.ty, e.Init.ExpPos()); err != nil {
		return expTy{}, err
	}
	descriptor := frame.ArrayTypeDescriptor
	if types.IsPointer(arr.Elem) {
		descriptor = frame.ArrayPtrTypeDescriptor
	}
	// Arrays of records or objects get a distinct element per slot; the
	// initialiser is re-evaluated inside the fill loop.
	perElement := false
	switch types.Actual(arr.Elem).(type) {
	case *types.Record, *types.Class:
		perElement = true
	}
	expr := s.translator.ArrayExp(ir.Const{Value: descriptor}, size.expr, init.expr, perElement)
	return expTy{expr: expr, ty: arr}, nil
}

func (s *Semant) transNew(e *ast.NewExp, level *translate.Level) (expTy, error) {
	ty, ok := s.env.tenv.Look(e.Class)
	if !ok {
		return expTy{}, diag.UndefinedError(e.Pos, "class", s.name(e.Class))
	}
	cls, ok := types.Actual(ty).(*types.Class)
	if !ok {
		return expTy{}, diag.Errorf(diag.Semantic, e.Pos, "%q is not a class", s.name(e.Class))
	}
	size := int64(frame.DataLayoutSize) + frame.WordSize + int64(len(cls.Fields))*frame.WordSize
	layout := s.translator.LayoutLit(recordLayout(cls.Fields, true))
	meta := s.classes[cls.Unique]
	if meta == nil {
		// Object, the builtin root: nothing to initialise
		expr := s.translator.NewExp(layout, size, cls.VtableLabel, "", nil, level)
		return expTy{expr: expr, ty: cls}, nil
	}
	expr := s.translator.NewExp(layout, size, cls.VtableLabel, meta.initLabel, meta.declLevel, level)
	return expTy{expr: expr, ty: cls}, nil
}

// recordLayout renders the GC layout string for an object: one character
// per word after the header, p for pointer slots and n otherwise.
func recordLayout(fields []types.Field, leadingVtable bool) string {
	layout := make([]byte, 0, len(fields)+1)
	if leadingVtable {
		layout = append(layout, 'n')
	}
	for _, field := range fields {
		if types.IsPointer(field.Type) {
			layout = append(layout, 'p')
		} else {
			layout = append(layout, 'n')
		}
	}
	return string(layout)
}

func (s *Semant) transVar(v ast.Var, level *translate.Level, breakLabel temp.Label) (expTy, bool, error) {
	switch vv := v.(type) {
	case *ast.SimpleVar:
		binding, ok := s.env.venv.Look(vv.Sym)
		if !ok {
			return expTy{}, false, diag.UndefinedError(vv.Pos, "variable", s.name(vv.Sym))
		}
		entry, ok := binding.(*VarEntry)
		if !ok {
			return expTy{}, false, diag.Errorf(diag.Semantic, vv.Pos,
				"%q is a function, not a variable", s.name(vv.Sym))
		}
		expr := translate.SimpleVar(entry.Access, level)
		return expTy{expr: expr, ty: entry.Ty}, entry.Assignable, nil

	case *ast.FieldVar:
		base, _, err := s.transVar(vv.Var, level, breakLabel)
		if err != nil {
			return expTy{}, false, err
		}
		switch baseTy := types.Actual(base.ty).(type) {
		case *types.Record:
			for _, field := range baseTy.Fields {
				if field.Name == vv.Field {
					expr := translate.FieldVar(base.expr, field.Offset)
					return expTy{expr: expr, ty: field.Type}, true, nil
				}
			}
			return expTy{}, false, diag.UndefinedError(vv.Pos, "field", s.name(vv.Field))
		case *types.Class:
			// Attributes are private: only reachable through self inside
			// a method of the class.
			simple, isSimple := vv.Var.(*ast.SimpleVar)
			if !isSimple || simple.Sym != s.selfSym || s.currentClass == nil {
				return expTy{}, false, diag.SelfOutsideClassError(vv.Pos)
			}
			for _, field := range baseTy.Fields {
				if field.Name == vv.Field {
					expr := translate.FieldVar(base.expr, field.Offset)
					return expTy{expr: expr, ty: field.Type}, true, nil
				}
			}
			return expTy{}, false, diag.UndefinedError(vv.Pos, "field", s.name(vv.Field))
		default:
			return expTy{}, false, diag.Errorf(diag.Semantic, vv.Pos,
				"field access on non-record value of type %s", s.describe(base.ty))
		}

	case *ast.SubscriptVar:
		base, _, err := s.transVar(vv.Var, level, breakLabel)
		if err != nil {
			return expTy{}, false, err
		}
		arr, ok := types.Actual(base.ty).(*types.Array)
		if !ok {
			return expTy{}, false, diag.Errorf(diag.Semantic, vv.Pos,
				"subscript of non-array value of type %s", s.describe(base.ty))
		}
		index, err := s.transExp(vv.Index, level, breakLabel)
		if err != nil {
			return expTy{}, false, err
		}
		if err := s.checkInt(index, vv.Index.ExpPos()); err != nil {
			return expTy{}, false, err
		}
		expr := translate.SubscriptVar(base.expr, index.expr)
		return expTy{expr: expr, ty: arr.Elem}, true, nil
	}
	panic(fmt.Sprintf("semant: unhandled lvalue %T", v))
}

// trackVar records a new variable's home in the pointer bookkeeping.
func (s *Semant) trackVar(access translate.Access, ty types.Type) {
	if !types.IsPointer(ty) {
		return
	}
	switch a := access.Access.(type) {
	case frame.InReg:
		s.translator.MarkPointer(access)
	case frame.InFrame:
		s.frameRoots = append(s.frameRoots, a.Offset)
	}
}

func (s *Semant) transDec(dec ast.Dec, level *translate.Level, breakLabel temp.Label, inits *[]translate.Expr) error {
	switch d := dec.(type) {
	case *ast.VarDec:
		return s.transVarDec(d, level, breakLabel, inits)
	case *ast.TypeDec:
		return s.transTypeDec(d)
	case *ast.FunctionDec:
		return s.transFunctionDec(d, level)
	case *ast.ClassDec:
		return s.transClassDec(d, level)
	}
	panic(fmt.Sprintf("semant: unhandled declaration %T", dec))
}

func (s *Semant) transVarDec(d *ast.VarDec, level *translate.Level, breakLabel temp.Label, inits *[]translate.Expr) error {
	init, err := s.transExp(d.Init, level, breakLabel)
	if err != nil {
		return err
	}
	var ty types.Type
	if d.HasType {
		declared, ok := s.env.tenv.Look(d.Type)
		if !ok {
			return diag.UndefinedError(d.Pos, "type", s.name(d.Type))
		}
		if err := s.checkCompatible(declared, init.ty, d.Init.ExpPos()); err != nil {
			return err
		}
		ty = declared
	} else {
		switch types.Actual(init.ty).(type) {
		case types.Nil:
			return diag.Errorf(diag.Semantic, d.Pos, "initialising with nil requires an explicit type")
		case types.Unit:
			return diag.Errorf(diag.Semantic, d.Pos, "cannot initialise a variable with no value")
		}
		ty = init.ty
	}
	access := level.AllocLocal(d.Escape)
	s.trackVar(access, ty)
	s.env.venv.Enter(d.Name, &VarEntry{Access: access, Ty: ty, Assignable: true})
	*inits = append(*inits, translate.Assign(translate.SimpleVar(access, level), init.expr))
	return nil
}

func (s *Semant) transTypeDec(d *ast.TypeDec) error {
	seen := make(map[symbol.Symbol]bool)
	names := make([]*types.Name, len(d.Types))
	for i, item := range d.Types {
		if seen[item.Name] {
			return diag.DuplicateError(item.Pos, s.name(item.Name))
		}
		seen[item.Name] = true
		names[i] = &types.Name{Sym: item.Name}
		s.env.tenv.Enter(item.Name, names[i])
	}
	for i, item := range d.Types {
		ty, err := s.transTy(item.Ty)
		if err != nil {
			return err
		}
		if rec, ok := ty.(*types.Record); ok {
			rec.Name = item.Name
		}
		names[i].Ty = ty
	}
	// A cycle of pure name aliases has no representation; every recursive
	// group must pass through a record or array.
	for i, item := range d.Types {
		var ty types.Type = names[i]
		for steps := 0; steps <= len(d.Types); steps++ {
			name, ok := ty.(*types.Name)
			if !ok {
				break
			}
			if steps == len(d.Types) {
				return diag.CyclicTypeError(item.Pos, s.name(item.Name))
			}
			ty = name.Ty
		}
	}
	return nil
}

func (s *Semant) transTy(ty ast.Ty) (types.Type, error) {
	switch t := ty.(type) {
	case *ast.NameTy:
		resolved, ok := s.env.tenv.Look(t.Sym)
		if !ok {
			return nil, diag.UndefinedError(t.Pos, "type", s.name(t.Sym))
		}
		return resolved, nil
	case *ast.RecordTy:
		fields := make([]types.Field, len(t.Fields))
		seen := make(map[symbol.Symbol]bool)
		for i, field := range t.Fields {
			if seen[field.Name] {
				return nil, diag.DuplicateError(field.Pos, s.name(field.Name))
			}
			seen[field.Name] = true
			fieldTy, ok := s.env.tenv.Look(field.Type)
			if !ok {
				return nil, diag.UndefinedError(field.Pos, "type", s.name(field.Type))
			}
			fields[i] = types.Field{
				Name:   field.Name,
				Type:   fieldTy,
				Offset: int64(frame.DataLayoutSize) + int64(i)*frame.WordSize,
			}
		}
		return &types.Record{Fields: fields, Unique: types.NewUnique()}, nil
	case *ast.ArrayTy:
		elem, ok := s.env.tenv.Look(t.Sym)
		if !ok {
			return nil, diag.UndefinedError(t.Pos, "type", s.name(t.Sym))
		}
		return &types.Array{Elem: elem, Unique: types.NewUnique()}, nil
	}
	panic(fmt.Sprintf("semant: unhandled type syntax %T", ty))
}

func (s *Semant) transFunctionDec(d *ast.FunctionDec, level *translate.Level) error {
	seen := make(map[symbol.Symbol]bool)
	entries := make([]*FunEntry, len(d.Functions))

	// First pass: enter every header so the bodies can call each other.
	for i, fn := range d.Functions {
		if seen[fn.Name] {
			return diag.DuplicateError(fn.Pos, s.name(fn.Name))
		}
		seen[fn.Name] = true
		formals, result, err := s.resolveSignature(fn)
		if err != nil {
			return err
		}
		escapes := make([]bool, len(fn.Params))
		for j, param := range fn.Params {
			escapes[j] = param.Escape
		}
		label := temp.NewLabel()
		entries[i] = &FunEntry{
			Level:   translate.NewLevel(level, label, escapes),
			Label:   label,
			Formals: formals,
			Result:  result,
		}
		s.env.venv.Enter(fn.Name, entries[i])
	}

	// Second pass: translate the bodies.
	for i, fn := range d.Functions {
		if err := s.transFunBody(fn, entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Semant) resolveSignature(fn *ast.FunDec) ([]types.Type, types.Type, error) {
	formals := make([]types.Type, len(fn.Params))
	seen := make(map[symbol.Symbol]bool)
	for i, param := range fn.Params {
		if seen[param.Name] {
			return nil, nil, diag.DuplicateError(param.Pos, s.name(param.Name))
		}
		seen[param.Name] = true
		ty, ok := s.env.tenv.Look(param.Type)
		if !ok {
			return nil, nil, diag.UndefinedError(param.Pos, "type", s.name(param.Type))
		}
		formals[i] = ty
	}
	var result types.Type = types.Unit{}
	if fn.HasResult {
		ty, ok := s.env.tenv.Look(fn.Result)
		if !ok {
			return nil, nil, diag.UndefinedError(fn.Pos, "type", s.name(fn.Result))
		}
		result = ty
	}
	return formals, result, nil
}

// transFunBody translates one function body in a fresh scope with the
// formals bound to their view-shifted accesses.
func (s *Semant) transFunBody(fn *ast.FunDec, entry *FunEntry) error {
	savedRoots := s.frameRoots
	s.frameRoots = nil
	s.env.BeginScope()

	accesses := entry.Level.Formals()
	for i, param := range fn.Params {
		s.trackVar(accesses[i], entry.Formals[i])
		s.env.venv.Enter(param.Name, &VarEntry{
			Access:     accesses[i],
			Ty:         entry.Formals[i],
			Assignable: true,
		})
	}

	body, err := s.transExp(fn.Body, entry.Level, "")
	s.env.EndScope()
	if err != nil {
		s.frameRoots = savedRoots
		return err
	}
	if err := s.checkCompatible(entry.Result, body.ty, fn.Body.ExpPos()); err != nil {
		s.frameRoots = savedRoots
		return err
	}
	isProcedure := types.Equal(types.Unit{}, entry.Result)
	s.translator.Function(entry.Level, body.expr, isProcedure, s.frameRoots)
	s.frameRoots = savedRoots
	return nil
}
