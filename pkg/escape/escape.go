// Package escape marks the variables that must live in the frame. A
// variable escapes when it is referenced from a function nested more
// deeply than the one declaring it; such a reference has to follow
// static links into the declaring frame, so the variable needs an
// address. The walk mutates the Escape flag at each declaration site.
package escape

import (
	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/symbol"
)

type entry struct {
	depth  int
	escape *bool
}

type finder struct {
	env   *symbol.Table[entry]
	depth int
}

// FindEscapes walks the program and sets the Escape flag on every
// variable declaration referenced from a deeper function.
func FindEscapes(exp ast.Exp) {
	f := &finder{env: symbol.NewTable[entry]()}
	f.walkExp(exp)
}

func (f *finder) declare(sym symbol.Symbol, escape *bool) {
	*escape = false
	f.env.Enter(sym, entry{depth: f.depth, escape: escape})
}

func (f *finder) reference(sym symbol.Symbol) {
	if e, ok := f.env.Look(sym); ok && f.depth > e.depth {
		*e.escape = true
	}
}

func (f *finder) walkExp(exp ast.Exp) {
	switch e := exp.(type) {
	case *ast.VarExp:
		f.walkVar(e.Var)
	case *ast.NilExp, *ast.IntExp, *ast.StringExp, *ast.BreakExp, *ast.NewExp:
	case *ast.CallExp:
		for _, arg := range e.Args {
			f.walkExp(arg)
		}
	case *ast.MethodCallExp:
		f.walkVar(e.Receiver)
		for _, arg := range e.Args {
			f.walkExp(arg)
		}
	case *ast.OpExp:
		f.walkExp(e.Left)
		f.walkExp(e.Right)
	case *ast.RecordExp:
		for _, field := range e.Fields {
			f.walkExp(field.Init)
		}
	case *ast.SeqExp:
		for _, sub := range e.Exps {
			f.walkExp(sub)
		}
	case *ast.AssignExp:
		f.walkVar(e.Var)
		f.walkExp(e.Exp)
	case *ast.IfExp:
		f.walkExp(e.Cond)
		f.walkExp(e.Then)
		if e.Else != nil {
			f.walkExp(e.Else)
		}
	case *ast.WhileExp:
		f.walkExp(e.Cond)
		f.walkExp(e.Body)
	case *ast.ForExp:
		f.walkExp(e.Lo)
		f.walkExp(e.Hi)
		f.env.BeginScope()
		f.declare(e.Var, &e.Escape)
		f.walkExp(e.Body)
		f.env.EndScope()
	case *ast.LetExp:
		f.env.BeginScope()
		for _, dec := range e.Decs {
			f.walkDec(dec)
		}
		f.walkExp(e.Body)
		f.env.EndScope()
	case *ast.ArrayExp:
		f.walkExp(e.Size)
		f.walkExp(e.Init)
	}
}

func (f *finder) walkVar(v ast.Var) {
	switch vv := v.(type) {
	case *ast.SimpleVar:
		f.reference(vv.Sym)
	case *ast.FieldVar:
		f.walkVar(vv.Var)
	case *ast.SubscriptVar:
		f.walkVar(vv.Var)
		f.walkExp(vv.Index)
	}
}

func (f *finder) walkDec(dec ast.Dec) {
	switch d := dec.(type) {
	case *ast.VarDec:
		f.walkExp(d.Init)
		f.declare(d.Name, &d.Escape)
	case *ast.FunctionDec:
		for _, fn := range d.Functions {
			f.walkFunDec(fn)
		}
	case *ast.TypeDec:
	case *ast.ClassDec:
		// Class fields live in the object, not the frame. Their
		// initialisers run inside the synthesized constructor, one
		// function level down from the declaration.
		f.depth++
		for _, field := range d.Fields {
			f.walkExp(field.Init)
		}
		f.depth--
		for _, method := range d.Methods {
			f.walkFunDec(method)
		}
	}
}

func (f *finder) walkFunDec(fn *ast.FunDec) {
	f.depth++
	f.env.BeginScope()
	for _, param := range fn.Params {
		f.declare(param.Name, &param.Escape)
	}
	f.walkExp(fn.Body)
	f.env.EndScope()
	f.depth--
}
