package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/tiger-go/pkg/symbol"
)

// Printer outputs an AST in an indented, human-readable form
type Printer struct {
	w       io.Writer
	strings *symbol.Strings
}

// NewPrinter creates a new AST printer
func NewPrinter(w io.Writer, strings *symbol.Strings) *Printer {
	return &Printer{w: w, strings: strings}
}

// PrintExp outputs an expression tree
func (p *Printer) PrintExp(exp Exp) {
	p.printExp(exp, 0)
}

func (p *Printer) indent(depth int) {
	fmt.Fprint(p.w, strings.Repeat("  ", depth))
}

func (p *Printer) name(sym symbol.Symbol) string {
	return p.strings.Name(sym)
}

func (p *Printer) printExp(exp Exp, depth int) {
	p.indent(depth)
	switch e := exp.(type) {
	case *VarExp:
		fmt.Fprintln(p.w, "VarExp")
		p.printVar(e.Var, depth+1)
	case *NilExp:
		fmt.Fprintln(p.w, "NilExp")
	case *IntExp:
		fmt.Fprintf(p.w, "IntExp %d\n", e.Value)
	case *StringExp:
		fmt.Fprintf(p.w, "StringExp %q\n", e.Value)
	case *CallExp:
		fmt.Fprintf(p.w, "CallExp %s\n", p.name(e.Func))
		for _, arg := range e.Args {
			p.printExp(arg, depth+1)
		}
	case *MethodCallExp:
		fmt.Fprintf(p.w, "MethodCallExp %s\n", p.name(e.Method))
		p.printVar(e.Receiver, depth+1)
		for _, arg := range e.Args {
			p.printExp(arg, depth+1)
		}
	case *OpExp:
		fmt.Fprintf(p.w, "OpExp %s\n", e.Op)
		p.printExp(e.Left, depth+1)
		p.printExp(e.Right, depth+1)
	case *RecordExp:
		fmt.Fprintf(p.w, "RecordExp %s\n", p.name(e.Type))
		for _, f := range e.Fields {
			p.indent(depth + 1)
			fmt.Fprintf(p.w, "Field %s\n", p.name(f.Name))
			p.printExp(f.Init, depth+2)
		}
	case *SeqExp:
		fmt.Fprintln(p.w, "SeqExp")
		for _, sub := range e.Exps {
			p.printExp(sub, depth+1)
		}
	case *AssignExp:
		fmt.Fprintln(p.w, "AssignExp")
		p.printVar(e.Var, depth+1)
		p.printExp(e.Exp, depth+1)
	case *IfExp:
		fmt.Fprintln(p.w, "IfExp")
		p.printExp(e.Cond, depth+1)
		p.printExp(e.Then, depth+1)
		if e.Else != nil {
			p.printExp(e.Else, depth+1)
		}
	case *WhileExp:
		fmt.Fprintln(p.w, "WhileExp")
		p.printExp(e.Cond, depth+1)
		p.printExp(e.Body, depth+1)
	case *ForExp:
		fmt.Fprintf(p.w, "ForExp %s escape=%v\n", p.name(e.Var), e.Escape)
		p.printExp(e.Lo, depth+1)
		p.printExp(e.Hi, depth+1)
		p.printExp(e.Body, depth+1)
	case *BreakExp:
		fmt.Fprintln(p.w, "BreakExp")
	case *LetExp:
		fmt.Fprintln(p.w, "LetExp")
		for _, dec := range e.Decs {
			p.printDec(dec, depth+1)
		}
		p.printExp(e.Body, depth+1)
	case *ArrayExp:
		fmt.Fprintf(p.w, "ArrayExp %s\n", p.name(e.Type))
		p.printExp(e.Size, depth+1)
		p.printExp(e.Init, depth+1)
	case *NewExp:
		fmt.Fprintf(p.w, "NewExp %s\n", p.name(e.Class))
	default:
		fmt.Fprintf(p.w, "unknown exp %T\n", exp)
	}
}

func (p *Printer) printVar(v Var, depth int) {
	p.indent(depth)
	switch vv := v.(type) {
	case *SimpleVar:
		fmt.Fprintf(p.w, "SimpleVar %s\n", p.name(vv.Sym))
	case *FieldVar:
		fmt.Fprintf(p.w, "FieldVar %s\n", p.name(vv.Field))
		p.printVar(vv.Var, depth+1)
	case *SubscriptVar:
		fmt.Fprintln(p.w, "SubscriptVar")
		p.printVar(vv.Var, depth+1)
		p.printExp(vv.Index, depth+1)
	}
}

func (p *Printer) printDec(dec Dec, depth int) {
	p.indent(depth)
	switch d := dec.(type) {
	case *FunctionDec:
		fmt.Fprintln(p.w, "FunctionDec")
		for _, fn := range d.Functions {
			p.printFunDec(fn, depth+1)
		}
	case *VarDec:
		fmt.Fprintf(p.w, "VarDec %s escape=%v\n", p.name(d.Name), d.Escape)
		p.printExp(d.Init, depth+1)
	case *TypeDec:
		fmt.Fprintln(p.w, "TypeDec")
		for _, item := range d.Types {
			p.indent(depth + 1)
			fmt.Fprintf(p.w, "Type %s\n", p.name(item.Name))
			p.printTy(item.Ty, depth+2)
		}
	case *ClassDec:
		if d.HasParent {
			fmt.Fprintf(p.w, "ClassDec %s extends %s\n", p.name(d.Name), p.name(d.Parent))
		} else {
			fmt.Fprintf(p.w, "ClassDec %s\n", p.name(d.Name))
		}
		for _, f := range d.Fields {
			p.printDec(f, depth+1)
		}
		for _, m := range d.Methods {
			p.printFunDec(m, depth+1)
		}
	}
}

func (p *Printer) printFunDec(fn *FunDec, depth int) {
	p.indent(depth)
	fmt.Fprintf(p.w, "FunDec %s(", p.name(fn.Name))
	for i, param := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s: %s", p.name(param.Name), p.name(param.Type))
	}
	fmt.Fprint(p.w, ")")
	if fn.HasResult {
		fmt.Fprintf(p.w, " : %s", p.name(fn.Result))
	}
	fmt.Fprintln(p.w)
	p.printExp(fn.Body, depth+1)
}

func (p *Printer) printTy(ty Ty, depth int) {
	p.indent(depth)
	switch t := ty.(type) {
	case *NameTy:
		fmt.Fprintf(p.w, "NameTy %s\n", p.name(t.Sym))
	case *RecordTy:
		fmt.Fprintln(p.w, "RecordTy")
		for _, f := range t.Fields {
			p.indent(depth + 1)
			fmt.Fprintf(p.w, "Field %s: %s\n", p.name(f.Name), p.name(f.Type))
		}
	case *ArrayTy:
		fmt.Fprintf(p.w, "ArrayTy of %s\n", p.name(t.Sym))
	}
}
