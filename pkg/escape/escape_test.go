package escape

import (
	"testing"

	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/lexer"
	"github.com/raymyers/tiger-go/pkg/parser"
	"github.com/raymyers/tiger-go/pkg/symbol"
)

func parse(t *testing.T, input string) ast.Exp {
	t.Helper()
	p := parser.New(lexer.New(input), symbol.NewStrings())
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return program
}

func TestEscapeFromNestedFunction(t *testing.T) {
	program := parse(t, `let
		var a := 1
		var b := 2
		function f(): int = a
	in f() + b end`)
	FindEscapes(program)

	let := program.(*ast.LetExp)
	a := let.Decs[0].(*ast.VarDec)
	b := let.Decs[1].(*ast.VarDec)
	if !a.Escape {
		t.Error("a is read from a nested function and must escape")
	}
	if b.Escape {
		t.Error("b is only used at its own level and must not escape")
	}
}

func TestParamEscape(t *testing.T) {
	program := parse(t, `let
		function outer(x: int, y: int): int =
			let function inner(): int = x
			in inner() + y end
	in outer(1, 2) end`)
	FindEscapes(program)

	let := program.(*ast.LetExp)
	outer := let.Decs[0].(*ast.FunctionDec).Functions[0]
	if !outer.Params[0].Escape {
		t.Error("x is read from inner and must escape")
	}
	if outer.Params[1].Escape {
		t.Error("y stays at its own level and must not escape")
	}
}

func TestForVarEscape(t *testing.T) {
	program := parse(t, `let
		function g(): int = 0
	in
		for i := 1 to 10 do
			let function h(): int = i
			in printi(h()) end
	end`)
	FindEscapes(program)

	let := program.(*ast.LetExp)
	loop := let.Body.(*ast.ForExp)
	if !loop.Escape {
		t.Error("loop variable referenced from a nested function must escape")
	}
}

func TestShadowingKeepsOuterEscape(t *testing.T) {
	program := parse(t, `let
		var a := 1
		function f(): int =
			let var a := 2
			in a end
	in f() end`)
	FindEscapes(program)

	let := program.(*ast.LetExp)
	outer := let.Decs[0].(*ast.VarDec)
	if outer.Escape {
		t.Error("outer a is shadowed inside f and never referenced across depth")
	}
}
