package semant

import (
	"strings"
	"testing"

	"github.com/raymyers/tiger-go/pkg/escape"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/lexer"
	"github.com/raymyers/tiger-go/pkg/parser"
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/types"
)

func analyze(t *testing.T, input string) ([]frame.Fragment, error) {
	t.Helper()
	temp.Reset()
	types.ResetUniques()
	syms := symbol.NewStrings()
	p := parser.New(lexer.New(input), syms)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	escape.FindEscapes(program)
	return New(syms).Analyze(program)
}

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"undefined variable", `x + 1`, `undefined variable`},
		{"undefined function", `f(1)`, `undefined function`},
		{"undefined type", `let var a: point := nil in 0 end`, `undefined type`},
		{"type mismatch arith", `1 + "two"`, `type mismatch`},
		{"type mismatch if branches", `if 1 then 2 else "three"`, `type mismatch`},
		{"condition not int", `if "yes" then 1 else 2`, `type mismatch`},
		{"arity mismatch", `let function f(a: int): int = a in f(1, 2) end`, `wrong number of arguments`},
		{"argument type", `let function f(a: int): int = a in f("one") end`, `type mismatch`},
		{"duplicate function", `let function f(): int = 1 function f(): int = 2 in f() end`, `duplicate declaration`},
		{"duplicate type", `let type t = int type t = string in 0 end`, `duplicate declaration`},
		{"break outside loop", `break`, `break outside of loop`},
		{"assign to loop var", `for i := 1 to 3 do i := 2`, `loop variable`},
		{"nil needs type", `let var a := nil in 0 end`, `nil requires an explicit type`},
		{"alias cycle", `let type a = b type b = a in 0 end`, `recursive type cycle`},
		{"while body value", `while 1 do 2`, `type mismatch`},
		{"record field order", `let type p = {x: int, y: int} in p{y = 1, x = 2} end`, `expected field`},
		{"subscript non-array", `let var a := 1 in a[0] end`, `subscript of non-array`},
		{"field of non-record", `let var a := 1 in a.x end`, `field access on non-record`},
		{"method on non-class", `let var a := 1 in a.run() end`, `method call on non-class`},
		{"class field outside self", `let class C { var x := 1 } var c := new C in c.x end`, `self is only defined inside a class method`},
		{"comparison on records", `let type p = {x: int} var a := p{x = 1} in a < a end`, `only support = and <>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := analyze(t, tc.input)
			if err == nil {
				t.Fatalf("expected error containing %q, analysis succeeded", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestWellTypedPrograms(t *testing.T) {
	inputs := []string{
		`print("hello\n")`,
		`let var a := 1 + 2 * 3 in printi(a) end`,
		`let function fact(n: int): int = if n = 0 then 1 else n * fact(n - 1) in printi(fact(10)) end`,
		`let type intArray = array of int var row := intArray[10] of 0 in printi(row[3]) end`,
		`for i := 1 to 5 do print(chr(ord("0") + i))`,
		`let type list = {head: int, tail: list} var l := list{head = 1, tail = nil} in printi(l.head) end`,
		`while 1 do break`,
		`let var s := concat("a", "b") in print(s) end`,
		`if "a" = "b" then print("eq") else print("ne")`,
	}
	for _, input := range inputs {
		if _, err := analyze(t, input); err != nil {
			t.Errorf("%q: unexpected error: %v", input, err)
		}
	}
}

func TestFragmentsProduced(t *testing.T) {
	fragments, err := analyze(t, `let
		function double(n: int): int = n + n
	in printi(double(21)) end`)
	if err != nil {
		t.Fatal(err)
	}
	functions := 0
	for _, f := range fragments {
		if _, ok := f.(*frame.FunctionFrag); ok {
			functions++
		}
	}
	// double and main
	if functions != 2 {
		t.Errorf("expected 2 function fragments, got %d", functions)
	}
}

func TestStringLiteralsHashConsed(t *testing.T) {
	fragments, err := analyze(t, `(print("same"); print("same"); print("other"))`)
	if err != nil {
		t.Fatal(err)
	}
	var strs []*frame.StrFrag
	for _, f := range fragments {
		if s, ok := f.(*frame.StrFrag); ok {
			strs = append(strs, s)
		}
	}
	if len(strs) != 2 {
		t.Fatalf("identical literals must share a fragment: got %d fragments", len(strs))
	}
	if strs[0].Label == strs[1].Label {
		t.Error("distinct literals must not share a label")
	}
}

func TestClassFragments(t *testing.T) {
	fragments, err := analyze(t, `let
		class Animal {
			var sound := "..."
			method speak() = print(self.sound)
			method legs(): int = 4
		}
		class Dog extends Animal {
			method speak() = print("woof")
		}
		var d := new Dog
	in d.speak() end`)
	if err != nil {
		t.Fatal(err)
	}

	vtables := make(map[temp.Label]*frame.VTableFrag)
	for _, f := range fragments {
		if v, ok := f.(*frame.VTableFrag); ok {
			vtables[v.Label] = v
		}
	}
	animal := vtables["__vtable_Animal"]
	dog := vtables["__vtable_Dog"]
	if animal == nil || dog == nil {
		t.Fatalf("missing vtable fragments: %v", vtables)
	}
	if len(animal.Methods) != 2 || len(dog.Methods) != 2 {
		t.Fatalf("vtable slot counts wrong: Animal %d, Dog %d", len(animal.Methods), len(dog.Methods))
	}
	// Dog overrides slot 0 and inherits slot 1
	if dog.Methods[0] != "__Dog_speak" {
		t.Errorf("Dog slot 0 = %s, want __Dog_speak", dog.Methods[0])
	}
	if dog.Methods[1] != animal.Methods[1] {
		t.Errorf("Dog must inherit legs from Animal: %s vs %s", dog.Methods[1], animal.Methods[1])
	}
	if animal.Methods[0] != "__Animal_speak" {
		t.Errorf("Animal slot 0 = %s, want __Animal_speak", animal.Methods[0])
	}
}

func TestPointerTempsTracked(t *testing.T) {
	fragments, err := analyze(t, `let
		type point = {x: int, y: int}
		var p := point{x = 1, y = 2}
	in printi(p.x) end`)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fragments {
		fn, ok := f.(*frame.FunctionFrag)
		if !ok {
			continue
		}
		if len(fn.PointerTemps) == 0 {
			t.Error("record allocation must register a pointer temp")
		}
	}
}

func TestSubclassAssignment(t *testing.T) {
	_, err := analyze(t, `let
		class Animal { var sound := "" }
		class Dog extends Animal { }
		var a: Animal := new Dog
	in 0 end`)
	if err != nil {
		t.Errorf("subclass must be assignable to superclass: %v", err)
	}

	_, err = analyze(t, `let
		class Animal { var sound := "" }
		class Dog extends Animal { }
		var d: Dog := new Animal
	in 0 end`)
	if err == nil {
		t.Error("superclass must not be assignable to subclass")
	}
}

func TestMutuallyRecursiveTypes(t *testing.T) {
	_, err := analyze(t, `let
		type tree = {value: int, children: treelist}
		type treelist = {head: tree, tail: treelist}
		var t: tree := nil
	in 0 end`)
	if err != nil {
		t.Errorf("mutually recursive records must type-check: %v", err)
	}
}
