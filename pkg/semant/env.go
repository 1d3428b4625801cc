package semant

import (
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/translate"
	"github.com/raymyers/tiger-go/pkg/types"
)

// EnvEntry is a value-environment binding: a variable or a function.
type EnvEntry interface {
	implEnvEntry()
}

// VarEntry binds a variable to its home and type. Loop variables are not
// assignable.
type VarEntry struct {
	Access     translate.Access
	Ty         types.Type
	Assignable bool
}

// FunEntry binds a function to its level, entry label and signature.
// External entries are runtime functions: C convention, no static link.
type FunEntry struct {
	Level    *translate.Level
	Label    temp.Label
	Formals  []types.Type
	Result   types.Type
	External bool
	Name     string
}

func (*VarEntry) implEnvEntry() {}
func (*FunEntry) implEnvEntry() {}

// Env holds the lexically scoped value and type environments.
type Env struct {
	strings *symbol.Strings
	venv    *symbol.Table[EnvEntry]
	tenv    *symbol.Table[types.Type]
}

// externalFunction describes one runtime library entry point.
type externalFunction struct {
	name    string
	formals []types.Type
	result  types.Type
}

// baseFunctions is the user-visible part of the runtime library.
var baseFunctions = []externalFunction{
	{"print", []types.Type{types.String{}}, types.Unit{}},
	{"printi", []types.Type{types.Int{}}, types.Unit{}},
	{"flush", nil, types.Unit{}},
	{"getChar", nil, types.String{}},
	{"ord", []types.Type{types.String{}}, types.Int{}},
	{"chr", []types.Type{types.Int{}}, types.String{}},
	{"size", []types.Type{types.String{}}, types.Int{}},
	{"substring", []types.Type{types.String{}, types.Int{}, types.Int{}}, types.String{}},
	{"concat", []types.Type{types.String{}, types.String{}}, types.String{}},
	{"not", []types.Type{types.Int{}}, types.Int{}},
	{"exit", []types.Type{types.Int{}}, types.Unit{}},
}

// runtimeInternal lists the entry points translation calls directly,
// without a venv binding.
var runtimeInternal = []string{
	"allocRecord",
	"allocArray",
	"initArray",
	"stringEqual",
	"stringCompare",
}

// ExternalFunctions returns every runtime symbol the emitted assembly
// references, for the extern directives of the output file.
func ExternalFunctions() []string {
	names := make([]string, 0, len(baseFunctions)+len(runtimeInternal))
	for _, fn := range baseFunctions {
		names = append(names, fn.name)
	}
	names = append(names, runtimeInternal...)
	return names
}

// NewEnv builds the base environment: the builtin types, the Object root
// class, and the runtime library functions.
func NewEnv(strings *symbol.Strings, outermost *translate.Level) *Env {
	env := &Env{
		strings: strings,
		venv:    symbol.NewTable[EnvEntry](),
		tenv:    symbol.NewTable[types.Type](),
	}

	env.tenv.Enter(strings.Symbol("int"), types.Int{})
	env.tenv.Enter(strings.Symbol("string"), types.String{})
	env.tenv.Enter(strings.Symbol("Object"), &types.Class{
		Name:        strings.Symbol("Object"),
		VtableLabel: temp.NamedLabel("__vtable_Object"),
		Unique:      types.NewUnique(),
	})

	for _, fn := range baseFunctions {
		env.venv.Enter(strings.Symbol(fn.name), &FunEntry{
			Level:    outermost,
			Label:    temp.NamedLabel(fn.name),
			Formals:  fn.formals,
			Result:   fn.result,
			External: true,
			Name:     fn.name,
		})
	}

	return env
}

// BeginScope opens a scope in both environments.
func (e *Env) BeginScope() {
	e.venv.BeginScope()
	e.tenv.BeginScope()
}

// EndScope closes the innermost scope of both environments.
func (e *Env) EndScope() {
	e.venv.EndScope()
	e.tenv.EndScope()
}
