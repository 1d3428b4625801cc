// Package types defines the Tiger type model used by semantic analysis.
// Records, arrays and classes are nominal: each declaration site gets a
// unique id, and two structurally identical declarations are distinct
// types. Name is a forward reference resolved after a whole recursive
// declaration group has been entered.
package types

import (
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Unique identifies a record, array or class declaration site.
type Unique int64

var uniqueCount Unique

// NewUnique returns a fresh declaration-site id.
func NewUnique() Unique {
	uniqueCount++
	return uniqueCount
}

// ResetUniques rewinds the id counter at the start of a compilation.
func ResetUniques() {
	uniqueCount = 0
}

// Type is the interface implemented by all Tiger types.
type Type interface {
	implType()
}

// Int is the type of integer literals and arithmetic.
type Int struct{}

// String is the type of string literals.
type String struct{}

// Unit is the type of expressions with no value.
type Unit struct{}

// Nil is the type of the nil literal; it is compatible with every record
// and class type.
type Nil struct{}

// Field is a named, typed slot of a record or class. Offset is the byte
// offset of the slot from the start of the object.
type Field struct {
	Name   symbol.Symbol
	Type   Type
	Offset int64
}

// Record is a record type. Fields are laid out in declaration order.
type Record struct {
	Name   symbol.Symbol
	Fields []Field
	Unique Unique
}

// Array is an array type with a fixed element type.
type Array struct {
	Elem   Type
	Unique Unique
}

// Method describes one virtual-table slot of a class.
type Method struct {
	Name    symbol.Symbol
	Label   temp.Label
	Index   int
	Formals []Type
	Result  Type
}

// Class is a single-inheritance class type. Fields include the inherited
// fields of every ancestor, in inheritance order; Methods is the full
// vtable layout, with overridden slots replaced in place.
type Class struct {
	Name        symbol.Symbol
	Parent      *Class
	Fields      []Field
	Methods     []Method
	VtableLabel temp.Label
	Unique      Unique
}

// Name is a forward type reference. Ty is nil until the declaration group
// containing it has been processed.
type Name struct {
	Sym symbol.Symbol
	Ty  Type
}

func (Int) implType()    {}
func (String) implType() {}
func (Unit) implType()   {}
func (Nil) implType()    {}
func (*Record) implType() {}
func (*Array) implType()  {}
func (*Class) implType()  {}
func (*Name) implType()   {}

// Actual resolves chains of Name references to the underlying type.
func Actual(t Type) Type {
	for {
		name, ok := t.(*Name)
		if !ok {
			return t
		}
		if name.Ty == nil {
			return name
		}
		t = name.Ty
	}
}

// Equal reports whether a value of type b may be used where a is expected.
// Nil matches any record or class; a subclass may be used where an
// ancestor is expected.
func Equal(a, b Type) bool {
	a = Actual(a)
	b = Actual(b)
	switch at := a.(type) {
	case Int:
		_, ok := b.(Int)
		return ok
	case String:
		_, ok := b.(String)
		return ok
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Nil:
		switch b.(type) {
		case Nil, *Record, *Class:
			return true
		}
		return false
	case *Record:
		if _, ok := b.(Nil); ok {
			return true
		}
		if bt, ok := b.(*Record); ok {
			return at.Unique == bt.Unique
		}
		return false
	case *Array:
		if bt, ok := b.(*Array); ok {
			return at.Unique == bt.Unique
		}
		return false
	case *Class:
		if _, ok := b.(Nil); ok {
			return true
		}
		if bt, ok := b.(*Class); ok {
			return InheritsFrom(bt, at)
		}
		return false
	}
	return false
}

// InheritsFrom reports whether sub is ancestor itself or a descendant of it.
func InheritsFrom(sub, ancestor *Class) bool {
	for c := sub; c != nil; c = c.Parent {
		if c.Unique == ancestor.Unique {
			return true
		}
	}
	return false
}

// IsPointer reports whether values of t are pointers into the GC heap.
func IsPointer(t Type) bool {
	switch Actual(t).(type) {
	case String, *Record, *Array, *Class, Nil:
		return true
	}
	return false
}

// Describe renders t for diagnostics.
func Describe(strings *symbol.Strings, t Type) string {
	switch tt := Actual(t).(type) {
	case Int:
		return "int"
	case String:
		return "string"
	case Unit:
		return "unit"
	case Nil:
		return "nil"
	case *Record:
		return "record " + strings.Name(tt.Name)
	case *Array:
		return "array of " + Describe(strings, tt.Elem)
	case *Class:
		return "class " + strings.Name(tt.Name)
	case *Name:
		return strings.Name(tt.Sym)
	}
	return "unknown"
}
