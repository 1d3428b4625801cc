package types

import (
	"testing"

	"github.com/raymyers/tiger-go/pkg/symbol"
)

func TestPrimitiveEquality(t *testing.T) {
	if !Equal(Int{}, Int{}) {
		t.Error("int must equal int")
	}
	if Equal(Int{}, String{}) {
		t.Error("int must not equal string")
	}
	if !Equal(Unit{}, Unit{}) {
		t.Error("unit must equal unit")
	}
}

func TestRecordIdentityByUnique(t *testing.T) {
	syms := symbol.NewStrings()
	fields := []Field{{Name: syms.Symbol("x"), Type: Int{}}}
	a := &Record{Name: syms.Symbol("a"), Fields: fields, Unique: NewUnique()}
	b := &Record{Name: syms.Symbol("b"), Fields: fields, Unique: NewUnique()}

	if Equal(a, b) {
		t.Error("structurally identical records from different declarations must differ")
	}
	if !Equal(a, a) {
		t.Error("a record must equal itself")
	}
}

func TestNilCompatibility(t *testing.T) {
	rec := &Record{Unique: NewUnique()}
	if !Equal(rec, Nil{}) {
		t.Error("nil must be usable where a record is expected")
	}
	if Equal(Int{}, Nil{}) {
		t.Error("nil must not be usable where an int is expected")
	}
	arr := &Array{Elem: Int{}, Unique: NewUnique()}
	if Equal(arr, Nil{}) {
		t.Error("nil must not be usable where an array is expected")
	}
}

func TestNameResolution(t *testing.T) {
	syms := symbol.NewStrings()
	rec := &Record{Unique: NewUnique()}
	name := &Name{Sym: syms.Symbol("alias"), Ty: rec}
	alias := &Name{Sym: syms.Symbol("alias2"), Ty: name}

	if Actual(alias) != rec {
		t.Error("Actual must chase name chains to the record")
	}
	if !Equal(alias, rec) || !Equal(rec, alias) {
		t.Error("names must compare by their resolved targets")
	}
}

func TestSubclassCompatibility(t *testing.T) {
	syms := symbol.NewStrings()
	animal := &Class{Name: syms.Symbol("Animal"), Unique: NewUnique()}
	dog := &Class{Name: syms.Symbol("Dog"), Parent: animal, Unique: NewUnique()}
	cat := &Class{Name: syms.Symbol("Cat"), Parent: animal, Unique: NewUnique()}

	if !Equal(animal, dog) {
		t.Error("a Dog must be usable where an Animal is expected")
	}
	if Equal(dog, animal) {
		t.Error("an Animal must not be usable where a Dog is expected")
	}
	if Equal(dog, cat) {
		t.Error("sibling classes must be incompatible")
	}
	if !Equal(dog, Nil{}) {
		t.Error("nil must be usable where a class is expected")
	}
}

func TestIsPointer(t *testing.T) {
	if IsPointer(Int{}) || IsPointer(Unit{}) {
		t.Error("int and unit are not heap pointers")
	}
	if !IsPointer(String{}) {
		t.Error("strings are heap pointers")
	}
	if !IsPointer(&Record{Unique: NewUnique()}) {
		t.Error("records are heap pointers")
	}
	if !IsPointer(&Array{Elem: Int{}, Unique: NewUnique()}) {
		t.Error("arrays are heap pointers")
	}
}
