package translate

import (
	"strings"
	"testing"

	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

func TestUnExOnConditionalMaterialises(t *testing.T) {
	temp.Reset()
	cond := RelOp(ir.Lt, IntLit(1), IntLit(2))
	exp := UnEx(cond)

	eseq, ok := exp.(*ir.ESeq)
	if !ok {
		t.Fatalf("conditional value must be an ESeq, got %T", exp)
	}
	text := ir.FormatStm(eseq.Stm)
	if !strings.Contains(text, "CJUMP LT") {
		t.Errorf("materialisation lost the comparison: %s", text)
	}
	if !strings.Contains(text, "(CONST 1)") || !strings.Contains(text, "(CONST 0)") {
		t.Errorf("materialisation must move 1 and 0: %s", text)
	}
}

func TestUnCxOnConstants(t *testing.T) {
	temp.Reset()
	always := UnCx(IntLit(1))("yes", "no")
	jump, ok := always.(*ir.Jump)
	if !ok || jump.Labels[0] != "yes" {
		t.Errorf("truthy constant must jump straight to the true label: %s", ir.FormatStm(always))
	}
	never := UnCx(IntLit(0))("yes", "no")
	jump, ok = never.(*ir.Jump)
	if !ok || jump.Labels[0] != "no" {
		t.Errorf("zero must jump straight to the false label: %s", ir.FormatStm(never))
	}
}

func TestStaticLinkWalk(t *testing.T) {
	temp.Reset()
	outer := Outermost()
	f := NewLevel(outer, temp.NamedLabel("f"), nil)
	g := NewLevel(f, temp.NamedLabel("g"), nil)

	// A frame-resident variable of f read from g follows one static link
	access := f.AllocLocal(true)
	exp := UnEx(SimpleVar(access, g))

	// Expect MEM(MEM(fp + sl_offset) + var_offset)
	outerMem, ok := exp.(*ir.Mem)
	if !ok {
		t.Fatalf("frame access must be a memory read, got %T", exp)
	}
	addr, ok := outerMem.Addr.(*ir.BinOp)
	if !ok {
		t.Fatal("frame access address must be base plus offset")
	}
	if _, ok := addr.Left.(*ir.Mem); !ok {
		t.Errorf("cross-level access must dereference the static link: %s", ir.FormatExp(exp))
	}

	// The same variable read from f itself uses the frame pointer
	direct := UnEx(SimpleVar(access, f))
	directAddr := direct.(*ir.Mem).Addr.(*ir.BinOp)
	if tmp, ok := directAddr.Left.(ir.Temp); !ok || tmp.Temp != frame.FP {
		t.Errorf("same-level access must use the frame pointer: %s", ir.FormatExp(direct))
	}
}

func TestForLoopShape(t *testing.T) {
	temp.Reset()
	level := NewLevel(Outermost(), temp.NamedLabel("f"), nil)
	access := level.AllocLocal(false)
	done := temp.NewLabel()
	loop := ForExp(access, level, IntLit(1), IntLit(5), Nx{Stm: &ir.ExpStm{Exp: ir.Const{Value: 0}}}, done)

	text := ir.FormatStm(UnNx(loop))
	if !strings.Contains(text, "CJUMP LE") {
		t.Errorf("entry guard missing: %s", text)
	}
	if !strings.Contains(text, "CJUMP LT") {
		t.Errorf("wrap-safe increment guard missing: %s", text)
	}
}

func TestStringLitHashCons(t *testing.T) {
	temp.Reset()
	tr := NewTranslator()
	a := UnEx(tr.StringLit("x"))
	b := UnEx(tr.StringLit("x"))
	c := UnEx(tr.StringLit("y"))

	if a.(ir.Name).Label != b.(ir.Name).Label {
		t.Error("identical literals must share a label")
	}
	if a.(ir.Name).Label == c.(ir.Name).Label {
		t.Error("distinct literals must not share a label")
	}
	if len(tr.Fragments()) != 2 {
		t.Errorf("expected 2 string fragments, got %d", len(tr.Fragments()))
	}
}

func TestArrayPerElementLoop(t *testing.T) {
	temp.Reset()
	tr := NewTranslator()
	arr := tr.ArrayExp(ir.Const{Value: frame.ArrayPtrTypeDescriptor}, IntLit(3), NilLit(), true)
	text := ir.FormatExp(UnEx(arr))
	if !strings.Contains(text, "allocArray") {
		t.Errorf("array creation must call the allocator: %s", text)
	}
	if strings.Contains(text, "initArray") {
		t.Errorf("reference elements must not share one initialiser evaluation: %s", text)
	}
	if !strings.Contains(text, "CJUMP LT") {
		t.Errorf("per-element fill loop missing: %s", text)
	}

	scalar := tr.ArrayExp(ir.Const{Value: frame.ArrayTypeDescriptor}, IntLit(3), IntLit(0), false)
	if !strings.Contains(ir.FormatExp(UnEx(scalar)), "initArray") {
		t.Error("value elements must use the runtime fill")
	}
}
