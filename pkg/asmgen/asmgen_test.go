package asmgen

import (
	"strings"
	"testing"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

func munch(t *testing.T, stms ...ir.Stm) ([]asm.Instr, frame.Frame) {
	t.Helper()
	f := frame.NewX8664(temp.NamedLabel("f"), []bool{true})
	return New(f).MunchStms(stms), f
}

func templates(instrs []asm.Instr) []string {
	var result []string
	for _, instr := range instrs {
		switch in := instr.(type) {
		case *asm.Oper:
			result = append(result, in.Assem)
		case *asm.Move:
			result = append(result, in.Assem)
		case *asm.Label:
			result = append(result, in.Assem)
		}
	}
	return result
}

func TestMunchConstMove(t *testing.T) {
	temp.Reset()
	r := temp.NewTemp()
	instrs, _ := munch(t, &ir.Move{Dst: ir.Temp{Temp: r}, Src: ir.Const{Value: 7}})
	if len(instrs) != 1 {
		t.Fatalf("expected one instruction, got %v", templates(instrs))
	}
	oper := instrs[0].(*asm.Oper)
	if oper.Assem != "mov 'd0, 7" {
		t.Errorf("template %q", oper.Assem)
	}
	if len(oper.Dst) != 1 || oper.Dst[0] != r {
		t.Errorf("destination %v", oper.Dst)
	}
}

func TestMunchDisplacementLoad(t *testing.T) {
	temp.Reset()
	r := temp.NewTemp()
	instrs, _ := munch(t, &ir.Move{
		Dst: ir.Temp{Temp: r},
		Src: &ir.Mem{Addr: &ir.BinOp{
			Op:    ir.Plus,
			Left:  ir.Temp{Temp: frame.FP},
			Right: ir.Const{Value: -16},
		}},
	})
	if len(instrs) != 1 {
		t.Fatalf("displacement load must be one instruction, got %v", templates(instrs))
	}
	oper := instrs[0].(*asm.Oper)
	if oper.Assem != "mov 'd0, ['s0 - 16]" {
		t.Errorf("template %q", oper.Assem)
	}
	if len(oper.Src) != 1 || oper.Src[0] != frame.FP {
		t.Errorf("sources %v", oper.Src)
	}
}

func TestMunchStoreImmediate(t *testing.T) {
	temp.Reset()
	instrs, _ := munch(t, &ir.Move{
		Dst: &ir.Mem{Addr: &ir.BinOp{
			Op:    ir.Plus,
			Left:  ir.Temp{Temp: frame.FP},
			Right: ir.Const{Value: 24},
		}},
		Src: ir.Const{Value: 5},
	})
	if len(instrs) != 1 {
		t.Fatalf("immediate store must be one instruction, got %v", templates(instrs))
	}
	if got := instrs[0].(*asm.Oper).Assem; got != "mov qword ['s0 + 24], 5" {
		t.Errorf("template %q", got)
	}
}

func TestMunchCJump(t *testing.T) {
	temp.Reset()
	a := temp.NewTemp()
	instrs, _ := munch(t, &ir.CJump{
		Op:    ir.Lt,
		Left:  ir.Temp{Temp: a},
		Right: ir.Const{Value: 10},
		True:  "l1",
		False: "l2",
	})
	if len(instrs) != 2 {
		t.Fatalf("expected cmp and jcc, got %v", templates(instrs))
	}
	cmp := instrs[0].(*asm.Oper)
	if cmp.Assem != "cmp 's0, 10" {
		t.Errorf("cmp template %q", cmp.Assem)
	}
	jcc := instrs[1].(*asm.Oper)
	if jcc.Assem != "jl 'j0" {
		t.Errorf("jcc template %q", jcc.Assem)
	}
	if len(jcc.Jump) != 2 || jcc.Jump[0] != "l1" || jcc.Jump[1] != "l2" {
		t.Errorf("jcc successors %v", jcc.Jump)
	}
}

func TestMunchCallShape(t *testing.T) {
	temp.Reset()
	instrs, f := munch(t, &ir.ExpStm{
		Exp: &ir.Call{
			Fn:   ir.Name{Label: temp.NamedLabel("printi")},
			Args: []ir.Exp{ir.Const{Value: 3}},
		},
	})

	sites := f.CallSites()
	if len(sites) != 1 {
		t.Fatalf("expected one recorded call site, got %d", len(sites))
	}

	var callIdx, labelIdx = -1, -1
	for i, instr := range instrs {
		switch in := instr.(type) {
		case *asm.Oper:
			if strings.HasPrefix(in.Assem, "call ") {
				callIdx = i
			}
		case *asm.Label:
			if in.Label == sites[0] {
				labelIdx = i
			}
		}
	}
	if callIdx < 0 || labelIdx < 0 {
		t.Fatalf("call or site label missing: %v", templates(instrs))
	}
	if labelIdx != callIdx-1 {
		t.Errorf("site label must immediately precede the call (label %d, call %d)", labelIdx, callIdx)
	}

	call := instrs[callIdx].(*asm.Oper)
	clobbered := make(map[temp.Temp]bool)
	for _, d := range call.Dst {
		clobbered[d] = true
	}
	for _, reg := range frame.CallerSaves {
		if !clobbered[reg] {
			t.Errorf("call must clobber %s", frame.TempNames[reg])
		}
	}
	used := make(map[temp.Temp]bool)
	for _, s := range call.Src {
		used[s] = true
	}
	if !used[frame.RDI] {
		t.Error("the first argument register must be live at the call")
	}
}

func TestMunchDivUsesRaxRdx(t *testing.T) {
	temp.Reset()
	r := temp.NewTemp()
	instrs, _ := munch(t, &ir.Move{
		Dst: ir.Temp{Temp: r},
		Src: &ir.BinOp{Op: ir.Div, Left: ir.Const{Value: 10}, Right: ir.Const{Value: 3}},
	})
	var sawCqo, sawIdiv bool
	for _, instr := range instrs {
		if op, ok := instr.(*asm.Oper); ok {
			if op.Assem == "cqo" {
				sawCqo = true
			}
			if op.Assem == "idiv 's0" {
				sawIdiv = true
				defs := map[temp.Temp]bool{}
				for _, d := range op.Dst {
					defs[d] = true
				}
				if !defs[frame.RAX] || !defs[frame.RDX] {
					t.Error("idiv must define rax and rdx")
				}
			}
		}
	}
	if !sawCqo || !sawIdiv {
		t.Errorf("division must sign-extend and divide: %v", templates(instrs))
	}
}
