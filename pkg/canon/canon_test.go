package canon

import (
	"strings"
	"testing"

	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// checkNoESeq walks an expression asserting canonical shape
func checkNoESeq(t *testing.T, e ir.Exp, topLevel bool) {
	t.Helper()
	switch ex := e.(type) {
	case *ir.ESeq:
		t.Errorf("ESeq survived canonicalisation: %s", ir.FormatExp(e))
	case *ir.BinOp:
		checkNoESeq(t, ex.Left, false)
		checkNoESeq(t, ex.Right, false)
	case *ir.Mem:
		checkNoESeq(t, ex.Addr, false)
	case *ir.Call:
		if !topLevel {
			t.Errorf("nested call survived canonicalisation: %s", ir.FormatExp(e))
		}
		checkNoESeq(t, ex.Fn, false)
		for _, arg := range ex.Args {
			checkNoESeq(t, arg, false)
		}
	}
}

func checkCanonical(t *testing.T, stms []ir.Stm) {
	t.Helper()
	for _, s := range stms {
		switch st := s.(type) {
		case *ir.Move:
			checkNoESeq(t, st.Dst, false)
			checkNoESeq(t, st.Src, true)
		case *ir.ExpStm:
			checkNoESeq(t, st.Exp, true)
		case *ir.Jump:
			checkNoESeq(t, st.Exp, false)
		case *ir.CJump:
			checkNoESeq(t, st.Left, false)
			checkNoESeq(t, st.Right, false)
		case *ir.Seq:
			t.Error("Seq survived linearisation")
		}
	}
}

func call(name string, args ...ir.Exp) *ir.Call {
	return &ir.Call{Fn: ir.Name{Label: temp.NamedLabel(name)}, Args: args}
}

func TestLinearizeRemovesESeq(t *testing.T) {
	temp.Reset()
	r := temp.NewTemp()
	stm := &ir.Move{
		Dst: ir.Temp{Temp: r},
		Src: &ir.ESeq{
			Stm: &ir.Move{Dst: ir.Temp{Temp: temp.NewTemp()}, Src: ir.Const{Value: 1}},
			Exp: &ir.BinOp{
				Op:   ir.Plus,
				Left: ir.Const{Value: 2},
				Right: &ir.ESeq{
					Stm: &ir.ExpStm{Exp: call("flush")},
					Exp: ir.Const{Value: 3},
				},
			},
		},
	}
	checkCanonical(t, Linearize(stm))
}

func TestLinearizeHoistsNestedCalls(t *testing.T) {
	temp.Reset()
	// print(chr(ord("0") + 1)) nests three calls
	stm := &ir.ExpStm{
		Exp: call("print",
			call("chr",
				&ir.BinOp{
					Op:    ir.Plus,
					Left:  call("ord", ir.Name{Label: temp.NamedLabel("l0")}),
					Right: ir.Const{Value: 1},
				},
			),
		),
	}
	stms := Linearize(stm)
	checkCanonical(t, stms)

	calls := 0
	for _, s := range stms {
		switch st := s.(type) {
		case *ir.Move:
			if _, ok := st.Src.(*ir.Call); ok {
				calls++
			}
		case *ir.ExpStm:
			if _, ok := st.Exp.(*ir.Call); ok {
				calls++
			}
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 top-level calls after hoisting, found %d", calls)
	}
}

func TestBasicBlockShape(t *testing.T) {
	temp.Reset()
	t1 := temp.NewLabel()
	t2 := temp.NewLabel()
	stm := ir.SeqAll(
		&ir.CJump{Op: ir.Lt, Left: ir.Const{Value: 1}, Right: ir.Const{Value: 2}, True: t1, False: t2},
		ir.Label{Label: t1},
		&ir.Move{Dst: ir.Temp{Temp: temp.NewTemp()}, Src: ir.Const{Value: 1}},
		ir.Label{Label: t2},
		&ir.Move{Dst: ir.Temp{Temp: temp.NewTemp()}, Src: ir.Const{Value: 2}},
	)
	blocks, _ := BasicBlocks(Linearize(stm))

	for i, block := range blocks {
		if len(block) < 2 {
			t.Fatalf("block %d too short: %v", i, block)
		}
		if _, ok := block[0].(ir.Label); !ok {
			t.Errorf("block %d does not begin with a label", i)
		}
		last := block[len(block)-1]
		switch last.(type) {
		case *ir.Jump, *ir.CJump:
		default:
			t.Errorf("block %d does not end with a jump: %T", i, last)
		}
		for _, s := range block[1 : len(block)-1] {
			switch s.(type) {
			case ir.Label, *ir.Jump, *ir.CJump:
				t.Errorf("block %d has a control statement in its middle", i)
			}
		}
	}
}

func TestTraceScheduleFallThrough(t *testing.T) {
	temp.Reset()
	body := temp.NewLabel()
	done := temp.NewLabel()
	test := temp.NewLabel()
	// A while-loop shape: test, conditional into body, loop back
	stm := ir.SeqAll(
		ir.Label{Label: test},
		&ir.CJump{Op: ir.Lt, Left: ir.Temp{Temp: temp.NewTemp()}, Right: ir.Const{Value: 10}, True: body, False: done},
		ir.Label{Label: body},
		&ir.ExpStm{Exp: call("flush")},
		ir.JumpTo(test),
		ir.Label{Label: done},
	)
	stms := Canonicalize(stm)
	checkCanonical(t, stms)

	// Every conditional's false branch must fall through to the very
	// next statement
	for i, s := range stms {
		cj, ok := s.(*ir.CJump)
		if !ok {
			continue
		}
		if i+1 >= len(stms) {
			t.Fatalf("conditional at the end of the schedule: %s", ir.FormatStm(s))
		}
		next, isLabel := stms[i+1].(ir.Label)
		if !isLabel || next.Label != cj.False {
			t.Errorf("false target of %s does not fall through to %s",
				ir.FormatStm(s), ir.FormatStm(stms[i+1]))
		}
	}
}

// Printing the canonical statement list, re-parsing it, and printing
// again must reproduce the same text.
func TestCanonicalRoundTrip(t *testing.T) {
	temp.Reset()
	body := temp.NewLabel()
	done := temp.NewLabel()
	test := temp.NewLabel()
	stm := ir.SeqAll(
		ir.Label{Label: test},
		&ir.CJump{Op: ir.Lt, Left: ir.Temp{Temp: temp.NewTemp()}, Right: ir.Const{Value: 10}, True: body, False: done},
		ir.Label{Label: body},
		&ir.Move{
			Dst: ir.Temp{Temp: temp.NewTemp()},
			Src: &ir.ESeq{
				Stm: &ir.ExpStm{Exp: call("flush")},
				Exp: call("ord", ir.Name{Label: temp.NamedLabel("l99")}),
			},
		},
		ir.JumpTo(test),
		ir.Label{Label: done},
	)
	stms := Canonicalize(stm)

	var first strings.Builder
	ir.NewPrinter(&first).PrintStms(stms)

	parsed, err := ir.NewReader(first.String()).ReadStms()
	if err != nil {
		t.Fatalf("canonical output failed to re-parse: %v", err)
	}
	var second strings.Builder
	ir.NewPrinter(&second).PrintStms(parsed)

	if first.String() != second.String() {
		t.Errorf("round trip changed the canonical list:\n--- printed\n%s--- reprinted\n%s",
			first.String(), second.String())
	}
}
