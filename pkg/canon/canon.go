// Package canon rewrites tree IR into a restricted shape: no ESeq, calls
// only as the right side of a top-level Move or the operand of an Exp
// statement, then partitions the statements into basic blocks and orders
// them into traces that maximise fall-through.
package canon

import (
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

func isNop(s ir.Stm) bool {
	if e, ok := s.(*ir.ExpStm); ok {
		_, isConst := e.Exp.(ir.Const)
		return isConst
	}
	return false
}

// seq chains two statements, dropping no-ops
func seq(a, b ir.Stm) ir.Stm {
	if isNop(a) {
		return b
	}
	if isNop(b) {
		return a
	}
	return &ir.Seq{First: a, Second: b}
}

// commute reports whether s and e can be reordered safely: s has no
// effect, or e is immune to any effect.
func commute(s ir.Stm, e ir.Exp) bool {
	if isNop(s) {
		return true
	}
	switch e.(type) {
	case ir.Name, ir.Const:
		return true
	}
	return false
}

// reorder pulls the side effects of a list of expressions out in front,
// leaving a clean expression list. Calls are materialised into fresh
// temps so no call stays nested inside another expression.
func reorder(exps []ir.Exp) (ir.Stm, []ir.Exp) {
	if len(exps) == 0 {
		return &ir.ExpStm{Exp: ir.Const{Value: 0}}, nil
	}
	s, e := doExp(exps[0])
	if call, ok := e.(*ir.Call); ok {
		t := temp.NewTemp()
		s = seq(s, &ir.Move{Dst: ir.Temp{Temp: t}, Src: call})
		e = ir.Temp{Temp: t}
	}
	rest, exps2 := reorder(exps[1:])
	if commute(rest, e) {
		return seq(s, rest), append([]ir.Exp{e}, exps2...)
	}
	t := temp.NewTemp()
	save := &ir.Move{Dst: ir.Temp{Temp: t}, Src: e}
	return seq(s, seq(save, rest)), append([]ir.Exp{ir.Temp{Temp: t}}, exps2...)
}

// doExp rewrites an expression into a side-effect statement and a pure
// expression.
func doExp(e ir.Exp) (ir.Stm, ir.Exp) {
	switch ex := e.(type) {
	case *ir.BinOp:
		s, exps := reorder([]ir.Exp{ex.Left, ex.Right})
		return s, &ir.BinOp{Op: ex.Op, Left: exps[0], Right: exps[1]}
	case *ir.Mem:
		s, exps := reorder([]ir.Exp{ex.Addr})
		return s, &ir.Mem{Addr: exps[0]}
	case *ir.ESeq:
		s := doStm(ex.Stm)
		s2, e2 := doExp(ex.Exp)
		return seq(s, s2), e2
	case *ir.Call:
		s, exps := reorder(append([]ir.Exp{ex.Fn}, ex.Args...))
		return s, &ir.Call{Fn: exps[0], Args: exps[1:]}
	default:
		return &ir.ExpStm{Exp: ir.Const{Value: 0}}, e
	}
}

// doStm rewrites a statement into canonical form
func doStm(s ir.Stm) ir.Stm {
	switch st := s.(type) {
	case *ir.Seq:
		return seq(doStm(st.First), doStm(st.Second))
	case *ir.Jump:
		s2, exps := reorder([]ir.Exp{st.Exp})
		return seq(s2, &ir.Jump{Exp: exps[0], Labels: st.Labels})
	case *ir.CJump:
		s2, exps := reorder([]ir.Exp{st.Left, st.Right})
		return seq(s2, &ir.CJump{
			Op: st.Op, Left: exps[0], Right: exps[1],
			True: st.True, False: st.False,
		})
	case *ir.Move:
		switch dst := st.Dst.(type) {
		case ir.Temp:
			if call, ok := st.Src.(*ir.Call); ok {
				s2, exps := reorder(append([]ir.Exp{call.Fn}, call.Args...))
				return seq(s2, &ir.Move{
					Dst: dst,
					Src: &ir.Call{Fn: exps[0], Args: exps[1:]},
				})
			}
			s2, exps := reorder([]ir.Exp{st.Src})
			return seq(s2, &ir.Move{Dst: dst, Src: exps[0]})
		case *ir.Mem:
			s2, exps := reorder([]ir.Exp{dst.Addr, st.Src})
			return seq(s2, &ir.Move{Dst: &ir.Mem{Addr: exps[0]}, Src: exps[1]})
		case *ir.ESeq:
			// Push the statement out of the destination
			return doStm(&ir.Seq{
				First:  dst.Stm,
				Second: &ir.Move{Dst: dst.Exp, Src: st.Src},
			})
		}
		panic("canon: move into unsupported destination")
	case *ir.ExpStm:
		if call, ok := st.Exp.(*ir.Call); ok {
			s2, exps := reorder(append([]ir.Exp{call.Fn}, call.Args...))
			return seq(s2, &ir.ExpStm{Exp: &ir.Call{Fn: exps[0], Args: exps[1:]}})
		}
		s2, exps := reorder([]ir.Exp{st.Exp})
		return seq(s2, &ir.ExpStm{Exp: exps[0]})
	default:
		return s
	}
}

// flatten appends the leaves of a Seq tree to list
func flatten(s ir.Stm, list []ir.Stm) []ir.Stm {
	if sq, ok := s.(*ir.Seq); ok {
		return flatten(sq.Second, flatten(sq.First, list))
	}
	if isNop(s) {
		return list
	}
	return append(list, s)
}

// Linearize removes every ESeq and hoists nested calls, producing a flat
// statement list.
func Linearize(stm ir.Stm) []ir.Stm {
	return flatten(doStm(stm), nil)
}

// BasicBlocks partitions a linear statement list into blocks, each
// beginning with a label and ending with exactly one jump. The returned
// done label names the epilogue block every exit jumps to.
func BasicBlocks(stms []ir.Stm) ([][]ir.Stm, temp.Label) {
	done := temp.NewLabel()
	var blocks [][]ir.Stm
	var current []ir.Stm

	endBlock := func(jump ir.Stm) {
		current = append(current, jump)
		blocks = append(blocks, current)
		current = nil
	}

	for _, s := range stms {
		if label, isLabel := s.(ir.Label); isLabel {
			if current != nil {
				// Fall into the label from the running block
				endBlock(ir.JumpTo(label.Label))
			}
			current = []ir.Stm{s}
			continue
		}
		if current == nil {
			current = []ir.Stm{ir.Label{Label: temp.NewLabel()}}
		}
		switch s.(type) {
		case *ir.Jump, *ir.CJump:
			endBlock(s)
		default:
			current = append(current, s)
		}
	}
	if current != nil {
		endBlock(ir.JumpTo(done))
	}
	return blocks, done
}

// TraceSchedule orders blocks so that the false branch of every CJump
// falls through where possible, inverting conditions or inserting a
// trampoline when it is not.
func TraceSchedule(blocks [][]ir.Stm, done temp.Label) []ir.Stm {
	byLabel := make(map[temp.Label][]ir.Stm, len(blocks))
	order := make([]temp.Label, 0, len(blocks))
	for _, b := range blocks {
		label := b[0].(ir.Label).Label
		byLabel[label] = b
		order = append(order, label)
	}
	scheduled := make(map[temp.Label]bool)
	var result []ir.Stm

	takeBlock := func(label temp.Label) []ir.Stm {
		if scheduled[label] {
			return nil
		}
		b, ok := byLabel[label]
		if !ok {
			return nil
		}
		scheduled[label] = true
		return b
	}

	for _, start := range order {
		block := takeBlock(start)
		for block != nil {
			body := block[:len(block)-1]
			last := block[len(block)-1]
			block = nil
			result = append(result, body...)

			switch jump := last.(type) {
			case *ir.Jump:
				if name, ok := jump.Exp.(ir.Name); ok && len(jump.Labels) == 1 {
					if next := takeBlock(name.Label); next != nil {
						// Fall through: the jump disappears
						block = next
						continue
					}
				}
				result = append(result, last)
			case *ir.CJump:
				if next := takeBlock(jump.False); next != nil {
					result = append(result, jump)
					block = next
					continue
				}
				if next := takeBlock(jump.True); next != nil {
					result = append(result, &ir.CJump{
						Op: jump.Op.Negate(), Left: jump.Left, Right: jump.Right,
						True: jump.False, False: jump.True,
					})
					block = next
					continue
				}
				// Neither target can follow: trampoline through a fresh
				// false label
				trampoline := temp.NewLabel()
				result = append(result,
					&ir.CJump{
						Op: jump.Op, Left: jump.Left, Right: jump.Right,
						True: jump.True, False: trampoline,
					},
					ir.Label{Label: trampoline},
					ir.JumpTo(jump.False),
				)
			default:
				result = append(result, last)
			}
		}
	}

	result = append(result, ir.Label{Label: done})
	return result
}

// Canonicalize runs the full pipeline over one function body.
func Canonicalize(stm ir.Stm) []ir.Stm {
	blocks, done := BasicBlocks(Linearize(stm))
	return TraceSchedule(blocks, done)
}
