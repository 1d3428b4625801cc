// Package asmgen tiles canonical IR trees into abstract x86-64
// instructions by maximal munch. Templates are NASM syntax; operands are
// temps resolved after register allocation. Displacement addressing and
// immediates are used where the tree shape allows.
package asmgen

import (
	"fmt"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Codegen selects instructions for one function
type Codegen struct {
	frame  frame.Frame
	instrs []asm.Instr
}

// New creates a code generator for the given frame
func New(f frame.Frame) *Codegen {
	return &Codegen{frame: f}
}

// MunchStms tiles a canonical statement list and returns the selected
// instructions.
func (g *Codegen) MunchStms(stms []ir.Stm) []asm.Instr {
	for _, s := range stms {
		g.munchStm(s)
	}
	return g.instrs
}

func (g *Codegen) emit(i asm.Instr) {
	g.instrs = append(g.instrs, i)
}

var jumps = map[ir.RelOp]string{
	ir.Eq:  "je",
	ir.Ne:  "jne",
	ir.Lt:  "jl",
	ir.Le:  "jle",
	ir.Gt:  "jg",
	ir.Ge:  "jge",
	ir.Ult: "jb",
	ir.Ule: "jbe",
	ir.Ugt: "ja",
	ir.Uge: "jae",
}

func (g *Codegen) munchStm(s ir.Stm) {
	switch st := s.(type) {
	case ir.Label:
		g.emit(&asm.Label{
			Assem: fmt.Sprintf("%s:", st.Label),
			Label: st.Label,
		})

	case *ir.Jump:
		name, ok := st.Exp.(ir.Name)
		if !ok {
			panic("asmgen: computed jump reached the selector")
		}
		g.emit(&asm.Oper{
			Assem: "jmp 'j0",
			Jump:  []temp.Label{name.Label},
		})

	case *ir.CJump:
		left := g.munchExp(st.Left)
		if c, ok := st.Right.(ir.Const); ok && fitsImm32(c.Value) {
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("cmp 's0, %d", c.Value),
				Src:   []temp.Temp{left},
			})
		} else {
			right := g.munchExp(st.Right)
			g.emit(&asm.Oper{
				Assem: "cmp 's0, 's1",
				Src:   []temp.Temp{left, right},
			})
		}
		g.emit(&asm.Oper{
			Assem: jumps[st.Op] + " 'j0",
			Jump:  []temp.Label{st.True, st.False},
		})

	case *ir.Move:
		g.munchMove(st)

	case *ir.ExpStm:
		if call, ok := st.Exp.(*ir.Call); ok {
			g.munchCall(call)
			return
		}
		g.munchExp(st.Exp)

	default:
		panic(fmt.Sprintf("asmgen: non-canonical statement %T reached the selector", s))
	}
}

func (g *Codegen) munchMove(m *ir.Move) {
	switch dst := m.Dst.(type) {
	case ir.Temp:
		switch src := m.Src.(type) {
		case ir.Const:
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("mov 'd0, %d", src.Value),
				Dst:   []temp.Temp{dst.Temp},
			})
		case ir.Name:
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("mov 'd0, %s", src.Label),
				Dst:   []temp.Temp{dst.Temp},
			})
		case ir.Temp:
			g.emit(&asm.Move{
				Assem: "mov 'd0, 's0",
				Dst:   dst.Temp,
				Src:   src.Temp,
			})
		case *ir.Mem:
			operand, srcs := g.memOperand(src.Addr, 0)
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("mov 'd0, %s", operand),
				Dst:   []temp.Temp{dst.Temp},
				Src:   srcs,
			})
		case *ir.Call:
			g.munchCall(src)
			g.emit(&asm.Move{
				Assem: "mov 'd0, 's0",
				Dst:   dst.Temp,
				Src:   frame.RV,
			})
		default:
			value := g.munchExp(m.Src)
			g.emit(&asm.Move{
				Assem: "mov 'd0, 's0",
				Dst:   dst.Temp,
				Src:   value,
			})
		}

	case *ir.Mem:
		if c, ok := m.Src.(ir.Const); ok && fitsImm32(c.Value) {
			operand, srcs := g.memOperand(dst.Addr, 0)
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("mov qword %s, %d", operand, c.Value),
				Src:   srcs,
			})
			return
		}
		value := g.munchExp(m.Src)
		operand, srcs := g.memOperand(dst.Addr, 1)
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("mov %s, 's0", operand),
			Src:   append([]temp.Temp{value}, srcs...),
		})

	default:
		panic("asmgen: move into non-canonical destination")
	}
}

// memOperand tiles an address expression into a NASM memory operand.
// srcIndex is the position in the instruction's source list where the
// operand's temps begin.
func (g *Codegen) memOperand(addr ir.Exp, srcIndex int) (string, []temp.Temp) {
	if bin, ok := addr.(*ir.BinOp); ok && bin.Op == ir.Plus {
		if c, ok := bin.Right.(ir.Const); ok && fitsImm32(c.Value) {
			base := g.munchExp(bin.Left)
			return fmt.Sprintf("['s%d %s]", srcIndex, displacement(c.Value)), []temp.Temp{base}
		}
		if c, ok := bin.Left.(ir.Const); ok && fitsImm32(c.Value) {
			base := g.munchExp(bin.Right)
			return fmt.Sprintf("['s%d %s]", srcIndex, displacement(c.Value)), []temp.Temp{base}
		}
	}
	if c, ok := addr.(ir.Const); ok {
		return fmt.Sprintf("[%d]", c.Value), nil
	}
	base := g.munchExp(addr)
	return fmt.Sprintf("['s%d]", srcIndex), []temp.Temp{base}
}

func displacement(value int64) string {
	if value < 0 {
		return fmt.Sprintf("- %d", -value)
	}
	return fmt.Sprintf("+ %d", value)
}

func fitsImm32(value int64) bool {
	return value >= -(1<<31) && value < 1<<31
}

var twoAddressOps = map[ir.BinOpKind]string{
	ir.Plus:  "add",
	ir.Minus: "sub",
	ir.Mul:   "imul",
	ir.And:   "and",
	ir.Or:    "or",
	ir.Xor:   "xor",
}

var shiftOps = map[ir.BinOpKind]string{
	ir.LShift:  "shl",
	ir.RShift:  "shr",
	ir.ARShift: "sar",
}

// munchExp tiles an expression and returns the temp holding its value
func (g *Codegen) munchExp(e ir.Exp) temp.Temp {
	switch ex := e.(type) {
	case ir.Const:
		t := temp.NewTemp()
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("mov 'd0, %d", ex.Value),
			Dst:   []temp.Temp{t},
		})
		return t

	case ir.Name:
		t := temp.NewTemp()
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("mov 'd0, %s", ex.Label),
			Dst:   []temp.Temp{t},
		})
		return t

	case ir.Temp:
		return ex.Temp

	case *ir.Mem:
		t := temp.NewTemp()
		operand, srcs := g.memOperand(ex.Addr, 0)
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("mov 'd0, %s", operand),
			Dst:   []temp.Temp{t},
			Src:   srcs,
		})
		return t

	case *ir.BinOp:
		return g.munchBinOp(ex)

	case *ir.Call:
		panic("asmgen: nested call reached the selector")

	case *ir.ESeq:
		panic("asmgen: ESeq reached the selector")
	}
	panic(fmt.Sprintf("asmgen: unhandled expression %T", e))
}

func (g *Codegen) munchBinOp(b *ir.BinOp) temp.Temp {
	if b.Op == ir.Div {
		return g.munchDiv(b)
	}
	if op, ok := shiftOps[b.Op]; ok {
		return g.munchShift(op, b)
	}

	op := twoAddressOps[b.Op]
	t := temp.NewTemp()
	left := g.munchExp(b.Left)
	g.emit(&asm.Move{Assem: "mov 'd0, 's0", Dst: t, Src: left})

	if c, ok := b.Right.(ir.Const); ok && fitsImm32(c.Value) {
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("%s 'd0, %d", op, c.Value),
			Dst:   []temp.Temp{t},
			Src:   []temp.Temp{t},
		})
		return t
	}
	right := g.munchExp(b.Right)
	g.emit(&asm.Oper{
		Assem: fmt.Sprintf("%s 'd0, 's0", op),
		Dst:   []temp.Temp{t},
		Src:   []temp.Temp{right, t},
	})
	return t
}

// munchDiv uses the rax/rdx pair idiv requires
func (g *Codegen) munchDiv(b *ir.BinOp) temp.Temp {
	left := g.munchExp(b.Left)
	right := g.munchExp(b.Right)
	g.emit(&asm.Move{Assem: "mov 'd0, 's0", Dst: frame.RAX, Src: left})
	g.emit(&asm.Oper{
		Assem: "cqo",
		Dst:   []temp.Temp{frame.RDX},
		Src:   []temp.Temp{frame.RAX},
	})
	g.emit(&asm.Oper{
		Assem: "idiv 's0",
		Dst:   []temp.Temp{frame.RAX, frame.RDX},
		Src:   []temp.Temp{right, frame.RAX, frame.RDX},
	})
	t := temp.NewTemp()
	g.emit(&asm.Move{Assem: "mov 'd0, 's0", Dst: t, Src: frame.RAX})
	return t
}

// munchShift puts the count in cl as the ISA requires
func (g *Codegen) munchShift(op string, b *ir.BinOp) temp.Temp {
	t := temp.NewTemp()
	left := g.munchExp(b.Left)
	g.emit(&asm.Move{Assem: "mov 'd0, 's0", Dst: t, Src: left})
	if c, ok := b.Right.(ir.Const); ok && c.Value >= 0 && c.Value < 64 {
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("%s 'd0, %d", op, c.Value),
			Dst:   []temp.Temp{t},
			Src:   []temp.Temp{t},
		})
		return t
	}
	count := g.munchExp(b.Right)
	g.emit(&asm.Move{Assem: "mov 'd0, 's0", Dst: frame.RCX, Src: count})
	g.emit(&asm.Oper{
		Assem: fmt.Sprintf("%s 'd0, cl", op),
		Dst:   []temp.Temp{t},
		Src:   []temp.Temp{t, frame.RCX},
	})
	return t
}

// munchCall lowers a call: arguments into the SysV registers (extras
// pushed right to left), a fresh pointer-map label immediately before
// the call, and a clobber list naming every caller-save register. The
// result, if any, is read from rax by the caller of this function.
func (g *Codegen) munchCall(call *ir.Call) {
	if len(call.Args) > len(frame.ArgRegs) {
		g.munchStackArgs(call.Args[len(frame.ArgRegs):])
	}

	n := len(call.Args)
	if n > len(frame.ArgRegs) {
		n = len(frame.ArgRegs)
	}
	argTemps := make([]temp.Temp, n)
	for i := 0; i < n; i++ {
		argTemps[i] = g.munchExp(call.Args[i])
	}
	used := make([]temp.Temp, n)
	for i := 0; i < n; i++ {
		g.emit(&asm.Move{
			Assem: "mov 'd0, 's0",
			Dst:   frame.ArgRegs[i],
			Src:   argTemps[i],
		})
		used[i] = frame.ArgRegs[i]
	}

	site := temp.NewLabel()
	g.frame.RecordCallSite(site)
	g.emit(&asm.Label{Assem: fmt.Sprintf("%s:", site), Label: site})

	clobbers := append([]temp.Temp{}, frame.CallerSaves...)
	if name, ok := call.Fn.(ir.Name); ok {
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("call %s", name.Label),
			Dst:   clobbers,
			Src:   used,
		})
	} else {
		fn := g.munchExp(call.Fn)
		g.emit(&asm.Oper{
			Assem: "call 's0",
			Dst:   clobbers,
			Src:   append([]temp.Temp{fn}, used...),
		})
	}

	if extra := len(call.Args) - len(frame.ArgRegs); extra > 0 {
		adjust := int64(extra+extra%2) * frame.WordSize
		g.emit(&asm.Oper{
			Assem: fmt.Sprintf("add rsp, %d", adjust),
			Dst:   []temp.Temp{frame.RSP},
			Src:   []temp.Temp{frame.RSP},
		})
	}
}

// munchStackArgs pushes arguments beyond the sixth right to left,
// padding to keep the stack 16-byte aligned at the call.
func (g *Codegen) munchStackArgs(args []ir.Exp) {
	if len(args)%2 != 0 {
		g.emit(&asm.Oper{
			Assem: "sub rsp, 8",
			Dst:   []temp.Temp{frame.RSP},
			Src:   []temp.Temp{frame.RSP},
		})
	}
	for i := len(args) - 1; i >= 0; i-- {
		if c, ok := args[i].(ir.Const); ok && fitsImm32(c.Value) {
			g.emit(&asm.Oper{
				Assem: fmt.Sprintf("push %d", c.Value),
				Dst:   []temp.Temp{frame.RSP},
				Src:   []temp.Temp{frame.RSP},
			})
			continue
		}
		value := g.munchExp(args[i])
		g.emit(&asm.Oper{
			Assem: "push 's0",
			Dst:   []temp.Temp{frame.RSP},
			Src:   []temp.Temp{value, frame.RSP},
		})
	}
}
