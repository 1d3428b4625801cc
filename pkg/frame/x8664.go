package frame

import (
	"fmt"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// The sixteen x86-64 integer registers as precolored temps. Their values
// must stay below the temp package's reserved range.
const (
	RAX temp.Temp = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// TempNames maps the precolored temps to their NASM spellings
var TempNames = map[temp.Temp]string{
	RAX: "rax", RBX: "rbx", RCX: "rcx", RDX: "rdx",
	RSI: "rsi", RDI: "rdi", RBP: "rbp", RSP: "rsp",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

// ArgRegs are the SysV integer argument registers in order
var ArgRegs = []temp.Temp{RDI, RSI, RDX, RCX, R8, R9}

// CalleeSaves are preserved across calls. RBP is also callee-save but is
// claimed by the prologue as the frame pointer.
var CalleeSaves = []temp.Temp{RBX, R12, R13, R14, R15}

// CallerSaves are clobbered by calls
var CallerSaves = []temp.Temp{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// Allocatable is the colour set K: every register except the stack and
// frame pointers. Caller-saves come first so short-lived values prefer
// them.
var Allocatable = append(append([]temp.Temp{}, CallerSaves...), CalleeSaves...)

// RV is the return-value register; FP and SP are the frame and stack
// pointers.
const (
	RV = RAX
	FP = RBP
	SP = RSP
)

// X8664 is the x86-64 SysV activation record.
type X8664 struct {
	name      temp.Label
	formals   []Access
	viewShift []ir.Stm
	offset    int64 // most recently allocated local offset (negative)
	callSites []temp.Label
}

// NewX8664 lays out a frame for a function whose formals (static link
// first) have the given escape flags. The first six formals arrive in the
// SysV argument registers, the rest in the caller's outgoing area.
func NewX8664(name temp.Label, formalEscapes []bool) *X8664 {
	f := &X8664{name: name}
	for i, escapes := range formalEscapes {
		if i < len(ArgRegs) {
			access := f.AllocLocal(escapes)
			f.formals = append(f.formals, access)
			f.viewShift = append(f.viewShift, &ir.Move{
				Dst: Exp(access, ir.Temp{Temp: FP}),
				Src: ir.Temp{Temp: ArgRegs[i]},
			})
		} else {
			// Already in the caller's frame: return address and saved
			// frame pointer sit between it and our frame pointer.
			offset := int64(2*WordSize + (i-len(ArgRegs))*WordSize)
			f.formals = append(f.formals, InFrame{Offset: offset})
		}
	}
	return f
}

// Name returns the function's entry label
func (f *X8664) Name() temp.Label {
	return f.name
}

// Formals returns the accesses of the formals, static link first
func (f *X8664) Formals() []Access {
	return f.formals
}

// AllocLocal picks a home for a new local: a fresh temp, or an 8-byte
// frame slot when the variable escapes.
func (f *X8664) AllocLocal(escapes bool) Access {
	if !escapes {
		return InReg{Temp: temp.NewTemp()}
	}
	f.offset -= WordSize
	return InFrame{Offset: f.offset}
}

// AllocSpillSlot reserves a frame slot for a spilled temp
func (f *X8664) AllocSpillSlot() int64 {
	f.offset -= WordSize
	return f.offset
}

// RecordCallSite registers the label immediately preceding a call
func (f *X8664) RecordCallSite(label temp.Label) {
	f.callSites = append(f.callSites, label)
}

// CallSites lists the registered call-site labels
func (f *X8664) CallSites() []temp.Label {
	return f.callSites
}

// ExternalCall builds a call to a runtime function using the C calling
// convention.
func ExternalCall(name string, args []ir.Exp) ir.Exp {
	return &ir.Call{
		Fn:   ir.Name{Label: temp.NamedLabel(name)},
		Args: args,
	}
}

// ProcEntryExit1 wraps body with the view shift and with callee-save
// save/restore moves through fresh temps, so the colourer spills a
// callee-save only when register pressure demands it.
func (f *X8664) ProcEntryExit1(body ir.Stm) ir.Stm {
	var entry []ir.Stm
	var exit []ir.Stm

	saved := make([]temp.Temp, len(CalleeSaves))
	for i, reg := range CalleeSaves {
		saved[i] = temp.NewTemp()
		entry = append(entry, &ir.Move{
			Dst: ir.Temp{Temp: saved[i]},
			Src: ir.Temp{Temp: reg},
		})
	}
	entry = append(entry, f.viewShift...)
	for i, reg := range CalleeSaves {
		exit = append(exit, &ir.Move{
			Dst: ir.Temp{Temp: reg},
			Src: ir.Temp{Temp: saved[i]},
		})
	}

	stms := append(entry, body)
	stms = append(stms, exit...)
	return ir.SeqAll(stms...)
}

// ProcEntryExit2 appends a sink instruction that mentions the return
// value, the stack pointer and every callee-save, keeping them live to
// the end of the body.
func (f *X8664) ProcEntryExit2(instrs []asm.Instr) []asm.Instr {
	sink := append([]temp.Temp{RV, SP}, CalleeSaves...)
	return append(instrs, &asm.Oper{
		Assem: "",
		Src:   sink,
	})
}

// ProcEntryExit3 computes the final frame size (a multiple of 16 so
// every call site sees an aligned stack) and produces the prologue and
// epilogue around the allocated body.
func (f *X8664) ProcEntryExit3(instrs []asm.Instr) Subroutine {
	size := -f.offset
	if rem := size % 16; rem != 0 {
		size += 16 - rem
	}
	prolog := fmt.Sprintf("%s:\n    push rbp\n    mov rbp, rsp", f.name)
	if size > 0 {
		prolog += fmt.Sprintf("\n    sub rsp, %d", size)
	}
	return Subroutine{
		Prolog: prolog,
		Body:   instrs,
		Epilog: "leave\n    ret",
	}
}

// EncodeRoot encodes a pointer-map root for the runtime: registers by
// their index in this package's register order (RAX=0, RBX=1, ... R15=15),
// frame slots by their offset from the frame pointer.
func EncodeRoot(register temp.Temp, spilled bool, offset int64) int64 {
	if spilled {
		return offset
	}
	return int64(register)
}
