// Package asm defines the abstract machine instructions produced by
// instruction selection. Instructions carry NASM-syntax templates with
// positional holes ('d0, 's0, ...) that are substituted with concrete
// register names after allocation. Moves are a distinct shape so the
// allocator can coalesce them.
package asm

import (
	"fmt"
	"strings"

	"github.com/raymyers/tiger-go/pkg/temp"
)

// Instr is the interface for abstract instructions
type Instr interface {
	implInstr()
}

// Oper is any instruction that is not a plain register move or a label
type Oper struct {
	Assem string
	Dst   []temp.Temp
	Src   []temp.Temp
	Jump  []temp.Label // nil when control falls through
}

// Move copies one temp to another; eligible for coalescing
type Move struct {
	Assem string
	Dst   temp.Temp
	Src   temp.Temp
}

// Label marks a jump target in the instruction stream
type Label struct {
	Assem string
	Label temp.Label
}

func (*Oper) implInstr()  {}
func (*Move) implInstr()  {}
func (*Label) implInstr() {}

// Format instantiates an instruction's template. tempName maps each temp
// to its final register name or frame-slot operand.
func Format(instr Instr, tempName func(temp.Temp) string) string {
	switch in := instr.(type) {
	case *Oper:
		return substitute(in.Assem, in.Dst, in.Src, in.Jump, tempName)
	case *Move:
		return substitute(in.Assem, []temp.Temp{in.Dst}, []temp.Temp{in.Src}, nil, tempName)
	case *Label:
		return in.Assem
	}
	panic(fmt.Sprintf("asm: cannot format %T", instr))
}

// Defs returns the temps an instruction writes
func Defs(instr Instr) []temp.Temp {
	switch in := instr.(type) {
	case *Oper:
		return in.Dst
	case *Move:
		return []temp.Temp{in.Dst}
	}
	return nil
}

// Uses returns the temps an instruction reads
func Uses(instr Instr) []temp.Temp {
	switch in := instr.(type) {
	case *Oper:
		return in.Src
	case *Move:
		return []temp.Temp{in.Src}
	}
	return nil
}

// Jumps returns an instruction's explicit successor labels
func Jumps(instr Instr) []temp.Label {
	if op, ok := instr.(*Oper); ok {
		return op.Jump
	}
	return nil
}

func substitute(assem string, dst, src []temp.Temp, jumps []temp.Label, tempName func(temp.Temp) string) string {
	var sb strings.Builder
	for i := 0; i < len(assem); i++ {
		ch := assem[i]
		if ch != '\'' || i+2 > len(assem) {
			sb.WriteByte(ch)
			continue
		}
		kind := assem[i+1]
		j := i + 2
		start := j
		for j < len(assem) && assem[j] >= '0' && assem[j] <= '9' {
			j++
		}
		if start == j {
			sb.WriteByte(ch)
			continue
		}
		index := 0
		for _, d := range assem[start:j] {
			index = index*10 + int(d-'0')
		}
		switch kind {
		case 'd':
			if index >= len(dst) {
				panic(fmt.Sprintf("asm: template %q references missing destination %d", assem, index))
			}
			sb.WriteString(tempName(dst[index]))
		case 's':
			if index >= len(src) {
				panic(fmt.Sprintf("asm: template %q references missing source %d", assem, index))
			}
			sb.WriteString(tempName(src[index]))
		case 'j':
			if index >= len(jumps) {
				panic(fmt.Sprintf("asm: template %q references missing jump %d", assem, index))
			}
			sb.WriteString(string(jumps[index]))
		default:
			sb.WriteByte(ch)
			continue
		}
		i = j - 1
	}
	return sb.String()
}
