package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes IR trees in an s-expression form the Reader can parse
// back, one statement per line.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintStms writes each statement on its own line
func (p *Printer) PrintStms(stms []Stm) {
	for _, s := range stms {
		fmt.Fprintln(p.w, FormatStm(s))
	}
}

// PrintStm writes one statement
func (p *Printer) PrintStm(s Stm) {
	fmt.Fprintln(p.w, FormatStm(s))
}

// FormatStm renders a statement as a single-line s-expression
func FormatStm(s Stm) string {
	switch st := s.(type) {
	case *Move:
		return fmt.Sprintf("(MOVE %s %s)", FormatExp(st.Dst), FormatExp(st.Src))
	case *ExpStm:
		return fmt.Sprintf("(EXP %s)", FormatExp(st.Exp))
	case *Jump:
		labels := make([]string, len(st.Labels))
		for i, l := range st.Labels {
			labels[i] = string(l)
		}
		return fmt.Sprintf("(JUMP %s %s)", FormatExp(st.Exp), strings.Join(labels, " "))
	case *CJump:
		return fmt.Sprintf("(CJUMP %s %s %s %s %s)",
			st.Op, FormatExp(st.Left), FormatExp(st.Right), st.True, st.False)
	case *Seq:
		return fmt.Sprintf("(SEQ %s %s)", FormatStm(st.First), FormatStm(st.Second))
	case Label:
		return fmt.Sprintf("(LABEL %s)", st.Label)
	}
	panic(fmt.Sprintf("ir: cannot format statement %T", s))
}

// FormatExp renders an expression as an s-expression
func FormatExp(e Exp) string {
	switch ex := e.(type) {
	case Const:
		return fmt.Sprintf("(CONST %d)", ex.Value)
	case Name:
		return fmt.Sprintf("(NAME %s)", ex.Label)
	case Temp:
		return fmt.Sprintf("(TEMP %s)", ex.Temp)
	case *BinOp:
		return fmt.Sprintf("(BINOP %s %s %s)", ex.Op, FormatExp(ex.Left), FormatExp(ex.Right))
	case *Mem:
		return fmt.Sprintf("(MEM %s)", FormatExp(ex.Addr))
	case *Call:
		parts := []string{"(CALL", FormatExp(ex.Fn)}
		for _, arg := range ex.Args {
			parts = append(parts, FormatExp(arg))
		}
		return strings.Join(parts, " ") + ")"
	case *ESeq:
		return fmt.Sprintf("(ESEQ %s %s)", FormatStm(ex.Stm), FormatExp(ex.Exp))
	}
	panic(fmt.Sprintf("ir: cannot format expression %T", e))
}
