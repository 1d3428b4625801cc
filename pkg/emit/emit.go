// Package emit drives the back end over the translated fragments and
// serialises the result as one NASM-syntax file: string and vtable data,
// each function's allocated body between its prologue and epilogue, and
// the pointer-map table the runtime collector walks.
package emit

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/asmgen"
	"github.com/raymyers/tiger-go/pkg/canon"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/regalloc"
	"github.com/raymyers/tiger-go/pkg/temp"
)

const (
	// PointerMapName is the global symbol of the GC root table
	PointerMapName = "__tiger_pointer_map"
	// EndMarker terminates each table entry and the table itself
	EndMarker = "__tiger_pointer_map_end"
)

// Program compiles every fragment and writes the complete assembly
// listing. externs lists the runtime symbols to declare.
func Program(w io.Writer, fragments []frame.Fragment, externs []string) error {
	fmt.Fprintln(w, "global main")
	fmt.Fprintf(w, "global %s\n", PointerMapName)
	fmt.Fprintf(w, "global %s\n", EndMarker)
	for _, name := range externs {
		fmt.Fprintf(w, "extern %s\n", name)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "section .data")
	fmt.Fprintln(w, "    align 8")
	for _, fragment := range fragments {
		switch f := fragment.(type) {
		case *frame.StrFrag:
			fmt.Fprintf(w, "    %s: dq %d\n", f.Label, frame.StringTypeDescriptor)
			for i := 1; i < frame.DataLayoutWords; i++ {
				fmt.Fprintln(w, "    dq 0")
			}
			fmt.Fprintf(w, "    db %s, 0\n", toNasm(f.Value))
		case *frame.VTableFrag:
			fmt.Fprintf(w, "%s:\n", f.Label)
			for _, method := range f.Methods {
				fmt.Fprintf(w, "    dq %s\n", method)
			}
		}
	}

	fmt.Fprintln(w, "\nsection .text")
	var pointerMaps []frame.PointerMap
	for _, fragment := range fragments {
		fn, ok := fragment.(*frame.FunctionFrag)
		if !ok {
			continue
		}
		pointerMap, err := emitFunction(w, fn)
		if err != nil {
			return err
		}
		pointerMaps = append(pointerMaps, pointerMap)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", PointerMapName)
	for _, pointerMap := range pointerMaps {
		for _, entry := range pointerMap {
			fmt.Fprintf(w, "    dq %s\n", entry.Site)
			for _, root := range entry.Roots {
				fmt.Fprintf(w, "    dq %d\n", root)
			}
			fmt.Fprintf(w, "    dq %s\n", EndMarker)
		}
	}
	fmt.Fprintf(w, "    dq %s\n", EndMarker)
	fmt.Fprintf(w, "%s:\n", EndMarker)
	return nil
}

// emitFunction runs canonicalisation, selection and allocation for one
// function and writes the finished subroutine.
func emitFunction(w io.Writer, fn *frame.FunctionFrag) (frame.PointerMap, error) {
	stms := canon.Canonicalize(fn.Body)
	instrs := asmgen.New(fn.Frame).MunchStms(stms)
	instrs = fn.Frame.ProcEntryExit2(instrs)
	result := regalloc.Alloc(instrs, fn.Frame, fn.PointerTemps, fn.PointerFrameOffsets)
	subroutine := fn.Frame.ProcEntryExit3(result.Instrs)

	tempName := func(t temp.Temp) string {
		register, ok := result.Colors[t]
		if !ok {
			panic(fmt.Sprintf("emit: temp %s has no register", t))
		}
		return frame.TempNames[register]
	}

	fmt.Fprintln(w, subroutine.Prolog)
	for _, instr := range subroutine.Body {
		line := asm.Format(instr, tempName)
		if line == "" {
			continue
		}
		if _, isLabel := instr.(*asm.Label); isLabel {
			fmt.Fprintln(w, line)
		} else {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	fmt.Fprintf(w, "    %s\n", subroutine.Epilog)
	return result.PointerMap, nil
}

// toNasm renders a string literal as NASM db operands, splicing
// non-printable characters in as numeric bytes.
func toNasm(value string) string {
	var parts []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			parts = append(parts, "'"+run.String()+"'")
			run.Reset()
		}
	}
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch >= ' ' && ch <= '~' && ch != '\'' {
			run.WriteByte(ch)
			continue
		}
		flush()
		parts = append(parts, fmt.Sprintf("%d", ch))
	}
	flush()
	if len(parts) == 0 {
		return "''"
	}
	return strings.Join(parts, ", ")
}
