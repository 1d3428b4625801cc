// Package diag defines positioned compiler diagnostics. A single Error
// kind carries the source position and a payload describing what went
// wrong; the driver renders it against the offending source line with a
// caret underline, colored when standard error is a terminal.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Pos is a location in the source file.
type Pos struct {
	Line   int // 1-based
	Column int // 1-based
	Length int // number of source characters the diagnostic covers
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Kind discriminates the diagnostic payload.
type Kind int

const (
	Lexical Kind = iota
	Syntactic
	Semantic
	IO
)

// Error is the one diagnostic type the compiler produces.
type Error struct {
	Kind Kind
	Pos  Pos
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Errorf builds a positioned diagnostic.
func Errorf(kind Kind, pos Pos, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Semantic subkind constructors. Keeping them here gives every analysis
// error one wording, so tests can match on it.

// UndefinedError reports an unknown identifier, type or field.
func UndefinedError(pos Pos, what, name string) *Error {
	return Errorf(Semantic, pos, "undefined %s %q", what, name)
}

// TypeMismatchError reports an expected/actual type conflict.
func TypeMismatchError(pos Pos, expected, actual string) *Error {
	return Errorf(Semantic, pos, "type mismatch: expected %s, found %s", expected, actual)
}

// ArityError reports a call with the wrong number of arguments.
func ArityError(pos Pos, name string, expected, actual int) *Error {
	return Errorf(Semantic, pos, "wrong number of arguments to %q: expected %d, found %d", name, expected, actual)
}

// DuplicateError reports a duplicate declaration in one scope.
func DuplicateError(pos Pos, name string) *Error {
	return Errorf(Semantic, pos, "duplicate declaration of %q in the same scope", name)
}

// BreakOutsideLoopError reports a break with no enclosing loop.
func BreakOutsideLoopError(pos Pos) *Error {
	return Errorf(Semantic, pos, "break outside of loop")
}

// CyclicTypeError reports a recursive type group with no record or array
// on the cycle.
func CyclicTypeError(pos Pos, name string) *Error {
	return Errorf(Semantic, pos, "recursive type cycle through %q contains no record or array", name)
}

// SelfOutsideClassError reports a use of self outside a method body.
func SelfOutsideClassError(pos Pos) *Error {
	return Errorf(Semantic, pos, "self is only defined inside a class method")
}

// NotAClassError reports a method call on a non-class receiver.
func NotAClassError(pos Pos, actual string) *Error {
	return Errorf(Semantic, pos, "method call on non-class value of type %s", actual)
}

const (
	colorBold  = "\x1b[1m"
	colorRed   = "\x1b[31m"
	colorBlue  = "\x1b[34m"
	colorReset = "\x1b[0m"
)

// Renderer writes diagnostics against source text.
type Renderer struct {
	w        io.Writer
	filename string
	lines    []string
	colored  bool
}

// NewRenderer builds a renderer for one source file. Color is applied only
// when w is an *os.File attached to a terminal.
func NewRenderer(w io.Writer, filename, source string) *Renderer {
	colored := false
	if f, ok := w.(*os.File); ok {
		colored = term.IsTerminal(int(f.Fd()))
	}
	return &Renderer{
		w:        w,
		filename: filename,
		lines:    strings.Split(source, "\n"),
		colored:  colored,
	}
}

func (r *Renderer) paint(color, text string) string {
	if !r.colored {
		return text
	}
	return color + text + colorReset
}

// Render prints the diagnostic, the source line it points at, and a caret
// underline covering Pos.Length characters.
func (r *Renderer) Render(err *Error) {
	fmt.Fprintf(r.w, "%s %s:%s: %s\n",
		r.paint(colorBold+colorRed, "error:"),
		r.filename, err.Pos, err.Msg)
	if err.Pos.Line < 1 || err.Pos.Line > len(r.lines) {
		return
	}
	line := r.lines[err.Pos.Line-1]
	fmt.Fprintf(r.w, "%s\n", line)
	col := err.Pos.Column
	if col < 1 {
		col = 1
	}
	width := err.Pos.Length
	if width < 1 {
		width = 1
	}
	pad := strings.Repeat(" ", col-1)
	carets := "^" + strings.Repeat("~", width-1)
	fmt.Fprintf(r.w, "%s%s\n", pad, r.paint(colorBold+colorBlue, carets))
}
