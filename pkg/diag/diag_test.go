package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderCaret(t *testing.T) {
	source := "let var a := x + 1 in a end"
	err := UndefinedError(Pos{Line: 1, Column: 14, Length: 1}, "variable", "x")

	var buf bytes.Buffer
	NewRenderer(&buf, "test.tig", source).Render(err)
	output := buf.String()

	if !strings.Contains(output, `undefined variable "x"`) {
		t.Errorf("message missing: %q", output)
	}
	if !strings.Contains(output, "test.tig:1:14") {
		t.Errorf("position missing: %q", output)
	}
	if !strings.Contains(output, source) {
		t.Errorf("source line missing: %q", output)
	}
	caretLine := strings.Repeat(" ", 13) + "^"
	if !strings.Contains(output, caretLine) {
		t.Errorf("caret not under column 14: %q", output)
	}
}

func TestRenderUnderline(t *testing.T) {
	source := "badname"
	err := Errorf(Semantic, Pos{Line: 1, Column: 1, Length: 7}, "oops")

	var buf bytes.Buffer
	NewRenderer(&buf, "t.tig", source).Render(err)
	if !strings.Contains(buf.String(), "^~~~~~~") {
		t.Errorf("underline must cover the full token: %q", buf.String())
	}
}

func TestNoColorForPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, "t.tig", "x").Render(Errorf(Lexical, Pos{Line: 1, Column: 1}, "bad"))
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("escape codes written to a non-terminal: %q", buf.String())
	}
}

func TestOutOfRangeLine(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, "t.tig", "x").Render(Errorf(IO, Pos{Line: 99, Column: 1}, "gone"))
	if !strings.Contains(buf.String(), "gone") {
		t.Error("message must still render when the line is unavailable")
	}
}
