package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raymyers/tiger-go/pkg/escape"
	"github.com/raymyers/tiger-go/pkg/lexer"
	"github.com/raymyers/tiger-go/pkg/parser"
	"github.com/raymyers/tiger-go/pkg/semant"
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/types"
	"golang.org/x/tools/txtar"
)

// compile runs the whole pipeline on source and returns the listing
func compile(t *testing.T, source string) string {
	t.Helper()
	temp.Reset()
	types.ResetUniques()
	syms := symbol.NewStrings()
	p := parser.New(lexer.New(source), syms)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	escape.FindEscapes(program)
	fragments, err := semant.New(syms).Analyze(program)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	var buf bytes.Buffer
	if err := Program(&buf, fragments, semant.ExternalFunctions()); err != nil {
		t.Fatalf("emission failed: %v", err)
	}
	return buf.String()
}

func TestEmitFixtures(t *testing.T) {
	archive, err := txtar.ParseFile("../../testdata/emit.txtar")
	if err != nil {
		t.Fatalf("failed to read emit.txtar: %v", err)
	}

	sources := make(map[string]string)
	expects := make(map[string]string)
	for _, file := range archive.Files {
		switch {
		case strings.HasSuffix(file.Name, ".tig"):
			sources[strings.TrimSuffix(file.Name, ".tig")] = string(file.Data)
		case strings.HasSuffix(file.Name, ".expect"):
			expects[strings.TrimSuffix(file.Name, ".expect")] = string(file.Data)
		}
	}

	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			output := compile(t, source)
			for _, want := range strings.Split(expects[name], "\n") {
				want = strings.TrimSpace(want)
				if want == "" {
					continue
				}
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q\n--- listing\n%s", want, output)
				}
			}
		})
	}
}

// Every temp in the final listing must be a concrete register name; no
// abstract placeholder may survive allocation.
func TestNoPlaceholdersSurvive(t *testing.T) {
	output := compile(t, `let
		function fact(n: int): int =
			if n = 0 then 1 else n * fact(n - 1)
	in printi(fact(10)) end`)
	if strings.Contains(output, "'d") || strings.Contains(output, "'s") {
		t.Errorf("template holes survived emission:\n%s", output)
	}
	if strings.Contains(output, " t1") && strings.Contains(output, "mov t1") {
		t.Error("raw temp names survived emission")
	}
}

// A record allocated before a call and read after it must appear in the
// pointer map entry for that call site.
func TestPointerMapCoversLiveRecord(t *testing.T) {
	output := compile(t, `let
		type box = {value: int}
		var b := box{value = 1}
		type big = array of int
		var a := big[1000] of 0
	in (printi(b.value); printi(a[0])) end`)

	mapIdx := strings.Index(output, "__tiger_pointer_map:")
	if mapIdx < 0 {
		t.Fatal("pointer map table missing")
	}
	table := output[mapIdx:]
	lines := strings.Split(table, "\n")
	// Each entry is the site label, its encoded roots, then the end marker;
	// b is live across the allocArray call, so that entry lists a root.
	entries, rooted, roots := 0, 0, -1
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "dq pm") || strings.Contains(line, "dq l"):
			entries++
			roots = 0
		case line == "dq "+EndMarker:
			if roots > 0 {
				rooted++
			}
			roots = -1
		case roots >= 0 && strings.HasPrefix(line, "dq "):
			roots++
		}
	}
	if entries == 0 {
		t.Errorf("pointer map has no call-site entries:\n%s", table)
	}
	if rooted == 0 {
		t.Errorf("no call-site entry lists the live record as a root:\n%s", table)
	}
}

func TestStringSharing(t *testing.T) {
	output := compile(t, `(print("dup"); print("dup"))`)
	if strings.Count(output, "db 'dup', 0") != 1 {
		t.Errorf("identical literals must share one data definition:\n%s", output)
	}
}

func TestToNasm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "'hello'"},
		{"a\nb", "'a', 10, 'b'"},
		{"", "''"},
		{"it's", "'it', 39, 's'"},
		{"\t", "9"},
	}
	for _, tc := range tests {
		if got := toNasm(tc.in); got != tc.want {
			t.Errorf("toNasm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
