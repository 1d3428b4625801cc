package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeFlags(t *testing.T) {
	args := []string{"-dast", "file.tig", "-dasm", "--dcanon", "-dx"}
	got := normalizeFlags(args)
	want := []string{"--dast", "file.tig", "--dasm", "--dcanon", "-dx"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		in, ext, want string
	}{
		{"prog.tig", ".s", "prog.s"},
		{"prog.tig", "", "prog"},
		{"dir.v2/prog.tig", ".o", "dir.v2/prog.o"},
		{"noext", ".s", "noext.s"},
	}
	for _, tc := range tests {
		if got := outputFilename(tc.in, tc.ext); got != tc.want {
			t.Errorf("outputFilename(%q, %q) = %q, want %q", tc.in, tc.ext, got, tc.want)
		}
	}
}

func TestDoAsmWritesListing(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "hello.tig")
	if err := os.WriteFile(source, []byte(`print("hello\n")`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	asmPath, err := doAsm(source, &out, &errOut)
	if err != nil {
		t.Fatalf("doAsm failed: %v\n%s", err, errOut.String())
	}
	if asmPath != filepath.Join(dir, "hello.s") {
		t.Errorf("asm written to %s", asmPath)
	}

	listing, err := os.ReadFile(asmPath)
	if err != nil {
		t.Fatal(err)
	}
	text := string(listing)
	for _, want := range []string{"global main", "section .text", "call print", "__tiger_pointer_map"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing missing %q", want)
		}
	}
}

func TestCompileErrorsReported(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "bad.tig")
	if err := os.WriteFile(source, []byte(`undefinedVariable + 1`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	if _, err := doAsm(source, &out, &errOut); err == nil {
		t.Fatal("expected a semantic error")
	}
	if !strings.Contains(errOut.String(), "undefined variable") {
		t.Errorf("diagnostic not rendered: %q", errOut.String())
	}
	if !strings.Contains(errOut.String(), "^") {
		t.Errorf("caret underline missing: %q", errOut.String())
	}
}
