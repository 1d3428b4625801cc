package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/raymyers/tiger-go/pkg/ast"
	"github.com/raymyers/tiger-go/pkg/canon"
	"github.com/raymyers/tiger-go/pkg/diag"
	"github.com/raymyers/tiger-go/pkg/emit"
	"github.com/raymyers/tiger-go/pkg/escape"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/ir"
	"github.com/raymyers/tiger-go/pkg/lexer"
	"github.com/raymyers/tiger-go/pkg/parser"
	"github.com/raymyers/tiger-go/pkg/semant"
	"github.com/raymyers/tiger-go/pkg/symbol"
	"github.com/raymyers/tiger-go/pkg/temp"
	"github.com/raymyers/tiger-go/pkg/types"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dAST   bool
	dIR    bool
	dCanon bool
	dAsm   bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize single-dash debug flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists all debug flags that should accept single-dash style
var debugFlagNames = []string{"dast", "dir", "dcanon", "dasm"}

// normalizeFlags converts single-dash flags like -dast to --dast
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tiger-go [file]",
		Short: "tiger-go is an ahead-of-time Tiger compiler for x86-64",
		Long: `tiger-go compiles a Tiger source file to a NASM-syntax assembly
listing next to the source, then assembles and links it into a
standalone x86-64 SysV executable.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			if dAST {
				return doAST(filename, out, errOut)
			}
			if dIR {
				return doIR(filename, out, errOut)
			}
			if dCanon {
				return doCanon(filename, out, errOut)
			}
			if dAsm {
				_, err := doAsm(filename, out, errOut)
				return err
			}
			return doCompile(filename, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dAST, "dast", false, "Dump after parsing")
	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump tree IR after translation")
	rootCmd.Flags().BoolVar(&dCanon, "dcanon", false, "Dump canonicalised IR")
	rootCmd.Flags().BoolVar(&dAsm, "dasm", false, "Dump assembly without assembling")

	return rootCmd
}

// parseFile reads and parses a source file, rendering diagnostics
// against the source text on failure.
func parseFile(filename string, errOut io.Writer) (ast.Exp, *symbol.Strings, string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "tiger-go: error reading %s: %v\n", filename, err)
		return nil, nil, "", err
	}
	source := string(content)

	// Fresh generators per compilation
	temp.Reset()
	types.ResetUniques()

	syms := symbol.NewStrings()
	l := lexer.New(source)
	p := parser.New(l, syms)
	program := p.ParseProgram()

	if errs := p.Errors(); len(errs) > 0 {
		renderer := diag.NewRenderer(errOut, filename, source)
		renderer.Render(errs[0])
		return nil, nil, "", errs[0]
	}
	return program, syms, source, nil
}

// analyzeFile parses and runs escape analysis and semantic analysis.
func analyzeFile(filename string, errOut io.Writer) ([]frame.Fragment, *symbol.Strings, error) {
	program, syms, source, err := parseFile(filename, errOut)
	if err != nil {
		return nil, nil, err
	}
	escape.FindEscapes(program)
	fragments, err := semant.New(syms).Analyze(program)
	if err != nil {
		if diagErr, ok := err.(*diag.Error); ok {
			renderer := diag.NewRenderer(errOut, filename, source)
			renderer.Render(diagErr)
		} else {
			fmt.Fprintf(errOut, "tiger-go: %v\n", err)
		}
		return nil, nil, err
	}
	return fragments, syms, nil
}

// outputFilename swaps the source extension for ext ("" strips it)
func outputFilename(filename, ext string) string {
	base := filename
	if idx := strings.LastIndex(base, "."); idx > strings.LastIndex(base, "/") {
		base = base[:idx]
	}
	return base + ext
}

// doAST parses the file and dumps the AST
func doAST(filename string, out, errOut io.Writer) error {
	program, syms, _, err := parseFile(filename, errOut)
	if err != nil {
		return err
	}
	printer := ast.NewPrinter(out, syms)
	printer.PrintExp(program)
	return nil
}

// doIR dumps the translated tree IR of every function fragment
func doIR(filename string, out, errOut io.Writer) error {
	fragments, _, err := analyzeFile(filename, errOut)
	if err != nil {
		return err
	}
	printer := ir.NewPrinter(out)
	for _, fragment := range fragments {
		if fn, ok := fragment.(*frame.FunctionFrag); ok {
			fmt.Fprintf(out, "# %s\n", fn.Frame.Name())
			printer.PrintStm(fn.Body)
		}
	}
	return nil
}

// doCanon dumps the canonicalised statement lists
func doCanon(filename string, out, errOut io.Writer) error {
	fragments, _, err := analyzeFile(filename, errOut)
	if err != nil {
		return err
	}
	printer := ir.NewPrinter(out)
	for _, fragment := range fragments {
		if fn, ok := fragment.(*frame.FunctionFrag); ok {
			fmt.Fprintf(out, "# %s\n", fn.Frame.Name())
			printer.PrintStms(canon.Canonicalize(fn.Body))
		}
	}
	return nil
}

// doAsm compiles to assembly and writes the .s file
func doAsm(filename string, out, errOut io.Writer) (string, error) {
	fragments, _, err := analyzeFile(filename, errOut)
	if err != nil {
		return "", err
	}

	asmPath := outputFilename(filename, ".s")
	outFile, err := os.Create(asmPath)
	if err != nil {
		fmt.Fprintf(errOut, "tiger-go: error creating %s: %v\n", asmPath, err)
		return "", err
	}
	defer outFile.Close()

	if err := emit.Program(outFile, fragments, semant.ExternalFunctions()); err != nil {
		fmt.Fprintf(errOut, "tiger-go: %v\n", err)
		return "", err
	}
	return asmPath, nil
}

// runtimeLibrary is the static runtime archive linked into every program
const runtimeLibrary = "libruntime.a"

// doCompile produces the .s file, assembles it with nasm, and links the
// executable next to the source.
func doCompile(filename string, out, errOut io.Writer) error {
	asmPath, err := doAsm(filename, out, errOut)
	if err != nil {
		return err
	}

	if err := runCommand(errOut, "nasm", "-f", "elf64", asmPath); err != nil {
		return err
	}

	gccLibDir, err := findGccLibDir()
	if err != nil {
		fmt.Fprintf(errOut, "tiger-go: locating gcc libraries: %v\n", err)
		return err
	}

	objectPath := outputFilename(filename, ".o")
	executablePath := outputFilename(filename, "")
	return runCommand(errOut, "ld",
		"-dynamic-linker", "/lib64/ld-linux-x86-64.so.2",
		"-o", executablePath,
		"/usr/lib/Scrt1.o", "/usr/lib/crti.o",
		"-L"+gccLibDir, "-L/usr/lib64/",
		objectPath, runtimeLibrary,
		"-lpthread", "-ldl",
		"--no-as-needed", "-lc", "-lgcc",
		"--as-needed", "-lgcc_s",
		"--no-as-needed", "/usr/lib/crtn.o",
	)
}

func runCommand(errOut io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = errOut
	cmd.Stderr = errOut
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(errOut, "tiger-go: %s: %v\n", name, err)
		return err
	}
	return nil
}

// findGccLibDir locates the versioned gcc library directory used by the
// link line.
func findGccLibDir() (string, error) {
	const directory = "/usr/lib64/gcc/x86_64-pc-linux-gnu/"
	entries, err := os.ReadDir(directory)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			return directory + entry.Name(), nil
		}
	}
	return "", fmt.Errorf("no gcc library directory under %s", directory)
}
