// This is the main-driver for the Spyre toolchain: assemble, compile,
// and run, as three cobra subcommands sharing one binary.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skx/spyre/assembler"
	"github.com/skx/spyre/codegen"
	"github.com/skx/spyre/hostlib"
	"github.com/skx/spyre/lexer"
	"github.com/skx/spyre/parser"
	"github.com/skx/spyre/vm"
)

// verbose, when set via -v, prints the full pkg/errors wrap-chain and
// the root cause instead of just the top-level message.
var verbose bool

func fail(err error) {
	if verbose {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		fmt.Fprintf(os.Stderr, "cause: %v\n", errors.Cause(err))
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), nil
}

// assembleCmd is `spyre a input.spys [-o output.spyb]`: it runs the
// assembler directly over hand-written Spyre assembly.
var assembleCmd = &cobra.Command{
	Use:   "a <file.spys>",
	Short: "Assemble a Spyre assembly-language file into a binary image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readFile(args[0])
		if err != nil {
			return err
		}
		img, err := assembler.Assemble(args[0], src)
		if err != nil {
			return errors.Wrap(err, "assembling")
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = withExt(args[0], ".spyb")
		}
		if err := os.WriteFile(out, img, 0644); err != nil {
			return errors.Wrapf(err, "writing %s", out)
		}
		return nil
	},
}

// compileCmd is `spyre c input.spy [-o output.spyb] [--emit-asm]`: parse,
// typecheck, generate assembly, and assemble, in one pass. With --emit-asm it
// stops after codegen and writes the generated assembly text instead
// of the binary image - useful for inspecting what the generator
// produced.
var compileCmd = &cobra.Command{
	Use:   "c <file.spy>",
	Short: "Compile a Spyre source file into a binary image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readFile(args[0])
		if err != nil {
			return err
		}

		head, err := lexer.New(args[0], src).Tokenize()
		if err != nil {
			return errors.Wrap(err, "lexing")
		}
		opt, _ := cmd.Flags().GetInt("opt")
		tree, _, err := parser.Parse(args[0], head, opt)
		if err != nil {
			return errors.Wrap(err, "parsing")
		}
		asm, err := codegen.Generate(tree)
		if err != nil {
			return errors.Wrap(err, "generating code")
		}

		emitAsm, _ := cmd.Flags().GetBool("emit-asm")
		out, _ := cmd.Flags().GetString("output")

		if emitAsm {
			if out == "" {
				out = withExt(args[0], ".spys")
			}
			if err := os.WriteFile(out, []byte(asm), 0644); err != nil {
				return errors.Wrapf(err, "writing %s", out)
			}
			return nil
		}

		img, err := assembler.Assemble(args[0], asm)
		if err != nil {
			return errors.Wrap(err, "assembling generated code")
		}
		if out == "" {
			out = withExt(args[0], ".spyb")
		}
		if err := os.WriteFile(out, img, 0644); err != nil {
			return errors.Wrapf(err, "writing %s", out)
		}
		return nil
	},
}

// runCmd is `spyre r input.spyb [args...]`: load a previously
// assembled image and execute it.
var runCmd = &cobra.Command{
	Use:   "r <file.spyb> [args...]",
	Short: "Run a compiled Spyre binary image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}
		rom, code, err := assembler.Load(data)
		if err != nil {
			return errors.Wrap(err, "loading image")
		}

		m := vm.New(rom, code)

		if os.Getenv("SPY_DEBUG") != "" {
			m.SetDebug(true)
			logrus.SetLevel(logrus.DebugLevel)
		}
		if os.Getenv("SPY_STEP") != "" {
			m.SetStep(true)
		}

		reg := hostlib.New()
		reg.Install(m)

		if err := m.Run(args[1:]); err != nil {
			return errors.Wrap(err, "running")
		}

		if dumpHeap, _ := cmd.Flags().GetBool("dump-heap"); dumpHeap {
			fmt.Fprintln(os.Stderr, m.DumpHeap())
		}
		return nil
	},
}

// withExt replaces path's extension with ext, matching how the
// original toolchain names its generated artifacts alongside the
// source file.
func withExt(path, ext string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i] + ext
		}
	}
	return path + ext
}

var root = &cobra.Command{
	Use:   "spyre",
	Short: "Assemble, compile, and run Spyre bytecode programs",
}

func init() {
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show the full error cause-chain on failure")

	assembleCmd.Flags().StringP("output", "o", "", "output file (default: input with .spyb extension)")
	compileCmd.Flags().StringP("output", "o", "", "output file")
	compileCmd.Flags().IntP("opt", "O", parser.OptFull, "optimization level: 0 none, 1 constant folding, 2 folding plus dead-branch elimination")
	compileCmd.Flags().Bool("emit-asm", false, "stop after code generation and write the generated assembly instead of a binary image")
	runCmd.Flags().Bool("dump-heap", false, "print a heap-block dump to stderr after the program exits")

	root.AddCommand(assembleCmd, compileCmd, runCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		fail(err)
	}
}
