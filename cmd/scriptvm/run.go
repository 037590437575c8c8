package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run scripts in order",
		Long: `Queue every script and run them in order on one interpreter.

Scripts can be provided via:
  - File arguments: scriptvm run setup.rb main.rb
  - Inline flags: scriptvm run -e 'puts 1' -e 'puts 2'
  - Stdin: echo 'puts 1' | scriptvm run

State left by one script is visible to the next. The command exits with the
first non-zero exit code.`,
		RunE: runRun,
	}
	cmd.Flags().StringArrayP("eval", "e", nil, "Inline script (repeatable, runs after files)")
	cmd.Flags().String("encoding", "utf-8", "Source encoding of script files: utf-8, shift_jis, euc-jp")
	cmd.Flags().Bool("to-log", false, "Send script output to the structured log instead of stdout/stderr")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	evals, _ := cmd.Flags().GetStringArray("eval")
	encName, _ := cmd.Flags().GetString("encoding")
	toLog, _ := cmd.Flags().GetBool("to-log")

	enc, err := sourceEncoding(encName)
	if err != nil {
		return err
	}

	if len(args) == 0 && len(evals) == 0 {
		if !stdinPiped() {
			return cmd.Help()
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		evals = []string{string(data)}
	}

	sink := consoleSink(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if toLog {
		sink = logsink.NewLogger("script")
	}
	in, err := newInterpreter(conf, sink, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer in.Destroy()

	var scripts []*interpreter.Script
	for _, path := range args {
		script, err := newFileScript(in, path, enc)
		if err != nil {
			return err
		}
		scripts = append(scripts, script)
	}
	for _, src := range evals {
		script, err := in.NewScript(src)
		if err != nil {
			return err
		}
		scripts = append(scripts, script)
	}

	results := make([]<-chan int, 0, len(scripts))
	for _, script := range scripts {
		ch, err := in.Submit(script)
		if err != nil {
			return err
		}
		results = append(results, ch)
	}

	exitCode := interpreter.ExitSuccess
	for i, ch := range results {
		code := <-ch
		if code != interpreter.ExitSuccess && exitCode == interpreter.ExitSuccess {
			exitCode = code
			log.WithFunc("run").Infof(ctx, "script %d (%s) exited with %d", i, scripts[i].Name(), code)
		}
	}
	for _, script := range scripts {
		script.Release() //nolint:errcheck
	}

	if err := in.LastError(); err != nil {
		return fmt.Errorf("interpreter: %w", err)
	}
	if exitCode != interpreter.ExitSuccess {
		return exitCodeError{code: exitCode}
	}
	return nil
}

// newFileScript reads UTF-8 files lazily at execution time. Files in other
// encodings are decoded up front. Relative paths resolve against the
// working directory either way.
func newFileScript(in *interpreter.Interpreter, path string, enc encoding.Encoding) (*interpreter.Script, error) {
	if enc == nil {
		return in.NewScriptFromFile(path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(in.Paths().WorkDir, path)
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	src, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return in.NewScript(string(src))
}

// stdinPiped reports whether stdin carries input rather than a terminal. A
// stdin that cannot be inspected counts as no input.
func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

// sourceEncoding returns nil for UTF-8.
func sourceEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "utf_8", "utf8":
		return nil, nil
	case "utf_8_bom":
		return unicode.UTF8BOM, nil
	case "shift_jis", "sjis":
		return japanese.ShiftJIS, nil
	case "euc_jp":
		return japanese.EUCJP, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q: use utf-8, shift_jis or euc-jp", name)
	}
}
