package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/caffeineduck/scriptvm/interpreter"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL with persistent state",
		Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Every entry runs as its own script on the same interpreter, so state
carries over between entries.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Commands:
  :raw     toggle raw output (bypass line logging)
  :error   show and clear the last interpreter error
  :state   show the worker state

Type 'exit' or 'quit' to end the session, or press Ctrl+D.
When stdin is not a terminal each line is run as a script.`,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.scriptvm_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".scriptvm_history")
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	in, err := newInterpreter(conf, consoleSink(stdout, stderr), stdout, stderr)
	if err != nil {
		return err
	}
	defer in.Destroy()

	r := &repl{in: in, stdout: stdout, stderr: stderr}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return r.batch(cmd.InOrStdin())
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(stderr, "scriptvm %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", conf.Engine)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">> ")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(".. ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">> ")
		}

		if !r.eval(line) {
			return nil
		}
	}
}

type repl struct {
	in     *interpreter.Interpreter
	stdout io.Writer
	stderr io.Writer
	raw    bool
}

// batch runs each non-empty line of r as a script.
func (r *repl) batch(src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), interpreter.MaxScriptSize)
	for scanner.Scan() {
		if !r.eval(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// eval handles one entry. It returns false when the session should end.
func (r *repl) eval(line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "exit", "quit":
		return false
	case ":raw":
		r.raw = !r.raw
		if r.raw {
			r.in.DisableLogging()
		} else {
			r.in.EnableLogging()
		}
		fmt.Fprintf(r.stderr, "raw output %v\n", r.raw)
		return true
	case ":error":
		if err := r.in.LastError(); err != nil {
			fmt.Fprintf(r.stderr, "last error: %v\n", err)
			r.in.ClearError()
		} else {
			fmt.Fprintln(r.stderr, "no error")
		}
		return true
	case ":state":
		fmt.Fprintf(r.stderr, "%s, %d queued\n", r.in.State(), r.in.Pending())
		return true
	}

	script, err := r.in.NewScript(line)
	if err != nil {
		fmt.Fprintf(r.stderr, "Error: %v\n", err)
		return true
	}
	defer script.Release() //nolint:errcheck

	ch, err := r.in.Submit(script)
	if err != nil {
		fmt.Fprintf(r.stderr, "Error: %v\n", err)
		return false
	}
	if code := <-ch; code != interpreter.ExitSuccess {
		fmt.Fprintf(r.stderr, "=> exit %d\n", code)
	}
	return true
}
