package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/japanese"

	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"scriptvm", "run", "repl", "fetch", "--engine", "--work-dir", "--drain"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLISubcommandHelp(t *testing.T) {
	tests := []struct {
		cmd     string
		phrases []string
	}{
		{"run", []string{"--eval", "--encoding", "--to-log"}},
		{"repl", []string{"--history", "Command history", ":raw"}},
		{"fetch", []string{"--force", "exec root"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			output, err := executeCommand(newRootCmd(), tt.cmd, "--help")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, phrase := range tt.phrases {
				if !strings.Contains(output, phrase) {
					t.Errorf("%s help output should contain %q", tt.cmd, phrase)
				}
			}
		})
	}
}

const shDriver = `while IFS= read -r len; do
  script=$(head -c "$len")
  sh -c "$script"
  code=$?
  printf '\000SCRIPTVM_DONE\000\n'
  printf '\000SCRIPTVM_DONE\000\n' >&2
  printf '%d\n' "$code" >&3
done
`

// writeDriver writes the sh driver into a temp dir and returns both.
func writeDriver(t *testing.T) (dir, driver string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir = t.TempDir()
	driver = filepath.Join(dir, "driver.sh")
	if err := os.WriteFile(driver, []byte(shDriver), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, driver
}

func TestCLIRunProcess(t *testing.T) {
	dir, driver := writeDriver(t)

	output, err := executeCommand(newRootCmd(), "run",
		"--engine", "process",
		"--work-dir", dir, "--exec-root", dir, "--lib-path", dir,
		"--command", "sh", "--command", driver,
		"-e", "echo hello", "-e", "exit 3", "-e", "echo after")

	var exitErr exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != 3 {
		t.Fatalf("expected exit status 3, got %v", err)
	}
	if !strings.Contains(output, "hello\n") || !strings.Contains(output, "after\n") {
		t.Errorf("unexpected output %q", output)
	}
	if strings.Index(output, "hello") > strings.Index(output, "after") {
		t.Errorf("scripts ran out of order: %q", output)
	}
}

func TestCLIRunAfterHelp(t *testing.T) {
	dir, driver := writeDriver(t)

	if _, err := executeCommand(newRootCmd(), "run", "--help"); err != nil {
		t.Fatalf("help failed: %v", err)
	}

	output, err := executeCommand(newRootCmd(), "run",
		"--engine", "process",
		"--work-dir", dir, "--exec-root", dir, "--lib-path", dir,
		"--command", "sh", "--command", driver,
		"-e", "echo ran")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(output, "ran\n") {
		t.Errorf("run after help should execute, got %q", output)
	}
}

func TestCLIConfigFile(t *testing.T) {
	dir, driver := writeDriver(t)

	data, err := json.Marshal(map[string]any{
		"work_dir":  dir,
		"exec_root": dir,
		"lib_path":  dir,
		"engine":    "wasm",
		"command":   []string{"sh", driver},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "scriptvm.json")
	if err := os.WriteFile(cfg, data, 0o644); err != nil {
		t.Fatal(err)
	}

	// The file picks wasm; the flag wins.
	output, err := executeCommand(newRootCmd(), "run", "--config", cfg, "--engine", "process", "-e", "echo configured")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(output, "configured\n") {
		t.Errorf("unexpected output %q", output)
	}
	if conf.WorkDir != dir || len(conf.Command) != 2 {
		t.Errorf("config file values not applied: %+v", conf)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"drain_policy":"sometimes"}`), 0o644)
	if _, err := executeCommand(newRootCmd(), "run", "--config", bad, "-e", "echo no"); err == nil {
		t.Error("expected error for invalid config file")
	}
}

// echoEngine prints each script's source and exits with 5 for "fail".
func echoEngine() interpreter.Engine {
	return interpreter.EngineFunc(func(ctx context.Context, paths interpreter.Paths, sink logsink.Sink) (interpreter.Runtime, error) {
		return interpreter.RuntimeFunc(func(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
			if source == "fail" {
				fmt.Fprintln(stderr, "failed")
				return 5, nil
			}
			fmt.Fprintln(stdout, source)
			return 0, nil
		}), nil
	})
}

func newEchoInterpreter(t *testing.T, out *bytes.Buffer) *interpreter.Interpreter {
	t.Helper()
	dir := t.TempDir()
	in, err := interpreter.Create(dir, dir, dir, consoleSink(out, out),
		interpreter.WithEngine(echoEngine()), interpreter.WithPassthrough(out, out))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { in.Destroy() })
	return in
}

func TestREPLBatch(t *testing.T) {
	var out bytes.Buffer
	in := newEchoInterpreter(t, &out)
	r := &repl{in: in, stdout: &out, stderr: &out}

	input := "one\n\nfail\n:error\ntwo\nexit\nnever\n"
	if err := r.batch(strings.NewReader(input)); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	want := "one\nfailed\n=> exit 5\nno error\ntwo\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}

	out.Reset()
	r.eval(":state")
	if !strings.Contains(out.String(), "0 queued") {
		t.Errorf("unexpected state output %q", out.String())
	}
}

func TestREPLRaw(t *testing.T) {
	var out bytes.Buffer
	in := newEchoInterpreter(t, &out)
	r := &repl{in: in, stdout: &out, stderr: &out}

	r.eval(":raw")
	r.eval("quiet")
	r.eval(":raw")

	if !strings.Contains(out.String(), "raw output true\nquiet\nraw output false\n") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestSourceEncoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8"} {
		if enc, err := sourceEncoding(name); err != nil || enc != nil {
			t.Errorf("sourceEncoding(%q) = %v, %v", name, enc, err)
		}
	}
	for _, name := range []string{"shift_jis", "Shift-JIS", "euc-jp", "utf-8-bom"} {
		if enc, err := sourceEncoding(name); err != nil || enc == nil {
			t.Errorf("sourceEncoding(%q) = %v, %v", name, enc, err)
		}
	}
	if _, err := sourceEncoding("latin-9"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestNewFileScriptDecodes(t *testing.T) {
	var out bytes.Buffer
	in := newEchoInterpreter(t, &out)

	want := "puts 'こんにちは'"
	encoded, err := japanese.ShiftJIS.NewEncoder().String(want)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "hello.rb")
	os.WriteFile(path, []byte(encoded), 0o644)

	script, err := newFileScript(in, path, japanese.ShiftJIS)
	if err != nil {
		t.Fatalf("newFileScript failed: %v", err)
	}
	if src, _ := script.Source(); src != want {
		t.Errorf("decoded %q, want %q", src, want)
	}

	rel, err := newFileScript(in, "sub/hello.rb", japanese.ShiftJIS)
	if err == nil {
		t.Fatalf("relative path should resolve against the working directory, read %v", rel)
	}
	sub := filepath.Join(in.Paths().WorkDir, "sub")
	os.MkdirAll(sub, 0o755)
	os.WriteFile(filepath.Join(sub, "hello.rb"), []byte(encoded), 0o644)
	rel, err = newFileScript(in, "sub/hello.rb", japanese.ShiftJIS)
	if err != nil {
		t.Fatalf("relative newFileScript failed: %v", err)
	}
	if src, _ := rel.Source(); src != want {
		t.Errorf("decoded %q, want %q", src, want)
	}

	lazy, err := newFileScript(in, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lazy.Path() != path {
		t.Errorf("utf-8 scripts should stay file backed, got path %q", lazy.Path())
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ruby.wasm" {
			w.Write([]byte("\x00asm module"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "bin", "ruby.wasm")
	n, err := download(context.Background(), srv.URL+"/ruby.wasm", output)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	data, _ := os.ReadFile(output)
	if n != int64(len(data)) || string(data) != "\x00asm module" {
		t.Errorf("unexpected content %q (%d bytes)", data, n)
	}

	missing := filepath.Join(t.TempDir(), "missing.wasm")
	if _, err := download(context.Background(), srv.URL+"/nope", missing); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("failed download must not leave a file")
	}
}

func TestStdinPiped(t *testing.T) {
	orig := os.Stdin
	t.Cleanup(func() { os.Stdin = orig })

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	os.Stdin = r
	if !stdinPiped() {
		t.Error("a pipe should count as piped input")
	}

	r.Close()
	if stdinPiped() {
		t.Error("a stdin that cannot be inspected should count as no input")
	}
}
