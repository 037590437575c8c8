// Package bench measures the coordinator and the engines.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. ./bench/
package bench

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/scriptvm/engine/process"
	"github.com/caffeineduck/scriptvm/interpreter"
	"github.com/caffeineduck/scriptvm/logsink"
)

// noopEngine isolates queueing and dispatch cost from any real runtime.
func noopEngine(print bool) interpreter.Engine {
	return interpreter.EngineFunc(func(ctx context.Context, paths interpreter.Paths, sink logsink.Sink) (interpreter.Runtime, error) {
		return interpreter.RuntimeFunc(func(ctx context.Context, source string, stdout, stderr io.Writer) (int, error) {
			if print {
				fmt.Fprintln(stdout, source)
			}
			return 0, nil
		}), nil
	})
}

func newInterpreter(tb testing.TB, engine interpreter.Engine, opts ...interpreter.Option) *interpreter.Interpreter {
	tb.Helper()
	dir := tb.TempDir()
	opts = append([]interpreter.Option{interpreter.WithEngine(engine)}, opts...)
	in, err := interpreter.Create(dir, dir, dir, logsink.Discard, opts...)
	if err != nil {
		tb.Fatalf("create interpreter: %v", err)
	}
	tb.Cleanup(func() { in.Destroy() })
	return in
}

// --- Coordinator overhead ---

func BenchmarkSubmit_RoundTrip(b *testing.B) {
	in := newInterpreter(b, noopEngine(false))
	script, _ := in.NewScript("x = 1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch, _ := in.Submit(script)
		<-ch
	}
}

func BenchmarkSubmit_RoundTrip_Print(b *testing.B) {
	in := newInterpreter(b, noopEngine(true))
	script, _ := in.NewScript("puts 1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch, _ := in.Submit(script)
		<-ch
	}
}

func BenchmarkEnqueue_Pipelined(b *testing.B) {
	in := newInterpreter(b, noopEngine(false))
	script, _ := in.NewScript("x = 1")

	var wg sync.WaitGroup
	wg.Add(b.N)
	done := func(int) { wg.Done() }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		in.Enqueue(script, done)
	}
	wg.Wait()
}

func BenchmarkEnqueue_Parallel(b *testing.B) {
	in := newInterpreter(b, noopEngine(false))
	script, _ := in.NewScript("x = 1")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ch, _ := in.Submit(script)
			<-ch
		}
	})
}

func BenchmarkCreateDestroy(b *testing.B) {
	dir := b.TempDir()
	engine := noopEngine(false)
	for i := 0; i < b.N; i++ {
		in, err := interpreter.Create(dir, dir, dir, nil, interpreter.WithEngine(engine))
		if err != nil {
			b.Fatal(err)
		}
		in.Destroy()
	}
}

// --- Process engine: warm interpreter vs a new process per script ---

const shDriver = `while IFS= read -r len; do
  script=$(head -c "$len")
  sh -c "$script"
  code=$?
  printf '\000SCRIPTVM_DONE\000\n'
  printf '\000SCRIPTVM_DONE\000\n' >&2
  printf '%d\n' "$code" >&3
done`

func requireSh(tb testing.TB) {
	tb.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		tb.Skip("sh not available")
	}
}

func BenchmarkProcess_Warm(b *testing.B) {
	requireSh(b)
	in := newInterpreter(b, process.New(process.WithCommand("sh", "-c", shDriver)))
	script, _ := in.NewScript("true")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch, _ := in.Submit(script)
		<-ch
	}
}

func BenchmarkProcess_Cold(b *testing.B) {
	requireSh(b)
	for i := 0; i < b.N; i++ {
		exec.Command("sh", "-c", "true").Run()
	}
}

func TestWarmVersusCold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping comparison in short mode")
	}
	requireSh(t)

	const iterations = 20

	in := newInterpreter(t, process.New(process.WithCommand("sh", "-c", shDriver)))
	script, _ := in.NewScript("echo 1")

	start := time.Now()
	for range iterations {
		ch, _ := in.Submit(script)
		if code := <-ch; code != 0 {
			t.Fatalf("warm run exited %d", code)
		}
	}
	warm := time.Since(start) / iterations

	start = time.Now()
	for range iterations {
		exec.Command("sh", "-c", "echo 1").Run()
	}
	cold := time.Since(start) / iterations

	t.Logf("%-24s %s", "queued, warm process", formatDuration(warm))
	t.Logf("%-24s %s", "new process per script", formatDuration(cold))
}

func TestQueueLatencyUnderLoad(t *testing.T) {
	in := newInterpreter(t, noopEngine(true))
	script, _ := in.NewScript("puts 1")

	const submitters, each = 8, 500
	var wg sync.WaitGroup
	start := time.Now()
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				ch, _ := in.Submit(script)
				<-ch
			}
		}()
	}
	wg.Wait()

	total := submitters * each
	t.Logf("%d submissions from %d goroutines: %s each", total, submitters, formatDuration(time.Since(start)/time.Duration(total)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1e3)
	default:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
}
