package interpreter

import (
	"fmt"
	"io"
	"os"
)

// DrainPolicy decides what happens to queued submissions on Destroy.
type DrainPolicy int

const (
	// DrainQueued runs every queued submission before the runtime is
	// released. Each still gets its completion callback.
	DrainQueued DrainPolicy = iota
	// DiscardQueued drops submissions that have not started. Their
	// callbacks never fire. A submission already executing always finishes.
	DiscardQueued
)

func (p DrainPolicy) String() string {
	switch p {
	case DrainQueued:
		return "drain"
	case DiscardQueued:
		return "discard"
	default:
		return fmt.Sprintf("DrainPolicy(%d)", int(p))
	}
}

// ParseDrainPolicy maps "drain" and "discard" to their policies.
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch s {
	case "", "drain":
		return DrainQueued, nil
	case "discard":
		return DiscardQueued, nil
	default:
		return 0, fmt.Errorf("unknown drain policy %q (expected drain or discard)", s)
	}
}

// Option configures an Interpreter at creation time.
type Option func(*config)

type config struct {
	engine    Engine
	drain     DrainPolicy
	exclusive bool
	logging   bool
	stdout    io.Writer
	stderr    io.Writer
}

func defaultConfig() config {
	return config{
		drain:   DrainQueued,
		logging: true,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// WithEngine selects the runtime backend. Required.
func WithEngine(e Engine) Option {
	return func(c *config) {
		c.engine = e
	}
}

// WithDrainPolicy sets the shutdown behavior for queued submissions.
func WithDrainPolicy(p DrainPolicy) Option {
	return func(c *config) {
		c.drain = p
	}
}

// WithExclusiveLock takes a cross-process lock on the working directory so
// that no other interpreter can drive it until Destroy.
func WithExclusiveLock() Option {
	return func(c *config) {
		c.exclusive = true
	}
}

// WithPassthrough sets where runtime output goes while logging is disabled.
func WithPassthrough(stdout, stderr io.Writer) Option {
	return func(c *config) {
		if stdout != nil {
			c.stdout = stdout
		}
		if stderr != nil {
			c.stderr = stderr
		}
	}
}

// WithLoggingDisabled starts the interpreter with output redirected to the
// passthrough writers instead of the sink. See Interpreter.EnableLogging.
func WithLoggingDisabled() Option {
	return func(c *config) {
		c.logging = false
	}
}
