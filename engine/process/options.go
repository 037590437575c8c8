package process

import "time"

// Option configures an Engine.
type Option func(*config)

type config struct {
	command         []string
	env             map[string]string
	shutdownTimeout time.Duration
	markerTimeout   time.Duration
}

func defaultConfig() config {
	return config{
		env:             map[string]string{},
		shutdownTimeout: 5 * time.Second,
		markerTimeout:   5 * time.Second,
	}
}

// WithCommand replaces the default "<execRoot>/bin/ruby -e <driver>"
// command line. The command must speak the same request protocol.
func WithCommand(name string, args ...string) Option {
	return func(c *config) {
		c.command = append([]string{name}, args...)
	}
}

// WithEnv adds an environment variable for the child.
func WithEnv(key, value string) Option {
	return func(c *config) {
		c.env[key] = value
	}
}

// WithShutdownTimeout bounds how long Close waits for the child to exit on
// its own before killing it.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = d
	}
}

// WithMarkerTimeout bounds how long Execute waits for the done markers once
// the exit code has arrived. Output still in flight after that goes to the
// sink.
func WithMarkerTimeout(d time.Duration) Option {
	return func(c *config) {
		c.markerTimeout = d
	}
}
