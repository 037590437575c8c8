package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	coretypes "github.com/projecteru2/core/types"

	"github.com/caffeineduck/scriptvm/interpreter"
)

// Engine names accepted in Config.Engine.
const (
	EngineWasm    = "wasm"
	EngineProcess = "process"
)

const wasmPageSize = 64 * 1024

// Config holds everything needed to create an interpreter from the CLI.
type Config struct {
	// WorkDir is the directory scripts run in.
	WorkDir string `json:"work_dir" mapstructure:"work_dir"`
	// ExecRoot holds the interpreter executable or module.
	ExecRoot string `json:"exec_root" mapstructure:"exec_root"`
	// LibPath is the interpreter's library search path.
	LibPath string `json:"lib_path" mapstructure:"lib_path"`
	// Engine is "wasm" or "process".
	Engine string `json:"engine" mapstructure:"engine"`
	// Module is the wasm module file inside ExecRoot.
	Module string `json:"module" mapstructure:"module"`
	// Command overrides the process engine's command line.
	Command []string `json:"command" mapstructure:"command"`
	// Memory caps wasm guest memory, e.g. "256MiB". Empty means no cap.
	Memory string `json:"memory" mapstructure:"memory"`
	// DiskCache keeps compiled wasm modules between runs.
	DiskCache bool `json:"disk_cache" mapstructure:"disk_cache"`
	// DrainPolicy is "drain" or "discard".
	DrainPolicy string `json:"drain_policy" mapstructure:"drain_policy"`
	// Exclusive locks the working directory against other interpreters.
	Exclusive bool `json:"exclusive" mapstructure:"exclusive"`
	// ShutdownTimeout bounds how long the process engine waits on Close.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config rooted at the current directory.
func DefaultConfig() *Config {
	return &Config{
		WorkDir:         ".",
		ExecRoot:        ".",
		LibPath:         ".",
		Engine:          EngineWasm,
		Module:          "ruby.wasm",
		DrainPolicy:     "drain",
		ShutdownTimeout: 5 * time.Second,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return conf, conf.Validate()
}

// Validate checks the fields that can be checked without touching the
// filesystem. Paths are checked by interpreter.Create.
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine {
	case EngineWasm, EngineProcess:
	default:
		errs = append(errs, fmt.Errorf("unknown engine %q", c.Engine))
	}
	if _, err := c.Drain(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MemoryLimitPages(); err != nil {
		errs = append(errs, err)
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative shutdown timeout %v", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// Drain parses DrainPolicy.
func (c *Config) Drain() (interpreter.DrainPolicy, error) {
	return interpreter.ParseDrainPolicy(c.DrainPolicy)
}

// MemoryLimitPages converts Memory to 64KiB wasm pages, rounding up.
func (c *Config) MemoryLimitPages() (uint32, error) {
	if c.Memory == "" {
		return 0, nil
	}
	bytes, err := units.RAMInBytes(c.Memory)
	if err != nil {
		return 0, fmt.Errorf("parse memory %q: %w", c.Memory, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("memory %q must be positive", c.Memory)
	}
	pages := (bytes + wasmPageSize - 1) / wasmPageSize
	if pages > 65536 {
		return 0, fmt.Errorf("memory %q exceeds the 4GiB wasm limit", c.Memory)
	}
	return uint32(pages), nil
}
