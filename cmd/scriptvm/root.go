package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caffeineduck/scriptvm/config"
)

// conf is the configuration resolved for the running command.
var conf *config.Config

// exitCodeError carries a script's non-zero exit code out of a command.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree with its own flag set and viper
// instance, so every invocation starts from defaults.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "scriptvm",
		Short: "Run scripts on a queued interpreter",
		Long: `scriptvm - Run scripts one at a time on a single interpreter.

Scripts are queued in order and run on one worker, either inside a WASI
build of the interpreter (--engine wasm) or in a long-lived interpreter
process (--engine process). Output is streamed line by line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd), v, cfgFile)
		},
	}

	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file path (.json, .yaml or .toml)")
	flags.String("work-dir", defaults.WorkDir, "working directory scripts run in")
	flags.String("exec-root", defaults.ExecRoot, "directory holding the interpreter executable or module")
	flags.String("lib-path", defaults.LibPath, "interpreter library path")
	flags.String("engine", defaults.Engine, "engine: wasm or process")
	flags.String("module", defaults.Module, "wasm module inside the exec root")
	flags.StringArray("command", nil, "process engine command line (repeat per argument)")
	flags.String("memory", defaults.Memory, "wasm memory limit, e.g. 256MiB")
	flags.Bool("disk-cache", defaults.DiskCache, "keep compiled wasm modules between runs")
	flags.String("drain", defaults.DrainPolicy, "on shutdown: drain or discard queued scripts")
	flags.Bool("exclusive", defaults.Exclusive, "lock the working directory")
	flags.Duration("shutdown-timeout", defaults.ShutdownTimeout, "process engine shutdown timeout")
	flags.String("log-level", defaults.Log.Level, "log level")

	for key, flag := range map[string]string{
		"work_dir":         "work-dir",
		"exec_root":        "exec-root",
		"lib_path":         "lib-path",
		"engine":           "engine",
		"module":           "module",
		"command":          "command",
		"memory":           "memory",
		"disk_cache":       "disk-cache",
		"drain_policy":     "drain",
		"exclusive":        "exclusive",
		"shutdown_timeout": "shutdown-timeout",
		"log.level":        "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	v.SetEnvPrefix("SCRIPTVM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(newRunCmd(), newReplCmd(), newFetchCmd())
	return rootCmd
}

// initConfig layers flags and SCRIPTVM_* variables over the config file.
// JSON files go through config.LoadConfig; other formats are read by viper.
func initConfig(ctx context.Context, v *viper.Viper, cfgFile string) error {
	base := config.DefaultConfig()
	switch {
	case cfgFile == "":
	case strings.EqualFold(filepath.Ext(cfgFile), ".json"):
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		base = loaded
	default:
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	setDefaults(v, base)

	conf = config.DefaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

// setDefaults makes c the fallback for every key, below flags that were set
// and the environment.
func setDefaults(v *viper.Viper, c *config.Config) {
	v.SetDefault("work_dir", c.WorkDir)
	v.SetDefault("exec_root", c.ExecRoot)
	v.SetDefault("lib_path", c.LibPath)
	v.SetDefault("engine", c.Engine)
	v.SetDefault("module", c.Module)
	v.SetDefault("command", c.Command)
	v.SetDefault("memory", c.Memory)
	v.SetDefault("disk_cache", c.DiskCache)
	v.SetDefault("drain_policy", c.DrainPolicy)
	v.SetDefault("exclusive", c.Exclusive)
	v.SetDefault("shutdown_timeout", c.ShutdownTimeout)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.usejson", c.Log.UseJSON)
	v.SetDefault("log.filename", c.Log.Filename)
	v.SetDefault("log.maxsize", c.Log.MaxSize)
	v.SetDefault("log.maxage", c.Log.MaxAge)
	v.SetDefault("log.maxbackups", c.Log.MaxBackups)
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
