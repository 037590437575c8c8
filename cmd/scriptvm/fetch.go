package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download an interpreter module into the exec root",
		Long: `Download a WASI interpreter build (for example ruby.wasm) and store it in
the exec root under the configured module name. An existing file is kept
unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
	cmd.Flags().Bool("force", false, "Replace an existing module")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	ctx := commandContext(cmd)

	output := conf.Module
	if !filepath.IsAbs(output) {
		output = filepath.Join(conf.ExecRoot, output)
	}

	if _, err := os.Stat(output); err == nil && !force {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s already exists\n", output)
		return nil
	}

	n, err := download(ctx, args[0], output)
	if err != nil {
		return err
	}
	log.WithFunc("fetch").Infof(ctx, "downloaded %s to %s", args[0], output)
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", output, units.HumanSize(float64(n)))
	return nil
}

// download writes url to output through a temporary file so a failed
// transfer never leaves a truncated module behind.
func download(ctx context.Context, url, output string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, err
	}
	f, err := os.CreateTemp(filepath.Dir(output), ".fetch-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", output, err)
	}
	return n, os.Rename(f.Name(), output)
}
