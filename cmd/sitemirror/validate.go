package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sitemirror/pkg/config"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := doValidate(root.configFile, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return fmt.Errorf("configuration invalid")
			}
			return nil
		},
	}
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, warnings, err := config.Load(configPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Target: %s\n", cfg.TargetHost)
	fmt.Fprintf(stdout, "Store: %s  Queue: %s  Status: %s\n", cfg.Store.Backend, cfg.Queue.Backend, cfg.Status.Backend)
	fmt.Fprintf(stdout, "Workers: %d x %d\n", cfg.Worker.Processes, cfg.Worker.ThreadsPerWorker)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sitemirror %s\n", config.Version)
		},
	}
}
