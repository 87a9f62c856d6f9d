package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitemirror/pkg/worker"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	var (
		workers int
		start   bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Drain the crawl queue until it is observed empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Worker.Processes
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			pool := worker.NewPool(a.queue, a.crawler, cfg.Worker, a.log)
			for _, r := range pool.Run(ctx, workers, start) {
				if r.Err != nil {
					return r.Err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "Number of workers; defaults to worker.processes")
	cmd.Flags().BoolVar(&start, "start", false, "Wait worker.start_delay before the first poll")
	return cmd
}
