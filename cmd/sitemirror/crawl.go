package main

import (
	"fmt"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"sitemirror/pkg/entry"
	"sitemirror/pkg/models"
	"sitemirror/pkg/queue"
	"sitemirror/pkg/worker"
)

func newCrawlCmd(root *rootOptions) *cobra.Command {
	var (
		path    string
		depth   int
		crawlID string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl to completion in this process",
		Example: `  sitemirror crawl --path /docs/ --depth 2
  sitemirror crawl --path / --depth 3 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			params := url.Values{"path": {path}, "crawlId": {crawlID}}
			if cmd.Flags().Changed("depth") {
				params.Set("depth", strconv.Itoa(depth))
			}
			if force {
				params.Set("force", "true")
			}

			resp := entry.NewStarter(a.crawler, nil, cfg, a.log).Handle(ctx, params)
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body()))
			if resp.StatusCode >= 400 {
				return fmt.Errorf("crawl rejected with status %d", resp.StatusCode)
			}
			if resp.Message != models.MessageAccepted {
				return nil
			}

			pool := worker.NewPool(a.queue, a.crawler, cfg.Worker, a.log)
			pool.Run(ctx, cfg.Worker.Processes, true)

			if mq, ok := a.queue.(*queue.MemoryQueue); ok {
				if dead := mq.DeadLetters(); len(dead) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d tasks dead-lettered after %d receives\n", len(dead), cfg.Queue.MaxReceives)
				}
			}

			if snap, found, err := a.recorder.Get(ctx, resp.CrawlID); err == nil && found {
				fmt.Fprintf(cmd.OutOrStdout(), "Crawl %s finished: %d steps %v\n", snap.CrawlID, snap.Total, snap.Counts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "/", "Host-relative path to start from")
	cmd.Flags().IntVar(&depth, "depth", 1, "Link hops to follow; defaults to default_depth from the config")
	cmd.Flags().StringVar(&crawlID, "crawl-id", "", "Crawl run id (generated when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "Refetch the start path even if a fresh copy is stored")
	return cmd
}
