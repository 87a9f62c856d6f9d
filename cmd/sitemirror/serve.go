package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitemirror/pkg/entry"
	"sitemirror/pkg/server"
	"sitemirror/pkg/worker"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the entry operation over HTTP and run workers in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			pool := worker.NewPool(a.queue, a.crawler, cfg.Worker, a.log)
			starter := entry.NewStarter(a.crawler, pool, cfg, a.log)
			srv := server.NewHTTPServer(cfg.Server, server.NewRouter(starter, a.recorder, a.log))

			errCh := make(chan error, 1)
			go func() {
				a.log.Infof("Listening on %s", cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				a.log.Warn("Shutdown requested")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				a.log.Warnf("HTTP shutdown: %v", shutdownErr)
			}
			pool.Stop()
			pool.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides server.addr")
	return cmd
}
