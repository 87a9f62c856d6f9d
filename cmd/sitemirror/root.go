package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sitemirror/pkg/config"
	"sitemirror/pkg/log"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCmd creates the sitemirror command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sitemirror",
		Short: "Mirror a website into an object store, one queued crawl task at a time",
		Long: `sitemirror copies a website into an object store. Each page is fetched,
its same-host links are rewritten to mirror paths, and the linked objects are
queued as new crawl tasks until the requested depth is exhausted.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "config.yaml", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log_level from the config")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newLambdaCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the logger it asks for
func (o *rootOptions) loadConfig() (*config.AppConfig, *logrus.Logger, error) {
	cfg, warnings, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := log.NewLogger(level, os.Stderr)
	for _, w := range warnings {
		logger.Warn(w)
	}
	logger.WithFields(logrus.Fields{
		"target_host": cfg.TargetHost,
		"store":       cfg.Store.Backend,
		"queue":       cfg.Queue.Backend,
		"status":      cfg.Status.Backend,
	}).Infof("Loaded configuration from %s", o.configFile)
	return cfg, logger, nil
}
