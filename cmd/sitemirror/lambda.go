package main

import (
	"fmt"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"sitemirror/pkg/entry"
	"sitemirror/pkg/lambdafn"
	"sitemirror/pkg/worker"
)

func newLambdaCmd(root *rootOptions) *cobra.Command {
	var handler string

	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function",
		Long: `Runs one of the Lambda handlers. Deploy the same binary three times:
  entry      API Gateway requests for the entry operation
  worker     one poll of the crawl queue, re-invoking itself while work remains
  reprocess  asynchronous Reprocess Steps`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			driver := worker.NewDriver(0, a.queue, a.crawler, cfg.Worker, a.log)
			starter := entry.NewStarter(a.crawler, a.invoker, cfg, a.log)
			h := lambdafn.NewHandlers(starter, driver, a.crawler, a.invoker, a.log)

			switch handler {
			case "entry":
				awslambda.Start(h.Entry)
			case "worker":
				awslambda.Start(h.Worker)
			case "reprocess":
				awslambda.Start(h.Reprocess)
			default:
				return fmt.Errorf("unknown handler %q (want entry, worker or reprocess)", handler)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&handler, "handler", "entry", "Handler to run: entry, worker or reprocess")
	return cmd
}
