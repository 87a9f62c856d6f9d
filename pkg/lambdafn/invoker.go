package lambdafn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// WorkerEvent is the worker function payload
type WorkerEvent struct {
	Start bool `json:"start,omitempty"`
}

// Invoker triggers the worker and reprocess functions asynchronously
type Invoker struct {
	client      lambdaAPI
	workerFn    string
	reprocessFn string
	log         *logrus.Entry
}

// NewInvoker creates an Invoker for the functions named in cfg
func NewInvoker(client lambdaAPI, cfg config.LambdaConfig, logger *logrus.Entry) *Invoker {
	return &Invoker{
		client:      client,
		workerFn:    cfg.WorkerFunction,
		reprocessFn: cfg.ReprocessFunction,
		log:         logger.WithField("component", "lambda_invoker"),
	}
}

// InvokeReprocess sends req to the reprocess function
func (i *Invoker) InvokeReprocess(ctx context.Context, req models.ReprocessRequest) error {
	return i.invoke(ctx, i.reprocessFn, req)
}

// InvokeWorker triggers one worker iteration
func (i *Invoker) InvokeWorker(ctx context.Context, start bool) error {
	return i.invoke(ctx, i.workerFn, WorkerEvent{Start: start})
}

// Launch starts the given number of independent worker chains
func (i *Invoker) Launch(ctx context.Context, workers int) error {
	for n := range max(workers, 1) {
		if err := i.InvokeWorker(ctx, true); err != nil {
			return fmt.Errorf("launching worker %d: %w", n, err)
		}
	}
	i.log.WithField("workers", max(workers, 1)).Info("Workers launched")
	return nil
}

func (i *Invoker) invoke(ctx context.Context, function string, payload any) error {
	if function == "" {
		return fmt.Errorf("%w: no function configured", utils.ErrInvoke)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload for %s: %w", utils.ErrParsing, function, err)
	}

	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("%w: invoke %s: %w", utils.ErrInvoke, function, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("%w: invoke %s: %s", utils.ErrInvoke, function, aws.ToString(out.FunctionError))
	}
	i.log.WithFields(logrus.Fields{"function": function, "status_code": out.StatusCode}).Debug("Invoked")
	return nil
}
