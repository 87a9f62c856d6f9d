package lambdafn

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/entry"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
	"sitemirror/pkg/worker"
)

// Starter runs the entry operation
type Starter interface {
	Handle(ctx context.Context, params url.Values) entry.Response
}

// BatchRunner runs one worker iteration
type BatchRunner interface {
	RunOnce(ctx context.Context, start bool) (worker.Batch, error)
}

// Reprocessor runs the Reprocess Step
type Reprocessor interface {
	Reprocess(ctx context.Context, req models.ReprocessRequest) (models.Result, error)
}

// WorkerInvoker schedules the next worker iteration
type WorkerInvoker interface {
	InvokeWorker(ctx context.Context, start bool) error
}

// Handlers adapts the entry operation, the worker driver and the Reprocess Step
// to Lambda events. Each function is deployed with one of them.
type Handlers struct {
	starter     Starter
	batches     BatchRunner
	reprocessor Reprocessor
	next        WorkerInvoker
	log         *logrus.Entry
}

// NewHandlers creates the handler set
func NewHandlers(starter Starter, batches BatchRunner, reprocessor Reprocessor, next WorkerInvoker, logger *logrus.Entry) *Handlers {
	return &Handlers{
		starter:     starter,
		batches:     batches,
		reprocessor: reprocessor,
		next:        next,
		log:         logger.WithField("component", "lambda"),
	}
}

// Entry handles an API Gateway request for the entry operation
func (h *Handlers) Entry(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	params := url.Values{}
	for k, vs := range req.MultiValueQueryStringParameters {
		params[k] = append([]string(nil), vs...)
	}
	for k, v := range req.QueryStringParameters {
		if _, ok := params[k]; !ok {
			params.Set(k, v)
		}
	}

	resp := h.starter.Handle(ctx, params)
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(resp.Body()),
	}, nil
}

// Worker runs one poll and re-arms itself while batches keep arriving. An empty
// poll ends the chain. Failures are returned so the platform retries the invocation.
func (h *Handlers) Worker(ctx context.Context, ev WorkerEvent) error {
	b, err := h.batches.RunOnce(ctx, ev.Start)
	if err != nil {
		h.log.Errorf("Worker iteration failed: %v", err)
		return err
	}
	if b.Received == 0 {
		h.log.Info("Queue empty, worker chain ends")
		return nil
	}
	if err := h.next.InvokeWorker(ctx, false); err != nil {
		h.log.Errorf("Re-arming worker failed: %v", err)
		return err
	}
	return nil
}

// Reprocess handles an asynchronous Reprocess Step invocation. Invalid input is
// reported in the result rather than as an error, so the platform does not retry it.
func (h *Handlers) Reprocess(ctx context.Context, req models.ReprocessRequest) (models.Result, error) {
	res, err := h.reprocessor.Reprocess(ctx, req)
	if errors.Is(err, utils.ErrInvalidInput) {
		h.log.WithFields(logrus.Fields{"path": req.Path, "content_type": req.ContentType}).Warnf("Rejected reprocess request: %v", err)
		return models.BadRequestResult(), nil
	}
	if err != nil {
		return models.Result{StatusCode: http.StatusInternalServerError, Message: models.MessageServerError}, err
	}
	return res, nil
}
