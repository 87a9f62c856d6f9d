package lambdafn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemirror/pkg/config"
	"sitemirror/pkg/entry"
	"sitemirror/pkg/log"
	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
	"sitemirror/pkg/worker"
)

type fakeLambda struct {
	calls  []*lambda.InvokeInput
	err    error
	fnErr  *string
	failAt int
}

func (f *fakeLambda) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil && len(f.calls) >= f.failAt {
		return nil, f.err
	}
	return &lambda.InvokeOutput{StatusCode: 202, FunctionError: f.fnErr}, nil
}

func lambdaConfig() config.LambdaConfig {
	return config.LambdaConfig{WorkerFunction: "mirror-worker", ReprocessFunction: "mirror-reprocess"}
}

func TestInvoker_Reprocess(t *testing.T) {
	client := &fakeLambda{}
	inv := NewInvoker(client, lambdaConfig(), log.Discard())

	req := models.ReprocessRequest{Path: "/docs/", Depth: 2, CrawlID: "run", ContentType: "text/html"}
	require.NoError(t, inv.InvokeReprocess(context.Background(), req))

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, "mirror-reprocess", aws.ToString(call.FunctionName))
	assert.Equal(t, types.InvocationTypeEvent, call.InvocationType)

	var got models.ReprocessRequest
	require.NoError(t, json.Unmarshal(call.Payload, &got))
	assert.Equal(t, req, got)
}

func TestInvoker_Launch(t *testing.T) {
	client := &fakeLambda{}
	inv := NewInvoker(client, lambdaConfig(), log.Discard())

	require.NoError(t, inv.Launch(context.Background(), 3))
	require.Len(t, client.calls, 3)
	for _, call := range client.calls {
		assert.Equal(t, "mirror-worker", aws.ToString(call.FunctionName))
		assert.JSONEq(t, `{"start":true}`, string(call.Payload))
	}

	require.NoError(t, inv.InvokeWorker(context.Background(), false))
	assert.JSONEq(t, `{}`, string(client.calls[3].Payload))
}

func TestInvoker_Errors(t *testing.T) {
	t.Run("client error stops launch", func(t *testing.T) {
		client := &fakeLambda{err: errors.New("throttled"), failAt: 2}
		inv := NewInvoker(client, lambdaConfig(), log.Discard())

		err := inv.Launch(context.Background(), 3)
		assert.True(t, errors.Is(err, utils.ErrInvoke))
		assert.Len(t, client.calls, 2)
	})

	t.Run("function error", func(t *testing.T) {
		client := &fakeLambda{fnErr: aws.String("Unhandled")}
		inv := NewInvoker(client, lambdaConfig(), log.Discard())

		err := inv.InvokeWorker(context.Background(), false)
		assert.True(t, errors.Is(err, utils.ErrInvoke))
		assert.Contains(t, err.Error(), "Unhandled")
	})

	t.Run("unconfigured function", func(t *testing.T) {
		inv := NewInvoker(&fakeLambda{}, config.LambdaConfig{}, log.Discard())

		assert.True(t, errors.Is(inv.InvokeReprocess(context.Background(), models.ReprocessRequest{}), utils.ErrInvoke))
	})
}

type fakeStarter struct {
	params url.Values
}

func (s *fakeStarter) Handle(_ context.Context, params url.Values) entry.Response {
	s.params = params
	return entry.Response{StatusCode: http.StatusOK, Message: models.MessageAccepted, CrawlID: "run"}
}

type fakeBatches struct {
	batch worker.Batch
	err   error
	start []bool
}

func (f *fakeBatches) RunOnce(_ context.Context, start bool) (worker.Batch, error) {
	f.start = append(f.start, start)
	return f.batch, f.err
}

type fakeNext struct {
	calls int
	err   error
}

func (f *fakeNext) InvokeWorker(context.Context, bool) error {
	f.calls++
	return f.err
}

type fakeReprocessor struct {
	err error
}

func (f fakeReprocessor) Reprocess(context.Context, models.ReprocessRequest) (models.Result, error) {
	if f.err != nil {
		return models.Result{}, f.err
	}
	return models.AcceptedResult(models.OutcomeRescraped), nil
}

func TestHandlers_Entry(t *testing.T) {
	starter := &fakeStarter{}
	h := NewHandlers(starter, &fakeBatches{}, fakeReprocessor{}, &fakeNext{}, log.Discard())

	resp, err := h.Entry(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"path": "/docs/", "depth": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Accepted","crawlId":"run"}`, resp.Body)
	assert.Equal(t, "/docs/", starter.params.Get("path"))
	assert.Equal(t, "2", starter.params.Get("depth"))
}

func TestHandlers_Worker(t *testing.T) {
	t.Run("non-empty batch re-arms", func(t *testing.T) {
		batches := &fakeBatches{batch: worker.Batch{Received: 3, Succeeded: 3}}
		next := &fakeNext{}
		h := NewHandlers(&fakeStarter{}, batches, fakeReprocessor{}, next, log.Discard())

		require.NoError(t, h.Worker(context.Background(), WorkerEvent{Start: true}))
		assert.Equal(t, []bool{true}, batches.start)
		assert.Equal(t, 1, next.calls)
	})

	t.Run("empty poll ends chain", func(t *testing.T) {
		next := &fakeNext{}
		h := NewHandlers(&fakeStarter{}, &fakeBatches{}, fakeReprocessor{}, next, log.Discard())

		require.NoError(t, h.Worker(context.Background(), WorkerEvent{}))
		assert.Zero(t, next.calls)
	})

	t.Run("receive failure surfaces", func(t *testing.T) {
		next := &fakeNext{}
		h := NewHandlers(&fakeStarter{}, &fakeBatches{err: utils.ErrQueue}, fakeReprocessor{}, next, log.Discard())

		assert.ErrorIs(t, h.Worker(context.Background(), WorkerEvent{}), utils.ErrQueue)
		assert.Zero(t, next.calls)
	})

	t.Run("re-arm failure surfaces", func(t *testing.T) {
		next := &fakeNext{err: utils.ErrInvoke}
		h := NewHandlers(&fakeStarter{}, &fakeBatches{batch: worker.Batch{Received: 1}}, fakeReprocessor{}, next, log.Discard())

		assert.ErrorIs(t, h.Worker(context.Background(), WorkerEvent{}), utils.ErrInvoke)
	})
}

func TestHandlers_Reprocess(t *testing.T) {
	h := NewHandlers(&fakeStarter{}, &fakeBatches{}, fakeReprocessor{}, &fakeNext{}, log.Discard())
	res, err := h.Reprocess(context.Background(), models.ReprocessRequest{Path: "/", Depth: 1, CrawlID: "r", ContentType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRescraped, res.Outcome)

	h = NewHandlers(&fakeStarter{}, &fakeBatches{}, fakeReprocessor{err: utils.ErrStoreMiss}, &fakeNext{}, log.Discard())
	res, err = h.Reprocess(context.Background(), models.ReprocessRequest{})
	assert.ErrorIs(t, err, utils.ErrStoreMiss)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	unsupported := fmt.Errorf("%w: cannot reprocess content type %q", utils.ErrInvalidInput, "image/png")
	h = NewHandlers(&fakeStarter{}, &fakeBatches{}, fakeReprocessor{err: unsupported}, &fakeNext{}, log.Discard())
	res, err = h.Reprocess(context.Background(), models.ReprocessRequest{Path: "/a.png", Depth: 1, CrawlID: "r", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, models.BadRequestResult(), res)
}
