package crawler

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// ReprocessInvoker hands a Reprocess Step to another execution unit and returns
// without waiting for it
type ReprocessInvoker interface {
	InvokeReprocess(ctx context.Context, req models.ReprocessRequest) error
}

// ReprocessFunc runs a Reprocess Step
type ReprocessFunc func(ctx context.Context, req models.ReprocessRequest) (models.Result, error)

// LocalInvoker runs Reprocess Steps on goroutines of the current process
type LocalInvoker struct {
	run ReprocessFunc
	log *logrus.Entry

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
}

// NewLocalInvoker creates an invoker that calls run in the background
func NewLocalInvoker(run ReprocessFunc, logger *logrus.Entry) *LocalInvoker {
	i := &LocalInvoker{run: run, log: logger}
	i.idle = sync.NewCond(&i.mu)
	return i
}

// InvokeReprocess implements ReprocessInvoker. The step is detached from ctx's
// cancellation so it outlives the walk that scheduled it.
func (i *LocalInvoker) InvokeReprocess(ctx context.Context, req models.ReprocessRequest) error {
	i.mu.Lock()
	i.pending++
	i.mu.Unlock()

	go func() {
		defer i.done()
		if _, err := i.run(context.WithoutCancel(ctx), req); err != nil {
			i.log.WithFields(logrus.Fields{
				"path":     req.Path,
				"depth":    req.Depth,
				"crawl_id": req.CrawlID,
				"category": utils.CategorizeError(err),
			}).Errorf("Background reprocess failed: %v", err)
		}
	}()
	return nil
}

func (i *LocalInvoker) done() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending--
	if i.pending == 0 {
		i.idle.Broadcast()
	}
}

// Settle blocks until no background step is running and reports whether any was
func (i *LocalInvoker) Settle() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	had := i.pending > 0
	for i.pending > 0 {
		i.idle.Wait()
	}
	return had
}
