package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/fetch"
	"sitemirror/pkg/models"
	"sitemirror/pkg/parse"
	"sitemirror/pkg/process"
	"sitemirror/pkg/status"
	"sitemirror/pkg/storage"
	"sitemirror/pkg/utils"
)

// Crawler runs Crawl Steps and Reprocess Steps for one target host.
// It holds no per-task state; any number of steps may run concurrently.
type Crawler struct {
	cfg     *config.AppConfig
	store   storage.ObjectStore
	fetcher *fetch.Fetcher
	scraper *process.Scraper
	fanout  *Fanout
	invoker ReprocessInvoker
	status  status.Recorder
	now     func() time.Time
	log     *logrus.Entry
}

// Option customises a Crawler
type Option func(*Crawler)

// WithInvoker sets where Reprocess Steps are sent. The default runs them on local goroutines.
func WithInvoker(inv ReprocessInvoker) Option {
	return func(c *Crawler) { c.invoker = inv }
}

// WithRecorder sets the run status recorder
func WithRecorder(r status.Recorder) Option {
	return func(c *Crawler) { c.status = r }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// New creates a Crawler
func New(cfg *config.AppConfig, store storage.ObjectStore, fetcher *fetch.Fetcher, fanout *Fanout, logger *logrus.Entry, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		scraper: process.NewScraper(cfg.TargetURL()),
		fanout:  fanout,
		status:  status.Nop{},
		now:     time.Now,
		log:     logger.WithField("component", "crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invoker == nil {
		c.invoker = NewLocalInvoker(c.Reprocess, c.log)
	}
	return c
}

// Settle waits for Reprocess Steps running in this process and reports whether there were any
func (c *Crawler) Settle() bool {
	if local, ok := c.invoker.(*LocalInvoker); ok {
		return local.Settle()
	}
	return false
}

// Walk runs the Crawl Step for task
func (c *Crawler) Walk(ctx context.Context, task models.CrawlTask) (res models.Result, err error) {
	taskLog := c.log.WithFields(logrus.Fields{"path": task.Path, "depth": task.Depth, "crawl_id": task.CrawlID})
	start := time.Now()
	defer c.finish(ctx, task.CrawlID, "walk", taskLog, start, &res, &err)

	if d := Guard(task.Depth, task.Path, task.CrawlID); d == DecisionFinish {
		return models.FinishResult(), nil
	} else if d == DecisionBadRequest {
		return models.BadRequestResult(), nil
	}

	key := parse.StorageKey(task.Path)
	var (
		meta  models.ObjectMeta
		found bool
	)
	if !task.Force {
		meta, found, err = c.store.Head(ctx, key)
		if err != nil {
			return models.Result{}, fmt.Errorf("%w: head %s: %w", utils.ErrDependency, key, err)
		}
	}

	decision := Decide(task, meta, found, c.now())
	taskLog.WithField("decision", decision).Debug("Freshness decided")

	var headers http.Header
	switch decision {
	case DecisionSatisfied:
		return models.AcceptedResult(models.OutcomeSatisfied), nil
	case DecisionReprocess:
		return c.delegate(ctx, task, meta.ContentType)
	case DecisionFetchConditional:
		headers = fetch.ConditionalHeaders(meta)
	}

	return c.fetchAndStore(ctx, task, key, headers, meta, taskLog)
}

func (c *Crawler) fetchAndStore(ctx context.Context, task models.CrawlTask, key string, headers http.Header, cached models.ObjectMeta, taskLog *logrus.Entry) (models.Result, error) {
	resp, err := c.fetcher.Get(ctx, task.Path, headers)
	if resp != nil {
		defer resp.Body.Close()
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
			taskLog.WithField("status_code", resp.StatusCode).Warn("Origin refused object, skipping")
			return models.AcceptedResult(models.OutcomeSkipped), nil
		}
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("%w: fetch %s: %w", utils.ErrTransport, task.Path, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		if models.IsScrapable(cached.ContentType) {
			return c.delegate(ctx, task, cached.ContentType)
		}
		return models.AcceptedResult(models.OutcomeNotModified), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Result{}, fmt.Errorf("%w: %w: %s: %w", utils.ErrTransport, utils.ErrResponseBodyRead, task.Path, err)
	}

	meta := fetch.MetaFromResponse(resp.Header, task.Depth, task.CrawlID, c.now())
	var paths []string
	if models.IsScrapable(meta.ContentType) {
		rewritten := c.scraper.Scrape(meta.ContentType, string(body), task.Path)
		body = []byte(rewritten.Body)
		paths = rewritten.Paths
	}

	if err := c.store.Put(ctx, models.StoredObject{Key: key, Body: body, Meta: meta}); err != nil {
		return models.Result{}, fmt.Errorf("%w: store %s: %w", utils.ErrDependency, key, err)
	}
	taskLog.WithFields(logrus.Fields{"key": key, "content_type": meta.ContentType, "bytes": len(body), "links": len(paths)}).Info("Stored object")

	res := models.AcceptedResult(models.OutcomeStored)
	if task.Depth-1 > 0 {
		res.Queued = c.fanout.Enqueue(ctx, paths, task.Depth-1, task.CrawlID)
	}
	return res, nil
}

// delegate sends the task's links to be re-derived from the stored copy out of band
func (c *Crawler) delegate(ctx context.Context, task models.CrawlTask, contentType string) (models.Result, error) {
	req := models.ReprocessRequest{Path: task.Path, Depth: task.Depth, CrawlID: task.CrawlID, ContentType: contentType}
	if err := c.invoker.InvokeReprocess(ctx, req); err != nil {
		return models.Result{}, fmt.Errorf("%w: reprocess %s: %w", utils.ErrInvoke, task.Path, err)
	}
	return models.AcceptedResult(models.OutcomeReprocess), nil
}

// Reprocess runs the Reprocess Step: links are re-derived from the stored body
// without fetching and without touching its metadata
func (c *Crawler) Reprocess(ctx context.Context, req models.ReprocessRequest) (res models.Result, err error) {
	taskLog := c.log.WithFields(logrus.Fields{"path": req.Path, "depth": req.Depth, "crawl_id": req.CrawlID})
	start := time.Now()
	defer c.finish(ctx, req.CrawlID, "reprocess", taskLog, start, &res, &err)

	if d := Guard(req.Depth, req.Path, req.CrawlID); d == DecisionFinish {
		return models.FinishResult(), nil
	} else if d == DecisionBadRequest {
		return models.BadRequestResult(), nil
	}
	if !models.IsScrapable(req.ContentType) {
		return models.Result{}, fmt.Errorf("%w: cannot reprocess content type %q", utils.ErrInvalidInput, req.ContentType)
	}

	key := parse.StorageKey(req.Path)
	body, err := c.store.Get(ctx, key)
	if err != nil {
		return models.Result{}, fmt.Errorf("reprocess %s: %w", key, err)
	}

	scraped := c.scraper.Scrape(req.ContentType, string(body), req.Path)
	res = models.AcceptedResult(models.OutcomeRescraped)
	if req.Depth-1 > 0 {
		res.Queued = c.fanout.Enqueue(ctx, scraped.Paths, req.Depth-1, req.CrawlID)
	}
	return res, nil
}

// finish recovers panics, logs the step and records its outcome
func (c *Crawler) finish(ctx context.Context, crawlID, step string, taskLog *logrus.Entry, start time.Time, res *models.Result, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic in %s: %v", step, r)
		taskLog.WithFields(logrus.Fields{
			"panic_info":  r,
			"stack_trace": string(debug.Stack()),
		}).Error("PANIC recovered")
	}

	fields := logrus.Fields{"step": step, "duration": time.Since(start).String()}
	if *err != nil {
		res.Outcome = models.OutcomeFailed
		fields["category"] = utils.CategorizeError(*err)
		taskLog.WithFields(fields).Errorf("Step failed: %v", *err)
	} else {
		fields["outcome"] = res.Outcome
		fields["queued"] = res.Queued
		taskLog.WithFields(fields).Debug("Step completed")
	}
	c.status.Record(context.WithoutCancel(ctx), crawlID, res.Outcome)
}
