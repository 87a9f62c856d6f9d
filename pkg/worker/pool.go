package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/queue"
)

// Pool runs several drivers against the same queue in this process
type Pool struct {
	cfg   config.WorkerConfig
	queue queue.Queue
	proc  Processor
	log   *logrus.Entry

	launchMu sync.Mutex
	running  bool
	pending  bool
	wg       sync.WaitGroup

	results   []Summary
	resultsMu sync.Mutex

	// Coordination
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool. Drivers stop when Stop is called.
func NewPool(q queue.Queue, proc Processor, cfg config.WorkerConfig, logger *logrus.Entry) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		queue:  q,
		proc:   proc,
		log:    logger.WithField("component", "worker_pool"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run starts n drivers in parallel and waits for all of them
func (p *Pool) Run(ctx context.Context, n int, start bool) []Summary {
	if n <= 0 {
		n = 1
	}
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	release := context.AfterFunc(p.ctx, stop)
	defer release()

	startTime := time.Now()
	p.log.Infof("Starting %d workers", n)

	results := make([]Summary, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id] = NewDriver(id, p.queue, p.proc, p.cfg, p.log).Run(runCtx, start)
		}(i)
	}
	wg.Wait()

	p.resultsMu.Lock()
	p.results = append(p.results, results...)
	p.resultsMu.Unlock()

	p.logSummary(results, time.Since(startTime))
	return results
}

// Launch starts n drivers in the background with the start flag set. A launch
// during a run does not add drivers; it makes the pool poll again once the
// current run ends, so tasks queued while drivers were winding down are not lost.
func (p *Pool) Launch(ctx context.Context, n int) error {
	p.launchMu.Lock()
	if p.running {
		p.pending = true
		p.launchMu.Unlock()
		p.log.Debug("Workers already running, not launching more")
		return nil
	}
	p.running = true
	p.wg.Add(1)
	p.launchMu.Unlock()

	go func() {
		defer p.wg.Done()
		for {
			p.Run(context.WithoutCancel(ctx), n, true)

			p.launchMu.Lock()
			if !p.pending || p.ctx.Err() != nil {
				p.running = false
				p.pending = false
				p.launchMu.Unlock()
				return
			}
			p.pending = false
			p.launchMu.Unlock()
		}
	}()
	return nil
}

// Running reports whether a launched run is in progress
func (p *Pool) Running() bool {
	p.launchMu.Lock()
	defer p.launchMu.Unlock()
	return p.running
}

// Wait blocks until every launched run has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop cancels all drivers; steps in flight run to completion
func (p *Pool) Stop() {
	p.log.Info("Stopping workers...")
	p.cancel()
}

// Results returns the summaries of every finished worker
func (p *Pool) Results() []Summary {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	return append([]Summary(nil), p.results...)
}

func (p *Pool) logSummary(results []Summary, totalDuration time.Duration) {
	var processed, failed int
	for _, r := range results {
		processed += r.Processed
		failed += r.Failed
		entry := p.log.WithFields(logrus.Fields{"worker_id": r.Worker, "polls": r.Polls, "processed": r.Processed, "failed": r.Failed, "duration": r.Duration})
		if r.Err != nil {
			entry.Warnf("Worker saw poll errors, last: %v", r.Err)
		} else {
			entry.Debug("Worker result")
		}
	}
	p.log.WithFields(logrus.Fields{
		"workers":   len(results),
		"processed": processed,
		"failed":    failed,
		"duration":  totalDuration,
	}).Info("All workers finished")
}
