package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sitemirror/pkg/config"
	"sitemirror/pkg/models"
	"sitemirror/pkg/queue"
	"sitemirror/pkg/utils"
)

// Processor runs the Crawl Step for one delivered task
type Processor interface {
	Walk(ctx context.Context, task models.CrawlTask) (models.Result, error)
}

// Settler is implemented by processors that run work in the background. Settle
// waits for it and reports whether anything was still running, in which case the
// queue may have been refilled.
type Settler interface {
	Settle() bool
}

// Batch counts what one poll did
type Batch struct {
	Received  int
	Succeeded int
	Failed    int
}

// Summary is the outcome of a worker run
type Summary struct {
	Worker    int
	Polls     int
	Processed int
	Failed    int
	Duration  time.Duration
	Err       error
}

// Driver polls the queue and feeds tasks to a Processor. A message is deleted only
// after its step succeeded; failed messages are released for redelivery.
type Driver struct {
	id    int
	queue queue.Queue
	proc  Processor
	cfg   config.WorkerConfig
	sleep func(ctx context.Context, d time.Duration) error
	log   *logrus.Entry
}

// NewDriver creates a Driver
func NewDriver(id int, q queue.Queue, proc Processor, cfg config.WorkerConfig, logger *logrus.Entry) *Driver {
	return &Driver{
		id:    id,
		queue: q,
		proc:  proc,
		cfg:   cfg,
		sleep: sleepCtx,
		log:   logger.WithFields(logrus.Fields{"component": "worker", "worker_id": id}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce waits the poll delay, receives one batch and processes it. start adds
// the start delay so a batch sent just before launch has become visible.
// Steps already started are not cancelled by ctx.
func (d *Driver) RunOnce(ctx context.Context, start bool) (Batch, error) {
	delay := d.cfg.Delay
	if start {
		delay += d.cfg.StartDelay
	}
	if err := d.sleep(ctx, delay); err != nil {
		return Batch{}, err
	}

	msgs, err := d.queue.Receive(ctx, d.cfg.ThreadsPerWorker)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: receive: %w", utils.ErrDependency, err)
	}
	if len(msgs) == 0 {
		d.log.Debug("Queue empty")
		return Batch{}, nil
	}

	stepCtx := context.WithoutCancel(ctx)
	var (
		g         errgroup.Group
		succeeded atomic.Int64
	)
	g.SetLimit(max(d.cfg.ThreadsPerWorker, 1))
	for _, msg := range msgs {
		g.Go(func() error {
			if d.process(stepCtx, msg) {
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	b := Batch{Received: len(msgs), Succeeded: int(succeeded.Load())}
	b.Failed = b.Received - b.Succeeded
	d.log.WithFields(logrus.Fields{"received": b.Received, "succeeded": b.Succeeded, "failed": b.Failed}).Info("Batch processed")
	return b, nil
}

// process runs one message and settles it with the queue
func (d *Driver) process(ctx context.Context, msg queue.Message) (ok bool) {
	taskLog := d.log.WithFields(logrus.Fields{"path": msg.Task.Path, "depth": msg.Task.Depth, "crawl_id": msg.Task.CrawlID})

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic processing %s: %v", msg.Task.Path, r)
				taskLog.WithFields(logrus.Fields{
					"panic_info":  r,
					"stack_trace": string(debug.Stack()),
				}).Error("PANIC recovered")
			}
		}()
		_, err = d.proc.Walk(ctx, msg.Task)
	}()

	if err != nil {
		if relErr := d.queue.Release(ctx, msg.Receipt); relErr != nil {
			taskLog.Errorf("Release failed, message returns after its visibility timeout: %v", relErr)
		} else {
			taskLog.WithField("category", utils.CategorizeError(err)).Warn("Task failed, released for redelivery")
		}
		return false
	}
	if delErr := d.queue.Delete(ctx, msg.Receipt); delErr != nil {
		taskLog.Errorf("Delete failed, task will be redelivered: %v", delErr)
	}
	return true
}

// Run polls until the queue has been observed empty max_empty_polls times in a row
// or ctx is cancelled. An empty poll while background steps were still running
// does not count, since those steps may have enqueued more work.
func (d *Driver) Run(ctx context.Context, start bool) Summary {
	began := time.Now()
	sum := Summary{Worker: d.id}
	limit := max(d.cfg.MaxEmptyPolls, 1)
	settler, _ := d.proc.(Settler)

	for empty := 0; empty < limit; {
		b, err := d.RunOnce(ctx, start && sum.Polls == 0)
		sum.Polls++
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			sum.Err = err
			d.log.WithField("category", utils.CategorizeError(err)).Errorf("Poll failed: %v", err)
			empty++
			continue
		}
		sum.Processed += b.Received
		sum.Failed += b.Failed

		if b.Received > 0 {
			empty = 0
			continue
		}
		if settler != nil && settler.Settle() {
			d.log.Debug("Background steps settled, polling again")
			empty = 0
			continue
		}
		empty++
	}

	sum.Duration = time.Since(began)
	d.log.WithFields(logrus.Fields{"polls": sum.Polls, "processed": sum.Processed, "failed": sum.Failed, "duration": sum.Duration}).Info("Worker finished")
	return sum
}
