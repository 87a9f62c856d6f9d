package crawler

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sitemirror/pkg/dedup"
	"sitemirror/pkg/models"
	"sitemirror/pkg/queue"
	"sitemirror/pkg/utils"
)

// sendAttempts is the initial send plus one local retry
const sendAttempts = 2

// Fanout turns discovered paths into queued child tasks, suppressing duplicates
// already scheduled from this process
type Fanout struct {
	queue       queue.Queue
	markers     *dedup.Set
	concurrency int
	log         *logrus.Entry
}

// NewFanout creates a Fanout sending at most concurrency messages at once
func NewFanout(q queue.Queue, markers *dedup.Set, concurrency int, logger *logrus.Entry) *Fanout {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fanout{queue: q, markers: markers, concurrency: concurrency, log: logger}
}

// Enqueue schedules every path at depth for crawlID and returns how many tasks were sent.
// A failed send is logged and its marker dropped; it never stops the rest of the batch.
func (f *Fanout) Enqueue(ctx context.Context, paths []string, depth int, crawlID string) int {
	var (
		g    errgroup.Group
		sent atomic.Int64
	)
	g.SetLimit(f.concurrency)

	for _, p := range paths {
		key := dedup.Key(p, depth, crawlID)
		if !f.markers.Mark(key) {
			f.log.WithField("path", p).Debug("Already scheduled, skipping")
			continue
		}
		path, _, _ := strings.Cut(p, "#")
		task := models.CrawlTask{Path: path, Depth: depth, CrawlID: crawlID}

		g.Go(func() error {
			if err := f.send(ctx, task); err != nil {
				f.log.WithFields(logrus.Fields{
					"path":     task.Path,
					"depth":    depth,
					"crawl_id": crawlID,
					"category": utils.CategorizeError(err),
				}).Errorf("Enqueue failed: %v", err)
				f.markers.Forget(key)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load())
}

func (f *Fanout) send(ctx context.Context, task models.CrawlTask) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = f.queue.Send(ctx, task); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		f.log.WithField("attempt", attempt).Warnf("Send of %s failed: %v", task.Path, err)
	}
	return err
}
