package queue

import (
	"container/heap"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// taskHeap orders ready tasks by remaining depth (largest first), then by arrival
type taskHeap []*heapItem

type heapItem struct {
	task     models.CrawlTask
	seq      uint64
	receives int
}

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Depth != h[j].task.Depth {
		return h[i].task.Depth > h[j].task.Depth
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*heapItem)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type inflight struct {
	item     *heapItem
	deadline time.Time
}

// DefaultMaxReceives is how often a message is delivered before it is dead-lettered
const DefaultMaxReceives = 5

// MemoryQueue is a process-local Queue for single-process runs and tests
type MemoryQueue struct {
	mu          sync.Mutex
	ready       taskHeap
	inflight    map[string]inflight
	dead        []models.CrawlTask
	seq         uint64
	visibility  time.Duration
	maxReceives int
	closed      bool
	now         func() time.Time
	log         *logrus.Entry
}

var _ Queue = (*MemoryQueue)(nil)

// MemoryOption configures a MemoryQueue
type MemoryOption func(*MemoryQueue)

// WithMaxReceives sets how many deliveries a message gets before it is moved to
// the dead-letter list instead of being redelivered. Values below 1 are ignored.
func WithMaxReceives(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxReceives = n
		}
	}
}

// NewMemoryQueue creates an empty queue. Received messages that are neither deleted
// nor released become visible again after visibility.
func NewMemoryQueue(visibility time.Duration, logger *logrus.Entry, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		inflight:    make(map[string]inflight),
		visibility:  visibility,
		maxReceives: DefaultMaxReceives,
		now:         time.Now,
		log:         logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	heap.Init(&q.ready)
	return q
}

// Send implements Queue
func (q *MemoryQueue) Send(_ context.Context, task models.CrawlTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("%w: send on closed queue", utils.ErrQueue)
	}
	q.seq++
	heap.Push(&q.ready, &heapItem{task: task, seq: q.seq})
	return nil
}

// Receive implements Queue. It never blocks.
func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("%w: receive on closed queue", utils.ErrQueue)
	}

	now := q.now()
	for receipt, f := range q.inflight {
		if now.After(f.deadline) {
			q.log.Debugf("Visibility timeout lapsed for %s", f.item.task.Path)
			delete(q.inflight, receipt)
			q.requeue(f.item)
		}
	}

	var msgs []Message
	for len(msgs) < max && q.ready.Len() > 0 {
		item := heap.Pop(&q.ready).(*heapItem)
		item.receives++
		q.seq++
		receipt := strconv.FormatUint(q.seq, 10)
		q.inflight[receipt] = inflight{item: item, deadline: now.Add(q.visibility)}
		msgs = append(msgs, Message{Task: item.task, Receipt: receipt})
	}
	return msgs, nil
}

// Delete implements Queue
func (q *MemoryQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[receipt]; !ok {
		return fmt.Errorf("%w: unknown receipt %q", utils.ErrQueue, receipt)
	}
	delete(q.inflight, receipt)
	return nil
}

// Release implements Queue. A message that has used up its receives is
// dead-lettered instead of redelivered.
func (q *MemoryQueue) Release(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	f, ok := q.inflight[receipt]
	if !ok {
		return fmt.Errorf("%w: unknown receipt %q", utils.ErrQueue, receipt)
	}
	delete(q.inflight, receipt)
	q.requeue(f.item)
	return nil
}

// requeue puts item back on the ready heap, or on the dead-letter list once it
// reached maxReceives. Callers hold q.mu.
func (q *MemoryQueue) requeue(item *heapItem) {
	if item.receives >= q.maxReceives {
		q.log.WithFields(logrus.Fields{
			"path":     item.task.Path,
			"depth":    item.task.Depth,
			"crawl_id": item.task.CrawlID,
			"receives": item.receives,
		}).Error("Message reached max receives, dead-lettering")
		q.dead = append(q.dead, item.task)
		return
	}
	heap.Push(&q.ready, item)
}

// DeadLetters returns the tasks dropped after reaching max receives
func (q *MemoryQueue) DeadLetters() []models.CrawlTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.CrawlTask(nil), q.dead...)
}

// Len returns the number of ready and in-flight messages
func (q *MemoryQueue) Len() (ready, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len(), len(q.inflight)
}

// Close implements Queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
