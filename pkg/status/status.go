// Package status keeps per-crawl-run outcome counters for progress reporting.
// Recording is best-effort: a failing backend is logged and never fails a step.
package status

import (
	"context"
	"sync"

	"sitemirror/pkg/models"
)

// Snapshot is the progress of one crawl run
type Snapshot struct {
	CrawlID string           `json:"crawlId"`
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
}

// Recorder counts step outcomes per crawl run
type Recorder interface {
	Record(ctx context.Context, crawlID string, outcome models.Outcome)
	Get(ctx context.Context, crawlID string) (Snapshot, bool, error)
	Close() error
}

func newSnapshot(crawlID string, counts map[string]int64) Snapshot {
	s := Snapshot{CrawlID: crawlID, Counts: counts}
	for _, n := range counts {
		s.Total += n
	}
	return s
}

// Nop discards everything
type Nop struct{}

func (Nop) Record(context.Context, string, models.Outcome) {}

func (Nop) Get(context.Context, string) (Snapshot, bool, error) { return Snapshot{}, false, nil }

func (Nop) Close() error { return nil }

// MemoryRecorder keeps counters in process memory
type MemoryRecorder struct {
	mu   sync.Mutex
	runs map[string]map[string]int64
}

// NewMemoryRecorder creates an empty recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]map[string]int64)}
}

// Record implements Recorder
func (r *MemoryRecorder) Record(_ context.Context, crawlID string, outcome models.Outcome) {
	if crawlID == "" || !outcome.IsValid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	counts, ok := r.runs[crawlID]
	if !ok {
		counts = make(map[string]int64)
		r.runs[crawlID] = counts
	}
	counts[string(outcome)]++
}

// Get implements Recorder
func (r *MemoryRecorder) Get(_ context.Context, crawlID string) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts, ok := r.runs[crawlID]
	if !ok {
		return Snapshot{}, false, nil
	}
	cp := make(map[string]int64, len(counts))
	for k, v := range counts {
		cp[k] = v
	}
	return newSnapshot(crawlID, cp), true, nil
}

// Close implements Recorder
func (r *MemoryRecorder) Close() error { return nil }
