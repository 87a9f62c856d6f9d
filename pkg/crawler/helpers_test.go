package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sitemirror/pkg/config"
	"sitemirror/pkg/dedup"
	"sitemirror/pkg/fetch"
	"sitemirror/pkg/log"
	"sitemirror/pkg/models"
	"sitemirror/pkg/queue"
	"sitemirror/pkg/utils"
)

var testNow = time.Unix(1_700_000_000, 0)

// memStore is an ObjectStore kept in a map
type memStore struct {
	mu      sync.Mutex
	objects map[string]models.StoredObject
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]models.StoredObject)}
}

func (s *memStore) Head(_ context.Context, key string) (models.ObjectMeta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj.Meta, ok, nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrStoreMiss, key)
	}
	return obj.Body, nil
}

func (s *memStore) Put(_ context.Context, obj models.StoredObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Key] = obj
	s.puts++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) object(key string) (models.StoredObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// recordingInvoker captures reprocess requests instead of running them
type recordingInvoker struct {
	mu   sync.Mutex
	reqs []models.ReprocessRequest
	err  error
}

func (r *recordingInvoker) InvokeReprocess(_ context.Context, req models.ReprocessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reqs = append(r.reqs, req)
	return nil
}

// origin is a fake target host recording every request it serves
type origin struct {
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []*http.Request
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{routes: make(map[string]http.HandlerFunc)}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.requests = append(o.requests, r.Clone(context.Background()))
		h, ok := o.routes[r.URL.Path]
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(o.server.Close)
	return o
}

func (o *origin) handle(path string, h http.HandlerFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes[path] = h
}

func (o *origin) serve(path, contentType, body string) {
	o.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	})
}

func (o *origin) hits() []*http.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*http.Request(nil), o.requests...)
}

type testEnv struct {
	crawler *Crawler
	store   *memStore
	queue   *queue.MemoryQueue
	origin  *origin
	invoker *recordingInvoker
	cfg     *config.AppConfig
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	o := newOrigin(t)
	cfg := &config.AppConfig{
		TargetHost:        o.server.URL,
		UserAgent:         "sitemirror-test",
		MaxRetries:        0,
		FanoutConcurrency: 4,
		Dedup:             config.DedupConfig{LifeWindow: time.Minute, MaxEntries: 1000, HardMaxCacheSizeMB: 8},
	}
	markers, err := dedup.New(context.Background(), cfg.Dedup)
	require.NoError(t, err)
	t.Cleanup(func() { markers.Close() })

	store := newMemStore()
	q := queue.NewMemoryQueue(time.Minute, log.Discard())
	fetcher := fetch.NewFetcher(&http.Client{Timeout: 5 * time.Second}, cfg, log.Discard())
	fanout := NewFanout(q, markers, cfg.FanoutConcurrency, log.Discard())
	inv := &recordingInvoker{}

	allOpts := append([]Option{WithInvoker(inv), WithClock(func() time.Time { return testNow })}, opts...)
	c := New(cfg, store, fetcher, fanout, log.Discard(), allOpts...)
	return &testEnv{crawler: c, store: store, queue: q, origin: o, invoker: inv, cfg: cfg}
}

// queued drains the queue and returns the tasks sorted by path
func (e *testEnv) queued(t *testing.T) []models.CrawlTask {
	t.Helper()
	msgs, err := e.queue.Receive(context.Background(), 1000)
	require.NoError(t, err)
	tasks := make([]models.CrawlTask, 0, len(msgs))
	for _, m := range msgs {
		tasks = append(tasks, m.Task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Path < tasks[j].Path })
	return tasks
}

// flakyQueue fails the first failures sends, then delegates
type flakyQueue struct {
	*queue.MemoryQueue
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyQueue) Send(ctx context.Context, task models.CrawlTask) error {
	f.mu.Lock()
	f.attempts++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: %v", utils.ErrQueue, errors.New("unavailable"))
	}
	return f.MemoryQueue.Send(ctx, task)
}
