package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// RedisRecorder keeps one hash per crawl run, field per outcome, shared by all workers
type RedisRecorder struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logrus.Entry
}

// NewRedisRecorder connects to addr and verifies the connection
func NewRedisRecorder(ctx context.Context, addr, prefix string, ttl time.Duration, logger *logrus.Entry) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", utils.ErrDependency, addr, err)
	}
	return &RedisRecorder{client: client, prefix: prefix, ttl: ttl, log: logger}, nil
}

// Record implements Recorder. The run's TTL is refreshed on every write.
func (r *RedisRecorder) Record(ctx context.Context, crawlID string, outcome models.Outcome) {
	if crawlID == "" || !outcome.IsValid() {
		return
	}
	key := r.prefix + crawlID
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, string(outcome), 1)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{"crawl_id": crawlID, "outcome": outcome}).Warnf("Failed to record run status: %v", err)
	}
}

// Get implements Recorder
func (r *RedisRecorder) Get(ctx context.Context, crawlID string) (Snapshot, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.prefix+crawlID).Result()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: redis hgetall: %w", utils.ErrDependency, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, false, nil
	}
	counts := make(map[string]int64, len(fields))
	for k, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: counter %s=%q: %w", utils.ErrParsing, k, v, err)
		}
		counts[k] = n
	}
	return newSnapshot(crawlID, counts), true, nil
}

// Close implements Recorder
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
