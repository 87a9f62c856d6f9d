package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"sitemirror/pkg/utils"
)

// Version is reported by the CLI and used in the default User-Agent
const Version = "1.0.0"

// DefaultUserAgent is sent to the origin unless user_agent is configured
const DefaultUserAgent = "sitemirror/" + Version

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// TargetHost
	if err := c.validateTargetHost(); err != nil {
		return warnings, err
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.DefaultDepth <= 0 {
		c.DefaultDepth = 1
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = 16
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	warnings = append(warnings, c.validateWorker()...)

	storeWarnings, err := c.validateStore()
	warnings = append(warnings, storeWarnings...)
	if err != nil {
		return warnings, err
	}

	queueWarnings, err := c.validateQueue()
	warnings = append(warnings, queueWarnings...)
	if err != nil {
		return warnings, err
	}

	c.validateDedup()

	statusWarnings, err := c.validateStatus()
	warnings = append(warnings, statusWarnings...)
	if err != nil {
		return warnings, err
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

func (c *AppConfig) validateTargetHost() error {
	if strings.TrimSpace(c.TargetHost) == "" {
		return fmt.Errorf("%w: target_host is required", utils.ErrConfigValidation)
	}
	u, err := url.Parse(c.TargetHost)
	if err != nil {
		return fmt.Errorf("%w: target_host %q: %w", utils.ErrConfigValidation, c.TargetHost, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: target_host %q must be an absolute http(s) URL", utils.ErrConfigValidation, c.TargetHost)
	}
	// Paths are always joined onto the bare origin
	c.TargetHost = u.Scheme + "://" + u.Host
	return nil
}

func (c *AppConfig) validateWorker() (warnings []string) {
	w := &c.Worker
	if w.Processes <= 0 {
		warnings = append(warnings, "worker.processes should be > 0, defaulting to 2")
		w.Processes = 2
	}
	if w.ThreadsPerWorker <= 0 {
		warnings = append(warnings, "worker.threads_per_worker should be > 0, defaulting to 10")
		w.ThreadsPerWorker = 10
	}
	// SQS caps a single receive at 10 messages
	if c.Queue.Backend == QueueSQS && w.ThreadsPerWorker > 10 {
		warnings = append(warnings, fmt.Sprintf(
			"worker.threads_per_worker (%d) exceeds the SQS batch limit, using 10", w.ThreadsPerWorker))
		w.ThreadsPerWorker = 10
	}
	if w.Delay < 0 {
		warnings = append(warnings, "worker.delay cannot be negative, setting to 0")
		w.Delay = 0
	}
	if w.Delay == 0 {
		w.Delay = 1 * time.Second
	}
	if w.StartDelay <= 0 {
		w.StartDelay = 3 * time.Second
	}
	if w.MaxEmptyPolls <= 0 {
		w.MaxEmptyPolls = 1
	}
	return warnings
}

func (c *AppConfig) validateStore() (warnings []string, err error) {
	s := &c.Store
	if s.Backend == "" {
		s.Backend = StoreBadger
	}
	switch s.Backend {
	case StoreBadger:
		if s.StateDir == "" {
			warnings = append(warnings, "store.state_dir is empty, defaulting to './mirror_state'")
			s.StateDir = "./mirror_state"
		}
	case StoreS3:
		if s.Bucket == "" {
			return warnings, fmt.Errorf("%w: store.bucket is required for the s3 backend", utils.ErrConfigValidation)
		}
	default:
		return warnings, fmt.Errorf("%w: unknown store.backend %q", utils.ErrConfigValidation, s.Backend)
	}
	return warnings, nil
}

func (c *AppConfig) validateQueue() (warnings []string, err error) {
	q := &c.Queue
	if q.Backend == "" {
		q.Backend = QueueMemory
	}
	if q.Name == "" {
		q.Name = "sitemirror-crawl"
	}
	if q.VisibilityTimeout <= 0 {
		q.VisibilityTimeout = 60 * time.Second
	}
	if q.MaxReceives <= 0 {
		q.MaxReceives = 5
	}
	if q.WaitTime < 0 {
		warnings = append(warnings, "queue.wait_time cannot be negative, setting to 0")
		q.WaitTime = 0
	}
	if q.WaitTime > 20*time.Second {
		warnings = append(warnings, "queue.wait_time exceeds 20s, capping")
		q.WaitTime = 20 * time.Second
	}

	switch q.Backend {
	case QueueMemory:
		warnings = append(warnings, "queue.backend is 'memory': tasks are not shared between processes")
	case QueueSQS:
	case QueueAMQP:
		if q.AMQPURL == "" {
			return warnings, fmt.Errorf("%w: queue.amqp_url is required for the amqp backend", utils.ErrConfigValidation)
		}
	case QueueKafka:
		if len(q.Brokers) == 0 {
			return warnings, fmt.Errorf("%w: queue.brokers is required for the kafka backend", utils.ErrConfigValidation)
		}
		if q.GroupID == "" {
			q.GroupID = "sitemirror-workers"
		}
		// Kafka has no empty-queue signal; a poll ends after this long without messages
		if q.WaitTime == 0 {
			q.WaitTime = 1 * time.Second
		}
	default:
		return warnings, fmt.Errorf("%w: unknown queue.backend %q", utils.ErrConfigValidation, q.Backend)
	}
	return warnings, nil
}

func (c *AppConfig) validateDedup() {
	d := &c.Dedup
	if d.LifeWindow <= 0 {
		d.LifeWindow = 10 * time.Minute
	}
	if d.MaxEntries <= 0 {
		d.MaxEntries = 100000
	}
	if d.HardMaxCacheSizeMB <= 0 {
		d.HardMaxCacheSizeMB = 64
	}
}

func (c *AppConfig) validateStatus() (warnings []string, err error) {
	s := &c.Status
	if s.Backend == "" {
		s.Backend = StatusMemory
	}
	if s.Prefix == "" {
		s.Prefix = "sitemirror:run:"
	}
	if s.TTL <= 0 {
		s.TTL = 24 * time.Hour
	}
	switch s.Backend {
	case StatusNone, StatusMemory:
	case StatusRedis:
		if s.RedisAddr == "" {
			warnings = append(warnings, "status.redis_addr is empty, defaulting to 'localhost:6379'")
			s.RedisAddr = "localhost:6379"
		}
	default:
		return warnings, fmt.Errorf("%w: unknown status.backend %q", utils.ErrConfigValidation, s.Backend)
	}
	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 16
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
