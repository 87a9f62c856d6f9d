package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
target_host: https://docs.example.com
user_agent: mirror-bot/2.0
region: ap-northeast-1
max_retries: 1
worker:
  processes: 4
  threads_per_worker: 5
  delay: 500ms
  start_delay: 2s
store:
  backend: s3
  bucket: docs-mirror
queue:
  backend: sqs
  name: docs-crawl
  wait_time: 5s
dedup:
  life_window: 1m
status:
  backend: none
lambda:
  worker_function: sitemirror-worker
  reprocess_function: sitemirror-reprocess
http_client_settings:
  timeout: 20s
`

func TestParse(t *testing.T) {
	cfg, warnings, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "https://docs.example.com", cfg.TargetHost)
	assert.Equal(t, "mirror-bot/2.0", cfg.UserAgent)
	assert.Equal(t, "ap-northeast-1", cfg.Region)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.Worker.Processes)
	assert.Equal(t, 5, cfg.Worker.ThreadsPerWorker)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.Delay)
	assert.Equal(t, 2*time.Second, cfg.Worker.StartDelay)
	assert.Equal(t, StoreS3, cfg.Store.Backend)
	assert.Equal(t, "docs-mirror", cfg.Store.Bucket)
	assert.Equal(t, QueueSQS, cfg.Queue.Backend)
	assert.Equal(t, "docs-crawl", cfg.Queue.Name)
	assert.Equal(t, 5*time.Second, cfg.Queue.WaitTime)
	assert.Equal(t, time.Minute, cfg.Dedup.LifeWindow)
	assert.Equal(t, StatusNone, cfg.Status.Backend)
	assert.Equal(t, "sitemirror-worker", cfg.Lambda.WorkerFunction)
	assert.Equal(t, "sitemirror-reprocess", cfg.Lambda.ReprocessFunction)
	assert.Equal(t, 20*time.Second, cfg.HTTPClientSettings.Timeout)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, _, err := Parse([]byte("target_host: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestParse_ValidationError(t *testing.T) {
	_, _, err := Parse([]byte("user_agent: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_host is required")
}

func TestLoad(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

		cfg, _, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://docs.example.com", cfg.TargetHost)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})
}
