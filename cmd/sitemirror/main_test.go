package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDoValidate_Valid(t *testing.T) {
	path := writeConfig(t, `
target_host: "https://example.com/ignored/path"
worker:
  processes: 3
  threads_per_worker: 5
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(path, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Target: https://example.com")
	assert.Contains(t, stdout.String(), "Store: badger  Queue: memory  Status: memory")
	assert.Contains(t, stdout.String(), "Workers: 3 x 5")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_MissingTarget(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(path, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "target_host")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "read config")
}

func TestRootCmd_Version(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "sitemirror 1.0.0")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "crawl", "worker", "lambda", "validate", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestCrawlCmd_EndToEnd(t *testing.T) {
	origin := newTestOrigin(t)
	path := writeConfig(t, "target_host: \""+origin.URL+"\"\n"+
		"log_level: error\n"+
		"store:\n  state_dir: \""+filepath.ToSlash(t.TempDir())+"\"\n"+
		"worker:\n  processes: 2\n  delay: 1ms\n  start_delay: 1ms\n")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"crawl", "--config", path, "--path", "/", "--depth", "2", "--crawl-id", "e2e"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `{"message":"Accepted","crawlId":"e2e"}`)
	assert.Contains(t, out.String(), "Crawl e2e finished: 3 steps")
}
