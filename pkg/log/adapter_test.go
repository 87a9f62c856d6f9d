package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestBadgerLogrusAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", &buf)
	adapter := NewBadgerLogrusAdapter(logrus.NewEntry(logger))

	adapter.Errorf("error %s", "test")
	adapter.Warningf("warning %d", 42)
	adapter.Infof("info %v", true)
	adapter.Debugf("trace only")

	out := buf.String()
	assert.Contains(t, out, "error test")
	assert.Contains(t, out, "warning 42")
	assert.Contains(t, out, "info true")
	assert.Contains(t, out, "component=badgerdb")
	assert.NotContains(t, out, "trace only")
}

func TestNewLogger(t *testing.T) {
	t.Run("valid level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("warn", &buf)
		assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("loud", &buf)
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
		assert.Contains(t, buf.String(), "Invalid log level 'loud'")
	})
}

func TestDiscard(t *testing.T) {
	entry := Discard()
	assert.NotPanics(t, func() { entry.Info("dropped") })
}
