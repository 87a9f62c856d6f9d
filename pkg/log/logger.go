package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a configured logrus.Logger with the given log level.
// An unknown level keeps info and logs a warning.
func NewLogger(levelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", levelStr, err)
		return log
	}
	log.SetLevel(level)
	return log
}

// Discard returns an entry that drops everything, for tests and disabled components
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
