package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// badgerLogger redirects badger's internal printf-style logs to slog,
// tagged with the component so they can be filtered out of relay logs.
type badgerLogger struct {
	logger *slog.Logger
}

func NewBadgerLogger(logger *slog.Logger) badger.Logger {
	return &badgerLogger{logger: logger.With("component", "badger")}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *badgerLogger) log(level slog.Level, format string, args ...interface{}) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	// Badger terminates most lines with a newline
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	if msg == "" {
		return
	}
	l.logger.Log(context.Background(), level, msg)
}
