package output

import (
	"context"
	"log/slog"

	"libdb.so/beatglow/internal/led"
)

// Log is a sink that logs color changes at debug level.
type Log struct {
	logger *slog.Logger
	box    *mailbox
	last   led.RGBColor
	seen   bool
}

// NewLog creates a new log sink.
func NewLog(logger *slog.Logger) *Log {
	return &Log{
		logger: logger.With("output", "log"),
		box:    newMailbox(),
	}
}

// Name implements Sink.
func (l *Log) Name() string { return "log" }

// SetColor implements Sink.
func (l *Log) SetColor(c led.RGBColor) { l.box.Put(c) }

// Run logs color changes until ctx is done.
func (l *Log) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.flush()
			return ctx.Err()
		case <-l.box.Notify():
			l.flush()
		}
	}
}

func (l *Log) flush() {
	c, ok := l.box.Take()
	if !ok || (l.seen && c == l.last) {
		return
	}

	l.logger.Debug("color changed", "color", c.Hex())
	l.last = c
	l.seen = true
}
