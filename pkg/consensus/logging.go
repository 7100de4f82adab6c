package consensus

import (
	"context"
	"io"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// newHCLogger returns an hclog logger for raft internals whose records are
// forwarded to logger. hclog's own output is discarded.
func newHCLogger(logger *slog.Logger, name string) hclog.InterceptLogger {
	level := hclog.Info
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		level = hclog.Debug
	}
	l := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: io.Discard,
	})
	l.RegisterSink(&hclogSink{logger: logger.With("component", "raft")})
	return l
}

// hclogSink adapts hclog records to slog.
type hclogSink struct {
	logger *slog.Logger
}

func (s *hclogSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	lvl := slogLevel(level)
	if level == hclog.Off || !s.logger.Enabled(context.Background(), lvl) {
		return
	}
	s.logger.Log(context.Background(), lvl, msg, append([]any{"subsystem", name}, args...)...)
}

func slogLevel(level hclog.Level) slog.Level {
	switch level {
	case hclog.Trace:
		return slog.LevelDebug - 4
	case hclog.Debug:
		return slog.LevelDebug
	case hclog.Warn:
		return slog.LevelWarn
	case hclog.Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
