package tcp

import (
	"context"
	"log/slog"
)

// levelTrace is finer than slog.LevelDebug, used for per-segment tracing
// that would otherwise be too noisy for ordinary debug logging.
const levelTrace = slog.LevelDebug - 2

// logger is embedded by controlBlock and Engine to provide consistent,
// low-overhead structured logging. A nil log discards everything.
type logger struct {
	log *slog.Logger
}

func (l *logger) logEnabled(lvl slog.Level) bool {
	return l.log != nil && l.log.Handler().Enabled(context.Background(), lvl)
}

func (l *logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if l.log == nil {
		return
	}
	l.log.LogAttrs(context.Background(), lvl, msg, attrs...)
}

func (l *logger) trace(msg string, attrs ...slog.Attr) { l.logAttrs(levelTrace, msg, attrs...) }
func (l *logger) debug(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelDebug, msg, attrs...) }
func (l *logger) info(msg string, attrs ...slog.Attr)  { l.logAttrs(slog.LevelInfo, msg, attrs...) }
func (l *logger) logerr(msg string, attrs ...slog.Attr) {
	l.logAttrs(slog.LevelError, msg, attrs...)
}
