//go:build !(rp2040 || rp2350)

package logx

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Config holds logger configuration.
type Config struct {
	Level     Level
	Format    string // "json" or "text"
	Output    io.Writer
	Component string
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

type slogLogger struct {
	logger *slog.Logger
	level  *LevelVar
}

// New creates a slog-backed logger. The returned LevelVar adjusts the level
// of this logger and every logger derived from it.
func New(cfg Config) (Logger, *LevelVar) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	lv := &LevelVar{}
	lv.Set(cfg.Level)

	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		h = slog.NewTextHandler(cfg.Output, opts)
	}
	l := &slogLogger{logger: slog.New(h), level: lv}
	if cfg.Component != "" {
		return l.WithComponent(cfg.Component), lv
	}
	return l, lv
}

func toSlog(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) log(lvl Level, err error, msg string, kv ...any) {
	if !l.level.Enabled(lvl) {
		return
	}
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	l.logger.Log(context.Background(), toSlog(lvl), msg, kv...)
}

func (l *slogLogger) Debug(msg string, kv ...any)            { l.log(LevelDebug, nil, msg, kv...) }
func (l *slogLogger) Info(msg string, kv ...any)             { l.log(LevelInfo, nil, msg, kv...) }
func (l *slogLogger) Warn(err error, msg string, kv ...any)  { l.log(LevelWarn, err, msg, kv...) }
func (l *slogLogger) Error(err error, msg string, kv ...any) { l.log(LevelError, err, msg, kv...) }

func (l *slogLogger) With(kv ...any) Logger {
	return &slogLogger{logger: l.logger.With(kv...), level: l.level}
}

func (l *slogLogger) WithComponent(component string) Logger {
	return l.With("component", component)
}
