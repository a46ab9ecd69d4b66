// Package logx is the firmware's structured logger.
//
// Host builds log through log/slog; MCU builds print tag-formatted lines
// with println so fmt and reflection stay out of the image. Both share the
// Logger interface and a runtime-adjustable level.
package logx

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Level orders log severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts debug, info, warn/warning and error (any case).
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Logger interface for structured logging. kv is alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(err error, msg string, kv ...any)
	Error(err error, msg string, kv ...any)

	With(kv ...any) Logger
	WithComponent(component string) Logger
}

// LevelVar is a level shared by a logger and everything derived from it.
type LevelVar struct{ v atomic.Int32 }

func (lv *LevelVar) Level() Level         { return Level(lv.v.Load()) }
func (lv *LevelVar) Set(l Level)          { lv.v.Store(int32(l)) }
func (lv *LevelVar) Enabled(l Level) bool { return l >= lv.Level() }

// Nop discards everything.
func Nop() Logger { return nop{} }

type nop struct{}

func (nop) Debug(string, ...any)          {}
func (nop) Info(string, ...any)           {}
func (nop) Warn(error, string, ...any)    {}
func (nop) Error(error, string, ...any)   {}
func (n nop) With(...any) Logger          { return n }
func (n nop) WithComponent(string) Logger { return n }

// Limiter suppresses repeats of the same key inside an interval. Used for
// warnings raised from the scan path, which can fire every cycle.
type Limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	buckets map[string]*bucket
}

type bucket struct {
	lim     *rate.Limiter
	dropped uint32
}

// NewLimiter allows one event per key per interval (default 1s).
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{every: rate.Every(interval), buckets: map[string]*bucket{}}
}

// Allow reports whether an event for key may be logged at now, and how many
// were suppressed since the last allowed one.
func (l *Limiter) Allow(key string, now time.Time) (bool, uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(l.every, 1)}
		l.buckets[key] = b
	}
	if !b.lim.AllowN(now, 1) {
		b.dropped++
		return false, 0
	}
	n := b.dropped
	b.dropped = 0
	return true, n
}
