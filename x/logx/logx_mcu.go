//go:build rp2040 || rp2350

package logx

import (
	"strconv"
	"time"
)

// Config holds logger configuration. Format and Output are ignored on MCU:
// lines always go to the runtime console via println.
type Config struct {
	Level     Level
	Component string
}

func DefaultConfig() Config { return Config{Level: LevelInfo} }

type printLogger struct {
	level     *LevelVar
	component string
	fields    []any
}

func New(cfg Config) (Logger, *LevelVar) {
	lv := &LevelVar{}
	lv.Set(cfg.Level)
	return &printLogger{level: lv, component: cfg.Component}, lv
}

func (l *printLogger) log(lvl Level, err error, msg string, kv ...any) {
	if !l.level.Enabled(lvl) {
		return
	}
	buf := make([]byte, 0, 96)
	buf = append(buf, lvl.String()...)
	if l.component != "" {
		buf = append(buf, ' ')
		buf = append(buf, l.component...)
	}
	buf = append(buf, ' ')
	buf = append(buf, msg...)
	buf = appendKV(buf, l.fields)
	buf = appendKV(buf, kv)
	if err != nil {
		buf = append(buf, " error="...)
		buf = append(buf, err.Error()...)
	}
	println(string(buf))
}

func appendKV(buf []byte, kv []any) []byte {
	for i := 0; i+1 < len(kv); i += 2 {
		buf = append(buf, ' ')
		if k, ok := kv[i].(string); ok {
			buf = append(buf, k...)
		}
		buf = append(buf, '=')
		buf = appendValue(buf, kv[i+1])
	}
	return buf
}

func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case string:
		return append(buf, x...)
	case int:
		return strconv.AppendInt(buf, int64(x), 10)
	case int32:
		return strconv.AppendInt(buf, int64(x), 10)
	case int64:
		return strconv.AppendInt(buf, x, 10)
	case uint8:
		return strconv.AppendUint(buf, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(buf, uint64(x), 10)
	case uint32:
		return strconv.AppendUint(buf, uint64(x), 10)
	case uint64:
		return strconv.AppendUint(buf, x, 10)
	case bool:
		return strconv.AppendBool(buf, x)
	case time.Duration:
		return append(buf, x.String()...)
	case error:
		return append(buf, x.Error()...)
	case interface{ String() string }:
		return append(buf, x.String()...)
	default:
		return append(buf, '?')
	}
}

func (l *printLogger) Debug(msg string, kv ...any)            { l.log(LevelDebug, nil, msg, kv...) }
func (l *printLogger) Info(msg string, kv ...any)             { l.log(LevelInfo, nil, msg, kv...) }
func (l *printLogger) Warn(err error, msg string, kv ...any)  { l.log(LevelWarn, err, msg, kv...) }
func (l *printLogger) Error(err error, msg string, kv ...any) { l.log(LevelError, err, msg, kv...) }

func (l *printLogger) With(kv ...any) Logger {
	f := make([]any, 0, len(l.fields)+len(kv))
	f = append(append(f, l.fields...), kv...)
	return &printLogger{level: l.level, component: l.component, fields: f}
}

func (l *printLogger) WithComponent(component string) Logger {
	return &printLogger{level: l.level, component: component, fields: l.fields}
}
