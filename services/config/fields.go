package config

import (
	"sort"
	"strconv"
	"strings"

	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/mathx"
)

// field is one user-settable key, e.g. "keypad.repeat_delay_ms".
type field struct {
	get func(*types.Settings) string
	set func(*types.Settings, string) error
}

func invalid(key, v string) error {
	return errcode.New(errcode.InvalidParams, "config.Set", key+": bad value "+strconv.Quote(v))
}

func parseInt(key, v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, invalid(key, v)
	}
	return n, nil
}

func u8(key string, lo, hi uint8, p func(*types.Settings) *uint8) field {
	return field{
		get: func(s *types.Settings) string { return strconv.Itoa(int(*p(s))) },
		set: func(s *types.Settings, v string) error {
			n, err := parseInt(key, v)
			if err != nil {
				return err
			}
			*p(s) = mathx.ClampInt(n, lo, hi)
			return nil
		},
	}
}

func u16(key string, lo, hi uint16, p func(*types.Settings) *uint16) field {
	return field{
		get: func(s *types.Settings) string { return strconv.Itoa(int(*p(s))) },
		set: func(s *types.Settings, v string) error {
			n, err := parseInt(key, v)
			if err != nil {
				return err
			}
			*p(s) = mathx.ClampInt(n, lo, hi)
			return nil
		},
	}
}

func u32(key string, lo, hi uint32, p func(*types.Settings) *uint32) field {
	return field{
		get: func(s *types.Settings) string { return strconv.FormatUint(uint64(*p(s)), 10) },
		set: func(s *types.Settings, v string) error {
			n, err := parseInt(key, v)
			if err != nil {
				return err
			}
			*p(s) = mathx.ClampInt(n, lo, hi)
			return nil
		},
	}
}

func boolean(key string, p func(*types.Settings) *bool) field {
	return field{
		get: func(s *types.Settings) string { return strconv.FormatBool(*p(s)) },
		set: func(s *types.Settings, v string) error {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "on", "yes":
				*p(s) = true
			case "0", "false", "off", "no":
				*p(s) = false
			default:
				return invalid(key, v)
			}
			return nil
		},
	}
}

var fields = map[string]field{
	"keypad.repeat_delay_ms": u16("keypad.repeat_delay_ms", 50, 5000,
		func(s *types.Settings) *uint16 { return &s.Keypad.RepeatDelayMs }),
	"keypad.repeat_rate_ms": u16("keypad.repeat_rate_ms", 20, 2000,
		func(s *types.Settings) *uint16 { return &s.Keypad.RepeatRateMs }),
	"keypad.long_press_delay_ms": u16("keypad.long_press_delay_ms", 100, 10000,
		func(s *types.Settings) *uint16 { return &s.Keypad.LongPressDelayMs }),
	"keypad.repeat_keys": {
		get: func(s *types.Settings) string { return formatKeys(s.Keypad.RepeatKeys) },
		set: func(s *types.Settings, v string) error {
			keys, err := parseKeys(v)
			if err != nil {
				return err
			}
			s.Keypad.RepeatKeys = keys
			return nil
		},
	},

	"led.enabled": boolean("led.enabled", func(s *types.Settings) *bool { return &s.LED.Enabled }),
	"led.brightness": u8("led.brightness", 0, 255,
		func(s *types.Settings) *uint8 { return &s.LED.Brightness }),
	"led.fade_ms": u16("led.fade_ms", 50, 5000,
		func(s *types.Settings) *uint16 { return &s.LED.FadeMs }),
	"led.mode": {
		get: func(s *types.Settings) string { return string(s.LED.Mode) },
		set: func(s *types.Settings, v string) error {
			m := types.LEDMode(strings.ToLower(strings.TrimSpace(v)))
			if !m.Valid() {
				return invalid("led.mode", v)
			}
			s.LED.Mode = m
			return nil
		},
	},

	"buzzer.enabled": boolean("buzzer.enabled", func(s *types.Settings) *bool { return &s.Buzzer.Enabled }),
	"buzzer.follow_keypress": boolean("buzzer.follow_keypress",
		func(s *types.Settings) *bool { return &s.Buzzer.FollowKeypress }),
	"buzzer.dual_tone": boolean("buzzer.dual_tone", func(s *types.Settings) *bool { return &s.Buzzer.DualTone }),
	"buzzer.mode": {
		get: func(s *types.Settings) string { return string(s.Buzzer.Mode) },
		set: func(s *types.Settings, v string) error {
			switch m := types.BuzzerMode(strings.ToLower(strings.TrimSpace(v))); m {
			case types.BuzzerNormal, types.BuzzerPiano:
				s.Buzzer.Mode = m
				return nil
			}
			return invalid("buzzer.mode", v)
		},
	},
	"buzzer.volume": u8("buzzer.volume", types.VolumeMute, types.VolumeHigh,
		func(s *types.Settings) *uint8 { return &s.Buzzer.Volume }),
	"buzzer.press_hz": u16("buzzer.press_hz", 100, 10000,
		func(s *types.Settings) *uint16 { return &s.Buzzer.PressHz }),
	"buzzer.release_hz": u16("buzzer.release_hz", 100, 10000,
		func(s *types.Settings) *uint16 { return &s.Buzzer.ReleaseHz }),
	"buzzer.duration_ms": u16("buzzer.duration_ms", 1, 1000,
		func(s *types.Settings) *uint16 { return &s.Buzzer.DurationMs }),

	"backlight.percent": u8("backlight.percent", 0, 100,
		func(s *types.Settings) *uint8 { return &s.Backlight.Percent }),
	"backlight.fade_ms": u16("backlight.fade_ms", 0, 5000,
		func(s *types.Settings) *uint16 { return &s.Backlight.FadeMs }),

	"sleep.timeout_ms": u32("sleep.timeout_ms", 0, 3_600_000,
		func(s *types.Settings) *uint32 { return &s.Sleep.TimeoutMs }),

	"system.auto_save": boolean("system.auto_save", func(s *types.Settings) *bool { return &s.System.AutoSave }),
	"system.log_level": {
		get: func(s *types.Settings) string { return s.System.LogLevel },
		set: func(s *types.Settings, v string) error {
			l, ok := logx.ParseLevel(v)
			if !ok {
				return invalid("system.log_level", v)
			}
			s.System.LogLevel = strings.ToLower(l.String())
			return nil
		},
	},
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func section(key string) string {
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return key
}

func formatKeys(ks []uint8) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = strconv.Itoa(int(k))
	}
	return strings.Join(parts, ",")
}

// parseKeys reads "1,2,17" (spaces allowed). An empty string clears the
// list.
func parseKeys(v string) ([]uint8, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "none" {
		return nil, nil
	}
	var out []uint8
	seen := map[uint8]bool{}
	for _, p := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 || n > types.NumKeys {
			return nil, invalid("keypad.repeat_keys", v)
		}
		if !seen[uint8(n)] {
			seen[uint8(n)] = true
			out = append(out, uint8(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Normalize clamps every field into range and replaces unknown enum values
// with their defaults.
func Normalize(s types.Settings) types.Settings {
	d := types.DefaultSettings()
	s = s.Clone()
	for _, k := range Keys() {
		f := fields[k]
		if err := f.set(&s, f.get(&s)); err != nil {
			_ = f.set(&s, f.get(&d))
		}
	}
	return s
}
