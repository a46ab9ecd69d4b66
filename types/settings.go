package types

// ---- Persistent user settings (published per section on "config/<section>") ----

type Settings struct {
	Keypad    KeypadSettings    `yaml:"keypad" mapstructure:"keypad" json:"keypad"`
	LED       LEDSettings       `yaml:"led" mapstructure:"led" json:"led"`
	Buzzer    BuzzerSettings    `yaml:"buzzer" mapstructure:"buzzer" json:"buzzer"`
	Backlight BacklightSettings `yaml:"backlight" mapstructure:"backlight" json:"backlight"`
	Sleep     SleepSettings     `yaml:"sleep" mapstructure:"sleep" json:"sleep"`
	System    SystemSettings    `yaml:"system" mapstructure:"system" json:"system"`
}

type KeypadSettings struct {
	RepeatDelayMs    uint16  `yaml:"repeat_delay_ms" mapstructure:"repeat_delay_ms" json:"repeat_delay_ms"`
	RepeatRateMs     uint16  `yaml:"repeat_rate_ms" mapstructure:"repeat_rate_ms" json:"repeat_rate_ms"`
	LongPressDelayMs uint16  `yaml:"long_press_delay_ms" mapstructure:"long_press_delay_ms" json:"long_press_delay_ms"`
	RepeatKeys       []uint8 `yaml:"repeat_keys" mapstructure:"repeat_keys" json:"repeat_keys"`
}

// LEDMode names a per-key LED effect.
type LEDMode string

const (
	LEDInstant LEDMode = "instant"
	LEDFade    LEDMode = "fade"
	LEDBreath  LEDMode = "breath"
	LEDBlink   LEDMode = "blink"
)

func (m LEDMode) Valid() bool {
	switch m {
	case LEDInstant, LEDFade, LEDBreath, LEDBlink:
		return true
	}
	return false
}

type LEDSettings struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Brightness uint8   `yaml:"brightness" mapstructure:"brightness" json:"brightness"`
	FadeMs     uint16  `yaml:"fade_ms" mapstructure:"fade_ms" json:"fade_ms"`
	Mode       LEDMode `yaml:"mode" mapstructure:"mode" json:"mode"`
}

// BuzzerMode selects the tone source for key presses.
type BuzzerMode string

const (
	BuzzerNormal BuzzerMode = "normal"
	BuzzerPiano  BuzzerMode = "piano"
)

// Buzzer volume steps.
const (
	VolumeMute uint8 = iota
	VolumeLow
	VolumeMedium
	VolumeHigh
)

type BuzzerSettings struct {
	Enabled        bool       `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	FollowKeypress bool       `yaml:"follow_keypress" mapstructure:"follow_keypress" json:"follow_keypress"`
	DualTone       bool       `yaml:"dual_tone" mapstructure:"dual_tone" json:"dual_tone"`
	Mode           BuzzerMode `yaml:"mode" mapstructure:"mode" json:"mode"`
	Volume         uint8      `yaml:"volume" mapstructure:"volume" json:"volume"`
	PressHz        uint16     `yaml:"press_hz" mapstructure:"press_hz" json:"press_hz"`
	ReleaseHz      uint16     `yaml:"release_hz" mapstructure:"release_hz" json:"release_hz"`
	DurationMs     uint16     `yaml:"duration_ms" mapstructure:"duration_ms" json:"duration_ms"`
}

type BacklightSettings struct {
	Percent uint8  `yaml:"percent" mapstructure:"percent" json:"percent"`
	FadeMs  uint16 `yaml:"fade_ms" mapstructure:"fade_ms" json:"fade_ms"`
}

type SleepSettings struct {
	TimeoutMs uint32 `yaml:"timeout_ms" mapstructure:"timeout_ms" json:"timeout_ms"`
}

type SystemSettings struct {
	AutoSave bool   `yaml:"auto_save" mapstructure:"auto_save" json:"auto_save"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DefaultSettings mirrors the factory configuration.
func DefaultSettings() Settings {
	return Settings{
		Keypad: KeypadSettings{
			RepeatDelayMs:    500,
			RepeatRateMs:     100,
			LongPressDelayMs: 1000,
		},
		LED: LEDSettings{
			Enabled:    true,
			Brightness: 255,
			FadeMs:     500,
			Mode:       LEDFade,
		},
		Buzzer: BuzzerSettings{
			Enabled:        true,
			FollowKeypress: true,
			Mode:           BuzzerNormal,
			Volume:         VolumeMedium,
			PressHz:        2000,
			ReleaseHz:      1500,
			DurationMs:     50,
		},
		Backlight: BacklightSettings{Percent: 100, FadeMs: 500},
		Sleep:     SleepSettings{TimeoutMs: 10000},
		System:    SystemSettings{AutoSave: true, LogLevel: "info"},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	if s.Keypad.RepeatKeys != nil {
		c.Keypad.RepeatKeys = append([]uint8(nil), s.Keypad.RepeatKeys...)
	}
	return c
}
