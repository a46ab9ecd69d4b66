package types

import (
	"time"

	"calcpad-go/errcode"
)

// ---- System state (retained on "system/state") ----

type SystemState uint8

const (
	StateInitializing SystemState = iota
	StateRunning
	StateSleeping
	StateError
	StateShutdown
)

func (s SystemState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateError:
		return "error"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

func (s SystemState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SystemState) UnmarshalText(b []byte) error {
	for c := StateInitializing; c <= StateShutdown; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return errcode.New(errcode.InvalidParams, "types.SystemState", "unknown state "+string(b))
}

// StateChange is the payload published on every transition.
type StateChange struct {
	From   SystemState `json:"from"`
	To     SystemState `json:"to"`
	Reason string      `json:"reason,omitempty"`
	TS     int64       `json:"ts_ms"`
}

// ---- Task statistics ----

// TaskStats is written by its owning task only.
type TaskStats struct {
	CycleCount     uint32        `json:"cycles"`
	LastCycle      time.Duration `json:"last"`
	MaxCycle       time.Duration `json:"max"`
	AvgCycle       time.Duration `json:"avg"`
	StackHighWater uint32        `json:"stack_hw"` // free words, 0 = unknown
	Errors         uint32        `json:"errors"`
	Overruns       uint32        `json:"overruns"`
}

// TaskInfo pairs the declared task parameters with its statistics.
type TaskInfo struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"`
	Core     int           `json:"core"`
	Period   time.Duration `json:"period"`
	Stats    TaskStats     `json:"stats"`
}

// ---- Health (retained on "system/health") ----

type Health struct {
	FreeHeap     uint32 `json:"free_heap"`
	KeyPoolUsed  int    `json:"key_pool_used"`
	DispPoolUsed int    `json:"disp_pool_used"`
	KeyQueueLen  int    `json:"key_queue_len"`
	DispQueueLen int    `json:"disp_queue_len"`
	Errors       uint32 `json:"errors"`
	TS           int64  `json:"ts_ms"`
}

// BootInfo is retained on "system/boot".
type BootInfo struct {
	ID      string `json:"id"`
	Board   string `json:"board"`
	Version string `json:"version"`
	TS      int64  `json:"ts_ms"`
}

// TaskHealth is one entry of the retained "system/heartbeat" payload.
type TaskHealth struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Silence time.Duration `json:"silence"`
}
