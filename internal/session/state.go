// Package session owns the capture pipeline: a producer loop per session
// and the Controller that starts, stops and snapshots it.
package session

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrDeviceUnavailable is returned by Start when the source could not be
	// acquired. The underlying cause is part of the message.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrNotRunning is returned by CaptureBackground outside a live session
	ErrNotRunning = errors.New("camera is not running")

	// ErrNoFrame is returned by CaptureBackground when the session has not
	// produced a frame yet
	ErrNoFrame = errors.New("no frame available")

	// ErrStopTimeout is returned by Stop when the capture loop did not exit
	// within the grace period. The device may not have been released.
	ErrStopTimeout = errors.New("capture loop did not stop in time")
)

// State is the lifecycle state of the controller
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of the controller
type Status struct {
	State          State     `json:"state"`
	SessionID      string    `json:"session_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	Source         string    `json:"source,omitempty"`
	Sequence       uint64    `json:"sequence"`
	Frames         uint64    `json:"frames"`
	EncodeFailures uint64    `json:"encode_failures"`
	BackgroundSet  bool      `json:"background_set"`
	CanCapture     bool      `json:"can_capture"`
	LastError      string    `json:"last_error,omitempty"`
}
