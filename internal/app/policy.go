package app

import "github.com/dkeye/rtcpeer/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseSession
)

// Policy decides what happens when a session's signaling connection refuses a frame.
type Policy interface {
	OnBackPressure(sid core.SessionID, refused uint64) BackpressureAction
}

// SimplePolicy drops refused frames and closes the session once MaxRefused is reached.
// A zero MaxRefused never closes.
type SimplePolicy struct {
	MaxRefused uint64
}

func (p SimplePolicy) OnBackPressure(_ core.SessionID, refused uint64) BackpressureAction {
	if p.MaxRefused > 0 && refused >= p.MaxRefused {
		return CloseSession
	}
	return DropFrame
}
