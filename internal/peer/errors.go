package peer

import "errors"

var (
	// ErrInvalidState is returned when an operation's state precondition does not hold.
	// The driver is not contacted and no state changes.
	ErrInvalidState = errors.New("peer: invalid state")
	// ErrClosed is returned for negotiation calls made after Close.
	ErrClosed = errors.New("peer: connection closed")
	// ErrNotInitialized is returned when no native handle exists.
	ErrNotInitialized = errors.New("peer: not initialized")
	// ErrDriverRefused is returned when the driver cannot create a handle.
	ErrDriverRefused = errors.New("peer: driver refused handle")
	// ErrNoChannel is returned when the driver hands back no channel.
	ErrNoChannel = errors.New("peer: no data channel")
	// ErrBackpressure is logged when the event queue is full and an event is dropped.
	ErrBackpressure = errors.New("peer: event queue full")
)
