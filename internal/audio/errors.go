package audio

import "errors"

var (
	// ErrAlreadyInUse is returned by AddTrack for a source that is already bound.
	ErrAlreadyInUse = errors.New("audio: source already in use")
	// ErrBridgeClosed is returned by operations on a closed Bridge.
	ErrBridgeClosed = errors.New("audio: bridge closed")
)
