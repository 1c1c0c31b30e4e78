package peer

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/rtcpeer/internal/core"
	"github.com/rs/zerolog"
)

// Event names as seen by the application layer.
const (
	EventSessionDescriptionCreated = "session_description_created"
	EventICECandidateCreated       = "ice_candidate_created"
	EventDataChannelReceived       = "data_channel_received"
	EventTrackReceived             = "track_received"
	EventError                     = "error"
)

// Event is a named notification with a typed payload.
type Event interface {
	Name() string
}

// SessionDescriptionCreated carries an SDP the driver produced (offer or answer).
// The application is expected to pass it to SetLocalDescription and to the remote peer.
type SessionDescriptionCreated struct {
	Type core.SDPType
	SDP  string
}

func (SessionDescriptionCreated) Name() string { return EventSessionDescriptionCreated }

// ICECandidateCreated carries a locally gathered candidate.
type ICECandidateCreated struct {
	Mid        string
	MLineIndex int
	Candidate  string
}

func (ICECandidateCreated) Name() string { return EventICECandidateCreated }

// DataChannelReceived carries a channel the remote peer opened.
type DataChannelReceived struct {
	Channel *DataChannel
}

func (DataChannelReceived) Name() string { return EventDataChannelReceived }

// TrackReceived reports a remote track ready to be bound to a playback.
type TrackReceived struct {
	Track core.TrackID
}

func (TrackReceived) Name() string { return EventTrackReceived }

// ErrorEvent reports an asynchronous driver failure. It is not correlated with the call
// that triggered it.
type ErrorEvent struct {
	Op  string
	Err error
}

func (ErrorEvent) Name() string { return EventError }

// Emitter delivers events to subscribers.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Queue is a single-consumer event queue. Emit never blocks: driver callbacks must not wait
// on the application, so a full queue drops the event and logs it.
type Queue struct {
	ch      chan Event
	log     zerolog.Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size), log: logger}
}

func (q *Queue) Emit(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
		q.log.Warn().Err(ErrBackpressure).Str("event", ev.Name()).Msg("event dropped")
	}
}

// Events returns the consumer side. It is closed by Close.
func (q *Queue) Events() <-chan Event { return q.ch }

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting events and closes the consumer channel. Safe to call twice.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
