// Package peer implements the peer connection session: connection, gathering and signaling
// state, the preconditions on offer/answer/candidate calls, and data channel creation, on
// top of an opaque [core.Driver].
//
// State cells are atomics written by driver callbacks and read without locking. Calls that
// complete out of band move the connection state optimistically (NEW to CONNECTING) so a
// second offer cannot race the driver; the driver's own state callback later overrides it.
package peer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/core"
	"github.com/dkeye/rtcpeer/internal/domain"
)

// Connection is safe for concurrent use.
type Connection struct {
	driver   core.Driver
	channels core.ChannelDriver
	emitter  Emitter
	log      zerolog.Logger

	// mu serialises control-side calls so driver requests go out in call order.
	mu     sync.Mutex
	handle core.Handle

	// epoch invalidates callbacks registered for a replaced or destroyed handle.
	epoch  atomic.Uint64
	closed atomic.Bool

	conn      atomic.Int32
	gathering atomic.Int32
	signaling atomic.Int32
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. Defaults to the global logger tagged module=peer.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithChannelDriver sets where channel operations go. By default the Driver is used when it
// implements core.ChannelDriver.
func WithChannelDriver(cd core.ChannelDriver) Option {
	return func(c *Connection) { c.channels = cd }
}

// New returns a connection with no native handle. Call Initialize before negotiating.
func New(driver core.Driver, emitter Emitter, opts ...Option) *Connection {
	c := &Connection{
		driver:  driver,
		emitter: emitter,
		log:     log.With().Str("module", "peer").Logger(),
	}
	if cd, ok := driver.(core.ChannelDriver); ok {
		c.channels = cd
	}
	for _, o := range opts {
		o(c)
	}
	if c.emitter == nil {
		c.emitter = EmitterFunc(func(Event) {})
	}
	return c
}

// Initialize replaces any existing native connection with a fresh one built from cfg.
// All states are reset; on driver refusal the connection is left without a handle.
func (c *Connection) Initialize(cfg domain.Configuration) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("peer: encode configuration: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	epoch := c.epoch.Add(1)
	c.closed.Store(false)
	c.conn.Store(int32(core.ConnectionNew))
	c.gathering.Store(int32(core.GatheringNew))
	c.signaling.Store(int32(core.SignalingStable))

	h, err := c.driver.Create(payload, c.callbacks(epoch))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDriverRefused, err)
	}
	if h == 0 {
		return ErrDriverRefused
	}
	c.handle = h
	c.log.Info().Uint32("handle", uint32(h)).Msg("peer connection created")
	return nil
}

// Handle returns the current native handle, or 0.
func (c *Connection) Handle() core.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// CreateOffer requires state NEW. It moves to CONNECTING before asking the driver; the offer
// arrives later as SessionDescriptionCreated.
func (c *Connection) CreateOffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == 0 {
		return ErrNotInitialized
	}
	if !c.conn.CompareAndSwap(int32(core.ConnectionNew), int32(core.ConnectionConnecting)) {
		return fmt.Errorf("peer: create offer in state %s: %w", c.ConnectionState(), ErrInvalidState)
	}
	epoch := c.epoch.Load()
	c.driver.CreateOffer(c.handle, c.onSession(epoch), c.onError(epoch, "create_offer"))
	return nil
}

// SetLocalDescription forwards to the driver. Driver-side failures are reported as ErrorEvent.
func (c *Connection) SetLocalDescription(typ core.SDPType, sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	c.driver.SetLocalDescription(c.handle, typ, sdp, c.onError(c.epoch.Load(), "set_local_description"))
	return nil
}

// SetRemoteDescription forwards to the driver. A remote offer requires state NEW and moves to
// CONNECTING first; the generated answer arrives as SessionDescriptionCreated.
func (c *Connection) SetRemoteDescription(typ core.SDPType, sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if typ == core.SDPOffer &&
		!c.conn.CompareAndSwap(int32(core.ConnectionNew), int32(core.ConnectionConnecting)) {
		return fmt.Errorf("peer: remote offer in state %s: %w", c.ConnectionState(), ErrInvalidState)
	}
	epoch := c.epoch.Load()
	c.driver.SetRemoteDescription(c.handle, typ, sdp, c.onSession(epoch), c.onError(epoch, "set_remote_description"))
	return nil
}

// AddICECandidate forwards a remote candidate. Candidates may arrive at any point of the
// negotiation.
func (c *Connection) AddICECandidate(mid string, mlineIndex int, candidate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	c.driver.AddICECandidate(c.handle, mid, mlineIndex, candidate)
	return nil
}

// CreateDataChannel requires state NEW: channels are negotiated with the first offer/answer.
func (c *Connection) CreateDataChannel(label string, cfg domain.ChannelConfig) (*DataChannel, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("peer: encode channel config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == 0 {
		return nil, ErrNotInitialized
	}
	if st := c.ConnectionState(); st != core.ConnectionNew {
		return nil, fmt.Errorf("peer: create data channel %q in state %s: %w", label, st, ErrInvalidState)
	}
	id := c.driver.CreateDataChannel(c.handle, label, payload)
	if id == 0 {
		return nil, fmt.Errorf("peer: create data channel %q: %w", label, ErrNoChannel)
	}
	c.log.Debug().Str("label", label).Uint32("channel", uint32(id)).Msg("data channel created")
	return newDataChannel(id, c.channels), nil
}

// Close shuts the native connection down and sets CLOSED. Repeated calls do nothing.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Destroy closes the connection and releases its handle.
func (c *Connection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// Poll exists for drivers that need pumping. The supported drivers push events, so it
// always succeeds.
func (c *Connection) Poll() error { return nil }

// ConnectionState returns the latest connection state without locking.
func (c *Connection) ConnectionState() core.ConnectionState {
	return core.ConnectionState(c.conn.Load())
}

// GatheringState returns the latest ICE gathering state reported by the driver.
func (c *Connection) GatheringState() core.GatheringState {
	return core.GatheringState(c.gathering.Load())
}

// SignalingState returns the latest signaling state reported by the driver.
func (c *Connection) SignalingState() core.SignalingState {
	return core.SignalingState(c.signaling.Load())
}

func (c *Connection) closeLocked() {
	if c.closed.Swap(true) {
		return
	}
	c.conn.Store(int32(core.ConnectionClosed))
	if c.handle != 0 {
		c.driver.Close(c.handle)
	}
	c.log.Info().Uint32("handle", uint32(c.handle)).Msg("peer connection closed")
}

func (c *Connection) releaseLocked() {
	if c.handle == 0 {
		return
	}
	c.closeLocked()
	c.driver.Destroy(c.handle)
	c.handle = 0
	c.epoch.Add(1)
}

func (c *Connection) usableLocked() error {
	if c.handle == 0 {
		return ErrNotInitialized
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *Connection) current(epoch uint64) bool {
	return c.epoch.Load() == epoch
}

func (c *Connection) callbacks(epoch uint64) core.Callbacks {
	return core.Callbacks{
		OnConnectionState: func(s core.ConnectionState) {
			// CLOSED set by Close is terminal.
			if !c.current(epoch) || c.closed.Load() {
				return
			}
			c.conn.Store(int32(s))
			c.log.Info().Str("connection_state", s.String()).Msg("Peer state")
		},
		OnGatheringState: func(s core.GatheringState) {
			if !c.current(epoch) {
				return
			}
			c.gathering.Store(int32(s))
			c.log.Debug().Str("gathering_state", s.String()).Msg("gathering state")
		},
		OnSignalingState: func(s core.SignalingState) {
			if !c.current(epoch) {
				return
			}
			c.signaling.Store(int32(s))
			c.log.Debug().Str("signaling_state", s.String()).Msg("signaling state")
		},
		OnICECandidate: func(mid string, mlineIndex int, candidate string) {
			if !c.current(epoch) {
				return
			}
			c.emitter.Emit(ICECandidateCreated{Mid: mid, MLineIndex: mlineIndex, Candidate: candidate})
		},
		OnDataChannel: func(id core.ChannelID) {
			if !c.current(epoch) {
				return
			}
			c.emitter.Emit(DataChannelReceived{Channel: newDataChannel(id, c.channels)})
		},
		OnTrack: func(id core.TrackID) {
			if !c.current(epoch) {
				return
			}
			c.emitter.Emit(TrackReceived{Track: id})
		},
	}
}

func (c *Connection) onSession(epoch uint64) core.SessionFunc {
	return func(typ core.SDPType, sdp string) {
		if !c.current(epoch) {
			return
		}
		c.emitter.Emit(SessionDescriptionCreated{Type: typ, SDP: sdp})
	}
}

func (c *Connection) onError(epoch uint64, op string) core.ErrorFunc {
	return func(err error) {
		if !c.current(epoch) {
			return
		}
		c.log.Error().Err(err).Str("op", op).Msg("RTCPeerConnection error")
		c.emitter.Emit(ErrorEvent{Op: op, Err: err})
	}
}
