// Package rtc is the pion/webrtc implementation of the native peer connection driver.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/core"
)

var (
	errUnknownHandle = errors.New("rtc: unknown handle")
	errUnknownTrack  = errors.New("rtc: unknown track")
	errUnknownChan   = errors.New("rtc: unknown data channel")
	errOpQueueFull   = errors.New("rtc: operation queue full")
)

var _ core.Driver = (*Driver)(nil)

type channelEntry struct {
	handle core.Handle
	dc     *webrtc.DataChannel
}

type trackEntry struct {
	handle core.Handle
	src    *inboundSource
}

// Driver owns every pion PeerConnection created through it, addressed by core.Handle.
type Driver struct {
	log             zerolog.Logger
	inboundCapacity int

	mu        sync.RWMutex
	next      core.Handle
	conns     map[core.Handle]*connection
	nextChan  core.ChannelID
	channels  map[core.ChannelID]channelEntry
	nextTrack core.TrackID
	tracks    map[core.TrackID]trackEntry
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithInboundCapacity sets how many decoded frames each remote track buffers.
func WithInboundCapacity(frames int) Option {
	return func(d *Driver) { d.inboundCapacity = frames }
}

func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		log:             log.With().Str("module", "webrtc").Logger(),
		inboundCapacity: opusSampleRate / 5,
		conns:           make(map[core.Handle]*connection),
		channels:        make(map[core.ChannelID]channelEntry),
		tracks:          make(map[core.TrackID]trackEntry),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Driver) conn(h core.Handle) (*connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.conns[h]
	return c, ok
}

func (d *Driver) Create(config []byte, cb core.Callbacks) (core.Handle, error) {
	cfg, err := parseConfiguration(config)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.next++
	h := d.next
	d.mu.Unlock()

	c, err := newConnection(cfg, h, d.log)
	if err != nil {
		return 0, fmt.Errorf("rtc: new peer connection: %w", err)
	}
	c.start(cb,
		func(dc *webrtc.DataChannel) core.ChannelID { return d.registerChannel(h, dc) },
		func(ctx context.Context, t *webrtc.TrackRemote) core.TrackID { return d.registerTrack(ctx, h, t) },
	)

	d.mu.Lock()
	d.conns[h] = c
	d.mu.Unlock()
	return h, nil
}

// Close closes the native connection but keeps the handle addressable.
func (d *Driver) Close(h core.Handle) {
	if c, ok := d.conn(h); ok {
		c.close()
	}
}

// Destroy closes the connection and forgets the handle with its channels and tracks.
func (d *Driver) Destroy(h core.Handle) {
	d.mu.Lock()
	c, ok := d.conns[h]
	delete(d.conns, h)
	for id, ch := range d.channels {
		if ch.handle == h {
			delete(d.channels, id)
		}
	}
	var sources []*inboundSource
	for id, t := range d.tracks {
		if t.handle == h {
			sources = append(sources, t.src)
			delete(d.tracks, id)
		}
	}
	d.mu.Unlock()

	for _, src := range sources {
		src.Close()
	}
	if ok {
		c.destroy()
	}
}

func (d *Driver) CreateOffer(h core.Handle, onSession core.SessionFunc, onError core.ErrorFunc) {
	d.submit(h, onError, func(c *connection) { c.createOffer(onSession, onError) })
}

func (d *Driver) SetLocalDescription(h core.Handle, typ core.SDPType, sdp string, onError core.ErrorFunc) {
	d.submit(h, onError, func(c *connection) { c.setLocalDescription(typ, sdp, onError) })
}

func (d *Driver) SetRemoteDescription(h core.Handle, typ core.SDPType, sdp string, onSession core.SessionFunc, onError core.ErrorFunc) {
	d.submit(h, onError, func(c *connection) { c.setRemoteDescription(typ, sdp, onSession, onError) })
}

func (d *Driver) AddICECandidate(h core.Handle, mid string, mlineIndex int, candidate string) {
	d.submit(h, nil, func(c *connection) { c.addICECandidate(mid, mlineIndex, candidate) })
}

func (d *Driver) submit(h core.Handle, onError core.ErrorFunc, op func(*connection)) {
	err := errUnknownHandle
	if c, ok := d.conn(h); ok {
		err = c.enqueue(func() { op(c) })
	}
	if err == nil {
		return
	}
	if onError != nil {
		onError(fmt.Errorf("rtc: handle %d: %w", h, err))
		return
	}
	d.log.Warn().Err(err).Uint32("handle", uint32(h)).Msg("operation dropped")
}

func (d *Driver) CreateDataChannel(h core.Handle, label string, config []byte) core.ChannelID {
	c, ok := d.conn(h)
	if !ok {
		return 0
	}
	opts, err := parseChannelInit(config)
	if err != nil {
		c.log.Error().Err(err).Str("label", label).Msg("data channel config")
		return 0
	}
	dc, err := c.pc.CreateDataChannel(label, opts)
	if err != nil {
		c.log.Error().Err(err).Str("label", label).Msg("create data channel")
		return 0
	}
	return d.registerChannel(h, dc)
}

func (d *Driver) registerChannel(h core.Handle, dc *webrtc.DataChannel) core.ChannelID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextChan++
	d.channels[d.nextChan] = channelEntry{handle: h, dc: dc}
	return d.nextChan
}
