package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/rtcpeer/internal/core"
)

const opQueueSize = 64

// connection is one native peer connection behind a core.Handle. Negotiation steps run on a
// per-connection worker so they reach pion in call order without blocking the caller.
type connection struct {
	pc     *webrtc.PeerConnection
	handle core.Handle
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
}

func newConnection(cfg webrtc.Configuration, h core.Handle, logger zerolog.Logger) (*connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		pc:     pc,
		handle: h,
		log:    logger.With().Uint32("handle", uint32(h)).Logger(),
		ctx:    ctx,
		cancel: cancel,
		ops:    make(chan func(), opQueueSize),
	}
	go c.run()
	return c, nil
}

// start wires pion's handlers to the session callbacks. Data channels and tracks are
// registered with the driver before the session hears about them.
func (c *connection) start(cb core.Callbacks, onChannel func(*webrtc.DataChannel) core.ChannelID,
	onTrack func(context.Context, *webrtc.TrackRemote) core.TrackID) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if cb.OnConnectionState != nil {
			cb.OnConnectionState(connectionState(s))
		}
	})

	c.pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		c.log.Debug().Str("gathering_state", s.String()).Msg("ICE gathering state")
		if cb.OnGatheringState != nil {
			cb.OnGatheringState(gatheringState(s))
		}
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		if cb.OnSignalingState != nil {
			cb.OnSignalingState(signalingState(s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || cb.OnICECandidate == nil {
			return
		}
		ci := cand.ToJSON()
		mid, idx := "", 0
		if ci.SDPMid != nil {
			mid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			idx = int(*ci.SDPMLineIndex)
		}
		cb.OnICECandidate(mid, idx, ci.Candidate)
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		id := onChannel(dc)
		c.log.Info().Str("label", dc.Label()).Uint32("channel", uint32(id)).Msg("OnDataChannel received")
		if cb.OnDataChannel != nil {
			cb.OnDataChannel(id)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		id := onTrack(c.ctx, track)
		if id != 0 && cb.OnTrack != nil {
			cb.OnTrack(id)
		}
	})
}

func (c *connection) run() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case op := <-c.ops:
			op()
		}
	}
}

// enqueue schedules op on the worker without waiting. It fails once the connection is
// destroyed or while the worker is opQueueSize operations behind.
func (c *connection) enqueue(op func()) error {
	if c.ctx.Err() != nil {
		return errUnknownHandle
	}
	select {
	case c.ops <- op:
		return nil
	default:
		return errOpQueueFull
	}
}

func (c *connection) createOffer(onSession core.SessionFunc, onError core.ErrorFunc) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		onError(err)
		return
	}
	onSession(core.SDPOffer, offer.SDP)
}

func (c *connection) setLocalDescription(typ core.SDPType, sdp string, onError core.ErrorFunc) {
	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(string(typ)), SDP: sdp}
	if err := c.pc.SetLocalDescription(desc); err != nil {
		onError(err)
	}
}

// setRemoteDescription applies desc and, for an offer, produces the answer.
func (c *connection) setRemoteDescription(typ core.SDPType, sdp string, onSession core.SessionFunc, onError core.ErrorFunc) {
	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(string(typ)), SDP: sdp}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		onError(err)
		return
	}
	if typ != core.SDPOffer {
		return
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		onError(err)
		return
	}
	onSession(core.SDPAnswer, answer.SDP)
}

func (c *connection) addICECandidate(mid string, mlineIndex int, candidate string) {
	idx := uint16(mlineIndex)
	ci := webrtc.ICECandidateInit{Candidate: candidate, SDPMLineIndex: &idx}
	if mid != "" {
		ci.SDPMid = &mid
	}
	if err := c.pc.AddICECandidate(ci); err != nil {
		c.log.Error().Err(err).Msg("add ice candidate")
	}
}

func (c *connection) close() {
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
		return
	}
	c.log.Info().Msg("closed")
}

// destroy stops the worker and every reader started for this connection.
func (c *connection) destroy() {
	c.cancel()
	c.close()
}
