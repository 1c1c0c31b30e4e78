package rtc

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpeer/internal/core"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	return NewDriver(WithLogger(zerolog.Nop()))
}

type sessionRecorder struct {
	mu   sync.Mutex
	typ  core.SDPType
	sdp  string
	errs []error
}

func (r *sessionRecorder) onSession(typ core.SDPType, sdp string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typ, r.sdp = typ, sdp
}

func (r *sessionRecorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *sessionRecorder) get() (core.SDPType, string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typ, r.sdp, append([]error(nil), r.errs...)
}

func sineBlock(frames int, freq float64) []int16 {
	pcm := make([]int16, frames*opusChannels)
	for i := range frames {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/opusSampleRate) * 8000)
		pcm[i*2], pcm[i*2+1] = v, v
	}
	return pcm
}

// ─── configuration ────────────────────────────────────────────────────────────

func TestParseConfiguration(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfiguration(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWebRTCConfig(), cfg)

	cfg, err = parseConfiguration([]byte(`{
		"iceServers":[{"urls":["turn:turn.example.org:3478"],"username":"u","credential":"p"}],
		"iceTransportPolicy":"relay",
		"bundlePolicy":"max-bundle"
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"turn:turn.example.org:3478"}, cfg.ICEServers[0].URLs)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
	assert.Equal(t, "p", cfg.ICEServers[0].Credential)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, cfg.ICETransportPolicy)
	assert.Equal(t, webrtc.BundlePolicyMaxBundle, cfg.BundlePolicy)

	cfg, err = parseConfiguration([]byte(`{"rtcpMuxPolicy":"require","bundlePolicy":"balanced"}`))
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTCPMuxPolicyRequire, cfg.RTCPMuxPolicy)
	assert.Equal(t, webrtc.BundlePolicyBalanced, cfg.BundlePolicy)
	assert.Empty(t, cfg.ICEServers)

	_, err = parseConfiguration([]byte(`{"iceServers":`))
	require.Error(t, err)

	for _, bad := range []string{
		`{"bundlePolicy":"max-everything"}`,
		`{"rtcpMuxPolicy":"sometimes"}`,
		`{"iceTransportPolicy":"nohost"}`,
	} {
		_, err = parseConfiguration([]byte(bad))
		assert.ErrorIs(t, err, errUnknownPolicy, bad)
	}
}

func TestParseChannelInit(t *testing.T) {
	t.Parallel()

	opts, err := parseChannelInit(nil)
	require.NoError(t, err)
	assert.Nil(t, opts)

	opts, err = parseChannelInit([]byte(`{"ordered":false,"maxRetransmits":2,"protocol":"chat","negotiated":true,"id":5}`))
	require.NoError(t, err)
	require.NotNil(t, opts.Ordered)
	assert.False(t, *opts.Ordered)
	assert.Equal(t, uint16(2), *opts.MaxRetransmits)
	assert.Equal(t, "chat", *opts.Protocol)
	assert.True(t, *opts.Negotiated)
	assert.Equal(t, uint16(5), *opts.ID)
	assert.Nil(t, opts.MaxPacketLifeTime)
}

func TestStateMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.ConnectionNew, connectionState(webrtc.PeerConnectionStateNew))
	assert.Equal(t, core.ConnectionConnecting, connectionState(webrtc.PeerConnectionStateConnecting))
	assert.Equal(t, core.ConnectionConnected, connectionState(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, core.ConnectionDisconnected, connectionState(webrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, core.ConnectionFailed, connectionState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, core.ConnectionClosed, connectionState(webrtc.PeerConnectionStateClosed))

	assert.Equal(t, core.GatheringNew, gatheringState(webrtc.ICEGatheringStateNew))
	assert.Equal(t, core.GatheringGathering, gatheringState(webrtc.ICEGatheringStateGathering))
	assert.Equal(t, core.GatheringComplete, gatheringState(webrtc.ICEGatheringStateComplete))

	assert.Equal(t, core.SignalingStable, signalingState(webrtc.SignalingStateStable))
	assert.Equal(t, core.SignalingHaveLocalOffer, signalingState(webrtc.SignalingStateHaveLocalOffer))
	assert.Equal(t, core.SignalingHaveRemoteOffer, signalingState(webrtc.SignalingStateHaveRemoteOffer))
	assert.Equal(t, core.SignalingHaveLocalPranswer, signalingState(webrtc.SignalingStateHaveLocalPranswer))
	assert.Equal(t, core.SignalingHaveRemotePranswer, signalingState(webrtc.SignalingStateHaveRemotePranswer))
	assert.Equal(t, core.SignalingClosed, signalingState(webrtc.SignalingStateClosed))

	assert.Equal(t, core.ChannelConnecting, channelState(webrtc.DataChannelStateConnecting))
	assert.Equal(t, core.ChannelOpen, channelState(webrtc.DataChannelStateOpen))
	assert.Equal(t, core.ChannelClosing, channelState(webrtc.DataChannelStateClosing))
	assert.Equal(t, core.ChannelClosed, channelState(webrtc.DataChannelStateClosed))
}

// ─── driver ───────────────────────────────────────────────────────────────────

func TestDriver_CreateOfferWithChannelAndStream(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	h, err := d.Create(nil, core.Callbacks{})
	require.NoError(t, err)
	require.NotZero(t, h)
	t.Cleanup(func() { d.Destroy(h) })

	id := d.CreateDataChannel(h, "chat", []byte(`{"ordered":true}`))
	require.NotZero(t, id)
	assert.Equal(t, "chat", d.ChannelLabel(id))
	assert.Equal(t, core.ChannelConnecting, d.ChannelReadyState(id))

	stream, err := d.StreamCreate(h)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stream.ID(), "stream-"))

	rec := &sessionRecorder{}
	d.CreateOffer(h, rec.onSession, rec.onError)
	require.Eventually(t, func() bool {
		_, sdp, _ := rec.get()
		return sdp != ""
	}, 5*time.Second, 10*time.Millisecond)

	typ, sdp, errs := rec.get()
	assert.Empty(t, errs)
	assert.Equal(t, core.SDPOffer, typ)
	assert.Contains(t, sdp, "m=application")
	assert.Contains(t, sdp, "m=audio")
	assert.Contains(t, strings.ToLower(sdp), "opus/48000/2")
}

func TestDriver_UnknownHandleReportsError(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	rec := &sessionRecorder{}
	d.CreateOffer(42, rec.onSession, rec.onError)
	d.SetRemoteDescription(42, core.SDPAnswer, "v=0", rec.onSession, rec.onError)

	_, sdp, errs := rec.get()
	assert.Empty(t, sdp)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], errUnknownHandle)

	assert.Zero(t, d.CreateDataChannel(42, "x", nil))
	_, err := d.StreamCreate(42)
	assert.ErrorIs(t, err, errUnknownHandle)
	_, err = d.TrackSource(7)
	assert.ErrorIs(t, err, errUnknownTrack)
	assert.ErrorIs(t, d.ChannelSend(9, []byte("x")), errUnknownChan)
	assert.Equal(t, core.ChannelClosed, d.ChannelReadyState(9))
}

func TestDriver_FullOperationQueueReportsError(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	h, err := d.Create(nil, core.Callbacks{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Destroy(h) })
	c, ok := d.conn(h)
	require.True(t, ok)

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, c.enqueue(func() {
		close(started)
		<-release
	}))
	<-started
	for range opQueueSize {
		require.NoError(t, c.enqueue(func() {}))
	}

	rec := &sessionRecorder{}
	done := make(chan struct{})
	go func() {
		d.CreateOffer(h, rec.onSession, rec.onError)
		d.AddICECandidate(h, "0", 0, "candidate:1 1 udp 1 10.0.0.1 5000 typ host")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a busy connection")
	}
	close(release)

	_, _, errs := rec.get()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errOpQueueFull)
}

func TestDriver_BadRemoteDescription(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	h, err := d.Create(nil, core.Callbacks{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Destroy(h) })

	rec := &sessionRecorder{}
	d.SetRemoteDescription(h, core.SDPOffer, "not sdp", rec.onSession, rec.onError)
	require.Eventually(t, func() bool {
		_, _, errs := rec.get()
		return len(errs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	_, sdp, _ := rec.get()
	assert.Empty(t, sdp)
}

func TestDriver_DestroyForgetsHandle(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	h, err := d.Create(nil, core.Callbacks{})
	require.NoError(t, err)
	id := d.CreateDataChannel(h, "chat", nil)
	require.NotZero(t, id)

	d.Close(h)
	d.Close(h)
	d.Destroy(h)
	d.Destroy(h)

	assert.Equal(t, "", d.ChannelLabel(id))
	rec := &sessionRecorder{}
	d.SetLocalDescription(h, core.SDPOffer, "v=0", rec.onError)
	_, _, errs := rec.get()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errUnknownHandle)
}

// ─── media ────────────────────────────────────────────────────────────────────

func TestOutboundStream_WriteAndRemove(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	h, err := d.Create(nil, core.Callbacks{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Destroy(h) })

	stream, err := d.StreamCreate(h)
	require.NoError(t, err)

	block := [][]float32{make([]float32, 480), make([]float32, 480)}
	for i := range block[0] {
		block[0][i] = float32(math.Sin(float64(i) / 10))
		block[1][i] = block[0][i]
	}
	// Three half-frames: one packet encoded, half a frame left pending.
	for range 3 {
		require.NoError(t, stream.WriteBlock(block))
	}
	assert.Len(t, stream.(*outboundStream).pending, 480*opusChannels)

	d.StreamRemove(h, stream)
	assert.ErrorIs(t, stream.WriteBlock(block), errStreamClosed)
}

func TestInboundSource_DecodesOpus(t *testing.T) {
	t.Parallel()

	enc, err := newOpusEncoder()
	require.NoError(t, err)
	src, err := newInboundSource(nil, 0, zerolog.Nop())
	require.NoError(t, err)

	packet, err := enc.encode(sineBlock(opusFrameSize, 440))
	require.NoError(t, err)
	src.handlePacket(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}, Payload: packet})
	require.Equal(t, opusFrameSize, src.buffered())

	dst := [][]float32{make([]float32, 480), make([]float32, 480)}
	assert.Equal(t, 2, src.ReadBlock(dst))
	assert.Equal(t, opusFrameSize-480, src.buffered())

	var energy float64
	for _, v := range dst[0] {
		energy += float64(v * v)
	}
	assert.Positive(t, energy)

	// Draining past what was decoded zero-pads.
	big := [][]float32{make([]float32, 1000), make([]float32, 1000)}
	for i := range big[0] {
		big[0][i], big[1][i] = 1, 1
	}
	src.ReadBlock(big)
	assert.Equal(t, make([]float32, 1000-480), big[0][480:])
	assert.Equal(t, make([]float32, 1000-480), big[1][480:])
	assert.Zero(t, src.buffered())
}

func TestInboundSource_DropsWhenFullAndAfterClose(t *testing.T) {
	t.Parallel()

	enc, err := newOpusEncoder()
	require.NoError(t, err)
	src, err := newInboundSource(nil, 0, zerolog.Nop())
	require.NoError(t, err)
	capacity := len(src.left)

	packet, err := enc.encode(sineBlock(opusFrameSize, 220))
	require.NoError(t, err)
	for i := range capacity/opusFrameSize + 1 {
		src.handlePacket(&rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}, Payload: packet})
	}
	assert.Equal(t, capacity, src.buffered())
	assert.Equal(t, uint64(opusFrameSize), src.dropped)

	src.Close()
	src.Close()
	src.ReadBlock([][]float32{make([]float32, capacity), make([]float32, capacity)})
	src.handlePacket(&rtp.Packet{Payload: packet})
	assert.Zero(t, src.buffered())

	// Empty payloads and garbage are ignored.
	src.handlePacket(&rtp.Packet{})
}

func TestPCMConversion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int16(math.MaxInt16), floatToPCM(2))
	assert.Equal(t, int16(-math.MaxInt16), floatToPCM(-2))
	assert.Equal(t, int16(0), floatToPCM(0))
	assert.InDelta(t, 0.5, pcmToFloat(floatToPCM(0.5)), 1e-4)
}
