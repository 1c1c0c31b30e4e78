package rtc

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpeer/internal/audio"
	"github.com/dkeye/rtcpeer/internal/core"
)

type handlePeer core.Handle

func (p handlePeer) Handle() core.Handle { return core.Handle(p) }

// registerTestTrack installs a decoder for id without a live pion track behind it.
func registerTestTrack(t *testing.T, d *Driver, id core.TrackID) *inboundSource {
	t.Helper()
	src, err := newInboundSource(nil, 0, zerolog.Nop())
	require.NoError(t, err)
	d.mu.Lock()
	d.tracks[id] = trackEntry{handle: 1, src: src}
	d.mu.Unlock()
	return src
}

func feedOpus(t *testing.T, src *inboundSource, seq uint16) {
	t.Helper()
	enc, err := newOpusEncoder()
	require.NoError(t, err)
	packet, err := enc.encode(sineBlock(opusFrameSize, 440))
	require.NoError(t, err)
	src.handlePacket(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: packet})
}

func popEnergy(pb *audio.Playback, n int) float64 {
	frames := make([]audio.SampleFrame, n)
	got := pb.Pop(frames)
	var energy float64
	for _, f := range frames[:got] {
		energy += float64(f.L*f.L + f.R*f.R)
	}
	return energy
}

// ─── track readers ────────────────────────────────────────────────────────────

func TestTrackSource_ReadersAreIndependent(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	src := registerTestTrack(t, d, 5)

	first, err := d.TrackSource(5)
	require.NoError(t, err)
	first.Close()

	second, err := d.TrackSource(5)
	require.NoError(t, err)
	feedOpus(t, src, 1)
	require.Equal(t, opusFrameSize, src.buffered(), "closing a reader keeps the decoder running")

	dst := [][]float32{make([]float32, 480), make([]float32, 480)}
	for i := range dst[0] {
		dst[0][i] = 1
	}
	assert.Equal(t, opusChannels, first.ReadBlock(dst))
	assert.Equal(t, make([]float32, 480), dst[0], "closed reader yields silence")
	assert.Equal(t, opusFrameSize, src.buffered(), "closed reader consumes nothing")

	second.ReadBlock(dst)
	assert.Equal(t, opusFrameSize-480, src.buffered())

	_, err = d.TrackSource(99)
	assert.ErrorIs(t, err, errUnknownTrack)
}

func TestBridge_RebindKeepsDecoding(t *testing.T) {
	t.Parallel()

	d := newTestDriver(t)
	src := registerTestTrack(t, d, 5)

	graph := audio.NewGraph(opusSampleRate, 480, nil)
	playbacks := audio.NewPlaybacks(4 * opusFrameSize)
	nop := zerolog.Nop()
	bridge := audio.NewBridge(graph, d, handlePeer(1), playbacks, &nop)
	t.Cleanup(bridge.Close)

	first := playbacks.Create()
	second := playbacks.Create()
	require.NoError(t, bridge.TrackInstanced(first.ID(), 5))
	require.NoError(t, bridge.TrackInstanced(second.ID(), 5))

	feedOpus(t, src, 1)
	require.Equal(t, opusFrameSize, src.buffered())
	graph.Tick()
	assert.Zero(t, first.Len())
	assert.Positive(t, popEnergy(second, 480))

	// lazy teardown, then a new binding on the same track
	playbacks.Destroy(second.ID())
	graph.Tick()
	require.Zero(t, graph.Taps())

	third := playbacks.Create()
	require.NoError(t, bridge.TrackInstanced(third.ID(), 5))
	feedOpus(t, src, 2)
	require.Positive(t, src.buffered())
	graph.Tick()
	assert.Positive(t, popEnergy(third, 480))
}
