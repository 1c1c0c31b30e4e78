package audio

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dkeye/rtcpeer/internal/core"
)

// counters is shared by a Bridge and its taps.
type counters struct {
	underflows       atomic.Uint64
	droppedFrames    atomic.Uint64
	playbackOverruns atomic.Uint64
	writeErrors      atomic.Uint64
}

// outboundTap copies the record source into the driver stream once per period.
type outboundTap struct {
	src    RecordSource
	stream core.OutboundStream
	block  [][]float32
	alive  atomic.Bool
	stats  *counters
	log    zerolog.Logger
}

func newOutboundTap(src RecordSource, stream core.OutboundStream, blockSize int, stats *counters, log zerolog.Logger) *outboundTap {
	t := &outboundTap{
		src:    src,
		stream: stream,
		block:  [][]float32{make([]float32, blockSize), make([]float32, blockSize)},
		stats:  stats,
		log:    log,
	}
	t.alive.Store(true)
	return t
}

func (t *outboundTap) Process() {
	if !t.alive.Load() {
		return
	}
	samples, frames, channels := t.src.Buffer()
	blockSize := len(t.block[0])
	n := min(blockSize, frames)
	if channels < 1 || len(samples) < n*channels {
		n = 0
	}

	for c, out := range t.block {
		for i := 0; i < n; i++ {
			out[i] = samples[i*channels+c%channels]
		}
		clear(out[n:])
	}

	if n < blockSize {
		t.stats.underflows.Add(1)
	}
	if frames > blockSize {
		t.stats.droppedFrames.Add(uint64(frames - blockSize))
	}
	t.src.ResetBuffer()

	if err := t.stream.WriteBlock(t.block); err != nil {
		// first failure only; the stream keeps receiving blocks
		if t.stats.writeErrors.Add(1) == 1 {
			t.log.Warn().Err(err).Str("stream", t.stream.ID()).Msg("outbound write failed")
		}
	}
}

// inboundTap moves one block from a remote track into its playback each period. When the
// playback can no longer be resolved the tap detaches itself and closes the source.
type inboundTap struct {
	host     core.AudioHost
	resolver PlaybackResolver
	playback PlaybackID
	track    core.TrackID
	src      core.InboundSource
	block    [][]float32
	alive    atomic.Bool
	stats    *counters
	log      zerolog.Logger
}

func newInboundTap(host core.AudioHost, resolver PlaybackResolver, playback PlaybackID, track core.TrackID,
	src core.InboundSource, stats *counters, log zerolog.Logger) *inboundTap {
	bs := host.BlockSize()
	t := &inboundTap{
		host:     host,
		resolver: resolver,
		playback: playback,
		track:    track,
		src:      src,
		block:    [][]float32{make([]float32, bs), make([]float32, bs)},
		stats:    stats,
		log:      log,
	}
	t.alive.Store(true)
	return t
}

func (t *inboundTap) Process() {
	if !t.alive.Load() {
		return
	}
	sink, ok := t.resolver.Playback(t.playback)
	if !ok {
		if t.kill() {
			t.log.Debug().
				Uint64("playback", uint64(t.playback)).
				Uint32("track", uint32(t.track)).
				Msg("playback gone, inbound tap released")
		}
		return
	}

	channels := t.src.ReadBlock(t.block)
	left, right := t.block[0], t.block[0]
	if channels > 1 {
		right = t.block[1]
	}
	for i := range left {
		if !sink.PushFrame(SampleFrame{L: left[i], R: right[i]}) {
			t.stats.playbackOverruns.Add(1)
		}
	}
}

// kill marks the tap dead, detaches it and closes its source. Only the first caller does the
// work; it reports whether that was this call.
func (t *inboundTap) kill() bool {
	if !t.alive.CompareAndSwap(true, false) {
		return false
	}
	t.host.Detach(t)
	t.src.Close()
	return true
}
