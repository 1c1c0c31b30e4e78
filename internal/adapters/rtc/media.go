package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/dkeye/rtcpeer/internal/core"
)

var errStreamClosed = errors.New("rtc: stream closed")

// outboundStream encodes planar float blocks into Opus and writes them to a local track.
// Blocks of any size are accumulated until a full 20 ms frame is ready.
type outboundStream struct {
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
	enc    *opusEncoder
	closed atomic.Bool

	pending []int16
}

func newOutboundStream(pc *webrtc.PeerConnection) (*outboundStream, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusSampleRate,
			Channels:  opusChannels,
		},
		"audio-"+id,
		"stream-"+id,
	)
	if err != nil {
		return nil, fmt.Errorf("rtc: create local track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("rtc: add track: %w", err)
	}

	// RTCP must be drained for interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return &outboundStream{
		track:   track,
		sender:  sender,
		enc:     enc,
		pending: make([]int16, 0, opusFrameSize*opusChannels*2),
	}, nil
}

func (s *outboundStream) ID() string { return s.track.StreamID() }

// WriteBlock runs on the audio graph goroutine.
func (s *outboundStream) WriteBlock(block [][]float32) error {
	if s.closed.Load() {
		return errStreamClosed
	}
	if len(block) == 0 {
		return nil
	}
	right := block[0]
	if len(block) > 1 {
		right = block[1]
	}
	for i, l := range block[0] {
		s.pending = append(s.pending, floatToPCM(l), floatToPCM(right[i]))
	}

	frame := opusFrameSize * opusChannels
	for len(s.pending) >= frame {
		packet, err := s.enc.encode(s.pending[:frame])
		s.pending = append(s.pending[:0], s.pending[frame:]...)
		if err != nil {
			return err
		}
		if err := s.track.WriteSample(media.Sample{
			Data:     packet,
			Duration: opusFrameSizeMs * time.Millisecond,
		}); err != nil {
			return err
		}
	}
	return nil
}

// inboundSource decodes a remote Opus track into a bounded ring of stereo frames.
// The reader goroutine fills it; the audio graph drains it with ReadBlock.
type inboundSource struct {
	track  *webrtc.TrackRemote
	dec    *opusDecoder
	cancel context.CancelFunc
	log    zerolog.Logger

	mu      sync.Mutex
	left    []float32
	right   []float32
	head    int
	size    int
	dropped uint64
	closed  bool
}

func newInboundSource(track *webrtc.TrackRemote, capacity int, logger zerolog.Logger) (*inboundSource, error) {
	dec, err := newOpusDecoder()
	if err != nil {
		return nil, err
	}
	if capacity < opusMaxDecoded {
		capacity = opusMaxDecoded
	}
	return &inboundSource{
		track: track,
		dec:   dec,
		log:   logger,
		left:  make([]float32, capacity),
		right: make([]float32, capacity),
	}, nil
}

// start launches the RTP reader. It stops when ctx is done, the track ends, or Close is called.
func (s *inboundSource) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.loop(ctx)
}

func (s *inboundSource) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := s.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Error().Err(err).Msg("read RTP error, stopping")
			}
			return
		}
		s.handlePacket(pkt)
	}
}

func (s *inboundSource) handlePacket(pkt *rtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	pcm, err := s.dec.decode(pkt.Payload)
	if err != nil {
		s.log.Debug().Err(err).Uint16("seq", pkt.SequenceNumber).Msg("opus decode failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	capacity := len(s.left)
	for i := 0; i+1 < len(pcm); i += opusChannels {
		if s.size == capacity {
			s.dropped++
			continue
		}
		at := (s.head + s.size) % capacity
		s.left[at] = pcmToFloat(pcm[i])
		s.right[at] = pcmToFloat(pcm[i+1])
		s.size++
	}
}

// ReadBlock copies what has been decoded and zero-pads the rest.
func (s *inboundSource) ReadBlock(dst [][]float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if len(dst) > 0 {
		n = min(len(dst[0]), s.size)
	}
	capacity := len(s.left)
	for c, out := range dst {
		ring := s.left
		if c == 1 {
			ring = s.right
		}
		for i := 0; i < n && i < len(out); i++ {
			out[i] = ring[(s.head+i)%capacity]
		}
		clear(out[min(n, len(out)):])
	}
	s.head = (s.head + n) % capacity
	s.size -= n
	return opusChannels
}

func (s *inboundSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *inboundSource) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

var _ core.MediaDriver = (*Driver)(nil)

func (d *Driver) StreamCreate(h core.Handle) (core.OutboundStream, error) {
	c, ok := d.conn(h)
	if !ok {
		return nil, fmt.Errorf("rtc: stream create on handle %d: %w", h, errUnknownHandle)
	}
	s, err := newOutboundStream(c.pc)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("stream", s.ID()).Msg("outbound stream added")
	return s, nil
}

func (d *Driver) StreamRemove(h core.Handle, s core.OutboundStream) {
	ob, ok := s.(*outboundStream)
	if !ok {
		return
	}
	ob.closed.Store(true)
	c, ok := d.conn(h)
	if !ok {
		return
	}
	if err := c.pc.RemoveTrack(ob.sender); err != nil {
		c.log.Warn().Err(err).Str("stream", ob.ID()).Msg("remove track")
	}
}

// trackReader is one binding's view of a remote track. Closing it releases the binding only;
// the track keeps decoding until its connection is destroyed.
type trackReader struct {
	src    *inboundSource
	closed atomic.Bool
}

func (r *trackReader) ReadBlock(dst [][]float32) int {
	if r.closed.Load() {
		for _, out := range dst {
			clear(out)
		}
		return opusChannels
	}
	return r.src.ReadBlock(dst)
}

func (r *trackReader) Close() { r.closed.Store(true) }

// TrackSource hands out a fresh reader over the track's decoder on every call.
func (d *Driver) TrackSource(id core.TrackID) (core.InboundSource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tracks[id]
	if !ok {
		return nil, fmt.Errorf("rtc: track %d: %w", id, errUnknownTrack)
	}
	return &trackReader{src: t.src}, nil
}

// registerTrack decodes an incoming Opus track. Other codecs are ignored and get id 0.
func (d *Driver) registerTrack(ctx context.Context, h core.Handle, track *webrtc.TrackRemote) core.TrackID {
	if mime := track.Codec().MimeType; !strings.EqualFold(mime, webrtc.MimeTypeOpus) {
		d.log.Warn().Str("codec", mime).Msg("unsupported codec, only Opus is decoded")
		return 0
	}
	src, err := newInboundSource(track, d.inboundCapacity, d.log.With().Str("track_id", track.ID()).Logger())
	if err != nil {
		d.log.Error().Err(err).Msg("inbound source")
		return 0
	}

	d.mu.Lock()
	d.nextTrack++
	id := d.nextTrack
	d.tracks[id] = trackEntry{handle: h, src: src}
	d.mu.Unlock()

	src.start(ctx)
	return id
}
