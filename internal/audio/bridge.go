package audio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/core"
)

// Peer is the part of a peer connection the bridge needs: the handle streams are added to.
type Peer interface {
	Handle() core.Handle
}

type trackBinding struct {
	src    RecordSource
	stream core.OutboundStream
	tap    *outboundTap
}

type playbackBinding struct {
	tap *inboundTap
}

// Stats is a point-in-time view of bridge counters.
type Stats struct {
	Tracks           int
	Playbacks        int
	Underflows       uint64
	DroppedFrames    uint64
	PlaybackOverruns uint64
}

// Bridge connects record sources to outbound driver streams and remote tracks to playbacks.
// Its methods are control-side and serialised; taps run on the graph goroutine and never take
// the bridge lock.
type Bridge struct {
	host      core.AudioHost
	media     core.MediaDriver
	peer      Peer
	playbacks PlaybackResolver
	log       zerolog.Logger
	stats     counters

	mu       sync.Mutex
	closed   bool
	tracks   arena[*trackBinding]
	bySource map[SourceID]slotHandle
	inbound  arena[*playbackBinding]
	byTrack  map[core.TrackID]slotHandle
}

// NewBridge binds a host graph to a peer's media streams. logger may be nil.
func NewBridge(host core.AudioHost, media core.MediaDriver, peer Peer, playbacks PlaybackResolver, logger *zerolog.Logger) *Bridge {
	l := log.With().Str("module", "audio").Logger()
	if logger != nil {
		l = *logger
	}
	return &Bridge{
		host:      host,
		media:     media,
		peer:      peer,
		playbacks: playbacks,
		log:       l,
		bySource:  make(map[SourceID]slotHandle),
		byTrack:   make(map[core.TrackID]slotHandle),
	}
}

// AddTrack starts sending src to the peer on a new outbound stream.
func (b *Bridge) AddTrack(src RecordSource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	if _, ok := b.bySource[src.ID()]; ok {
		return fmt.Errorf("audio: add track for source %d: %w", src.ID(), ErrAlreadyInUse)
	}

	stream, err := b.media.StreamCreate(b.peer.Handle())
	if err != nil {
		return fmt.Errorf("audio: create outbound stream: %w", err)
	}
	tap := newOutboundTap(src, stream, b.host.BlockSize(), &b.stats, b.log)
	b.host.Attach(tap)
	src.SetRecordingActive(true)
	b.bySource[src.ID()] = b.tracks.insert(&trackBinding{src: src, stream: stream, tap: tap})

	b.log.Info().Uint64("source", uint64(src.ID())).Str("stream", stream.ID()).Msg("track added")
	return nil
}

// RemoveTrack stops sending src. Unbound sources are ignored.
func (b *Bridge) RemoveTrack(src RecordSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeTrackLocked(src.ID())
}

func (b *Bridge) removeTrackLocked(id SourceID) {
	h, ok := b.bySource[id]
	if !ok {
		return
	}
	delete(b.bySource, id)
	tb, ok := b.tracks.remove(h)
	if !ok {
		return
	}
	tb.tap.alive.Store(false)
	b.host.Detach(tb.tap)
	b.media.StreamRemove(b.peer.Handle(), tb.stream)
	tb.src.SetRecordingActive(false)
	b.log.Info().Uint64("source", uint64(id)).Str("stream", tb.stream.ID()).Msg("track removed")
}

// HasTrack reports whether src is bound.
func (b *Bridge) HasTrack(src RecordSource) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.bySource[src.ID()]
	return ok
}

// TrackInstanced routes remote track into playback. The binding lives until the playback
// disappears from the resolver, the track is rebound, or the bridge closes.
func (b *Bridge) TrackInstanced(playback PlaybackID, track core.TrackID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	b.collectLocked()
	if h, ok := b.byTrack[track]; ok {
		if pb, ok := b.inbound.remove(h); ok {
			pb.tap.kill()
		}
		delete(b.byTrack, track)
	}

	src, err := b.media.TrackSource(track)
	if err != nil {
		return fmt.Errorf("audio: open inbound track %d: %w", track, err)
	}
	tap := newInboundTap(b.host, b.playbacks, playback, track, src, &b.stats, b.log)
	b.host.Attach(tap)
	b.byTrack[track] = b.inbound.insert(&playbackBinding{tap: tap})

	b.log.Info().Uint32("track", uint32(track)).Uint64("playback", uint64(playback)).Msg("track instanced")
	return nil
}

// Collect reclaims bindings whose taps released themselves and returns how many it freed.
func (b *Bridge) Collect() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.collectLocked()
}

func (b *Bridge) collectLocked() int {
	var dead []core.TrackID
	b.inbound.each(func(_ slotHandle, pb *playbackBinding) {
		if !pb.tap.alive.Load() {
			dead = append(dead, pb.tap.track)
		}
	})
	for _, track := range dead {
		b.inbound.remove(b.byTrack[track])
		delete(b.byTrack, track)
	}
	return len(dead)
}

// Close removes every track and inbound binding. Later calls do nothing.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	var sources []SourceID
	for id := range b.bySource {
		sources = append(sources, id)
	}
	for _, id := range sources {
		b.removeTrackLocked(id)
	}
	b.inbound.each(func(_ slotHandle, pb *playbackBinding) {
		pb.tap.kill()
	})
	b.inbound = arena[*playbackBinding]{}
	clear(b.byTrack)
	b.log.Debug().Msg("bridge closed")
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	tracks := b.tracks.len()
	live := 0
	b.inbound.each(func(_ slotHandle, pb *playbackBinding) {
		if pb.tap.alive.Load() {
			live++
		}
	})
	b.mu.Unlock()

	return Stats{
		Tracks:           tracks,
		Playbacks:        live,
		Underflows:       b.stats.underflows.Load(),
		DroppedFrames:    b.stats.droppedFrames.Load(),
		PlaybackOverruns: b.stats.playbackOverruns.Load(),
	}
}
