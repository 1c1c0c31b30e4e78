package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/audio"
	"github.com/dkeye/rtcpeer/internal/core"
	"github.com/dkeye/rtcpeer/internal/peer"
)

// Session is one client: a peer connection, its audio bridge, and the signaling
// connection it reports to. Its audio path echoes whatever the remote peer sends.
type Session struct {
	sid       core.SessionID
	conn      *peer.Connection
	events    *peer.Queue
	bridge    *audio.Bridge
	recorder  *audio.Recorder
	playbacks *audio.Playbacks
	out       core.SignalConnection
	policy    Policy
	refused   atomic.Uint64
	log       zerolog.Logger

	mu     sync.Mutex
	tracks map[core.TrackID]audio.PlaybackID
	closed bool
	done   chan struct{}

	// render scratch, graph goroutine only
	mix  []audio.SampleFrame
	pull []audio.SampleFrame
}

func newSession(sid core.SessionID, out core.SignalConnection, opts Options) (*Session, error) {
	logger := log.With().Str("module", "app.session").Str("sid", string(sid)).Logger()

	events := peer.NewQueue(opts.EventQueueSize, logger)
	conn := peer.New(opts.Driver, events, peer.WithLogger(logger))
	if err := conn.Initialize(opts.Peer); err != nil {
		events.Close()
		return nil, fmt.Errorf("initialize peer: %w", err)
	}

	playbacks := audio.NewPlaybacks(opts.PlaybackCapacity)
	bridge := audio.NewBridge(opts.Host, opts.Media, conn, playbacks, &logger)
	rec := audio.NewRecorder(2, opts.RecordCapacity)
	if err := bridge.AddTrack(rec); err != nil {
		conn.Destroy()
		events.Close()
		return nil, fmt.Errorf("add outbound track: %w", err)
	}

	block := opts.Host.BlockSize()
	return &Session{
		sid:       sid,
		conn:      conn,
		events:    events,
		bridge:    bridge,
		recorder:  rec,
		playbacks: playbacks,
		out:       out,
		policy:    opts.Policy,
		log:       logger,
		tracks:    make(map[core.TrackID]audio.PlaybackID),
		done:      make(chan struct{}),
		mix:       make([]audio.SampleFrame, block),
		pull:      make([]audio.SampleFrame, block),
	}, nil
}

func (s *Session) ID() core.SessionID { return s.sid }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run pumps peer events until ctx is done, then closes the session.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

// Offer applies a remote offer. The answer is sent back once the driver produces it.
func (s *Session) Offer(sdp string) error {
	return s.conn.SetRemoteDescription(core.SDPOffer, sdp)
}

// Answer applies the remote answer to an offer made by Call.
func (s *Session) Answer(sdp string) error {
	return s.conn.SetRemoteDescription(core.SDPAnswer, sdp)
}

func (s *Session) Candidate(mid string, mlineIndex int, candidate string) error {
	return s.conn.AddICECandidate(mid, mlineIndex, candidate)
}

// Call makes the server the offering side.
func (s *Session) Call() error {
	return s.conn.CreateOffer()
}

func (s *Session) State() StateMsg {
	return StateMsg{
		Type:       "state",
		Connection: s.conn.ConnectionState().String(),
		Gathering:  s.conn.GatheringState().String(),
		Signaling:  s.conn.SignalingState().String(),
	}
}

func (s *Session) Stats() audio.Stats { return s.bridge.Stats() }

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tracks := s.tracks
	s.tracks = map[core.TrackID]audio.PlaybackID{}
	s.mu.Unlock()

	s.bridge.Close()
	for _, id := range tracks {
		s.playbacks.Destroy(id)
	}
	s.conn.Destroy()
	s.events.Close()
	close(s.done)
	s.log.Info().Msg("session closed")
}

func (s *Session) handleEvent(ev peer.Event) {
	switch ev := ev.(type) {
	case peer.SessionDescriptionCreated:
		if err := s.conn.SetLocalDescription(ev.Type, ev.SDP); err != nil {
			s.log.Error().Err(err).Msg("set local description")
			return
		}
		s.send(descriptionMsg{Type: string(ev.Type), SDP: ev.SDP})
	case peer.ICECandidateCreated:
		s.send(candidateMsg{
			Type:          "candidate",
			Candidate:     ev.Candidate,
			SDPMid:        ev.Mid,
			SDPMLineIndex: ev.MLineIndex,
		})
	case peer.DataChannelReceived:
		s.echo(ev.Channel)
	case peer.TrackReceived:
		s.instanceTrack(ev.Track)
	case peer.ErrorEvent:
		s.send(errorMsg{Type: "error", Error: fmt.Sprintf("%s: %v", ev.Op, ev.Err)})
	}
}

func (s *Session) echo(dc *peer.DataChannel) {
	label := dc.Label()
	s.log.Info().Str("label", label).Msg("data channel received")
	dc.OnMessage(func(data []byte) {
		if err := dc.Send(data); err != nil {
			s.log.Warn().Err(err).Str("label", label).Msg("data channel echo")
		}
	})
}

func (s *Session) instanceTrack(track core.TrackID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	pb := s.playbacks.Create()
	if err := s.bridge.TrackInstanced(pb.ID(), track); err != nil {
		s.playbacks.Destroy(pb.ID())
		s.log.Error().Err(err).Uint32("track", uint32(track)).Msg("track instanced")
		return
	}
	if old, ok := s.tracks[track]; ok {
		s.playbacks.Destroy(old)
	}
	s.tracks[track] = pb.ID()
}

// render mixes every playback into the recorder. It runs on the graph goroutine before the
// bridge taps, so what was received last period is sent back this period.
func (s *Session) render() {
	n := 0
	for _, pb := range s.playbacks.Snapshot() {
		got := pb.Pop(s.pull)
		for i := range got {
			if i < n {
				s.mix[i].L += s.pull[i].L
				s.mix[i].R += s.pull[i].R
			} else {
				s.mix[i] = s.pull[i]
			}
		}
		n = max(n, got)
	}
	if n > 0 {
		s.recorder.Push(s.mix[:n])
	}
}

func (s *Session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("send marshal")
		return
	}
	if err := s.out.TrySend(core.Frame(b)); err != nil {
		n := s.refused.Add(1)
		switch s.policy.OnBackPressure(s.sid, n) {
		case CloseSession:
			s.log.Warn().Err(err).Uint64("refused", n).Msg("signal backpressure, closing session")
			s.Close()
		case DropFrame:
			s.log.Warn().Err(err).Uint64("refused", n).Msg("signal send dropped")
		}
	}
}
