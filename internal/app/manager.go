package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/core"
	"github.com/dkeye/rtcpeer/internal/domain"
)

// Options is what every new session is built from.
type Options struct {
	Driver core.Driver
	Media  core.MediaDriver
	Host   core.AudioHost
	Peer   domain.Configuration
	Policy Policy

	EventQueueSize   int
	RecordCapacity   int
	PlaybackCapacity int
}

// Manager opens and tracks sessions, one per client token.
type Manager struct {
	Registry *Registry
	opts     Options
}

func NewManager(reg *Registry, opts Options) *Manager {
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	return &Manager{Registry: reg, opts: opts}
}

// Open creates a session for sid, replacing any session already bound to it. The session
// runs until ctx is done or Close(sid) is called.
func (m *Manager) Open(ctx context.Context, sid core.SessionID, out core.SignalConnection) (*Session, error) {
	sess, err := newSession(sid, out, m.opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	if _, prevCancel := m.Registry.Bind(sid, sess, cancel); prevCancel != nil {
		log.Info().Str("module", "app").Str("sid", string(sid)).Msg("replacing existing session")
		prevCancel()
	}
	go func() {
		sess.Run(ctx)
		m.Registry.Unbind(sid, sess)
		cancel()
	}()
	return sess, nil
}

// Close cancels the session bound to sid.
func (m *Manager) Close(sid core.SessionID) bool {
	return m.Registry.Cancel(sid)
}

// Release cancels sess if it is still the session bound to its sid.
func (m *Manager) Release(sess *Session) bool {
	return m.Registry.CancelIf(sess.sid, sess)
}

// Render is the graph's main render pass: every session echoes what it received.
func (m *Manager) Render() {
	for _, s := range m.Registry.Snapshot() {
		s.render()
	}
}

func (m *Manager) Len() int { return m.Registry.Len() }
