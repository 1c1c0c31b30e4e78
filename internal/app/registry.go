package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/core"
)

type sessionEntry struct {
	Session *Session
	Cancel  context.CancelFunc
}

// Registry maps client tokens to their live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// Bind stores sess under sid and returns the entry it replaced, if any.
func (r *Registry) Bind(sid core.SessionID, sess *Session, cancel context.CancelFunc) (*Session, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		prev       *Session
		prevCancel context.CancelFunc
	)
	if old, ok := r.sessions[sid]; ok {
		prev, prevCancel = old.Session, old.Cancel
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
	return prev, prevCancel
}

func (r *Registry) GetSession(sid core.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes sid only while it still points at sess, so a replaced session cannot
// unbind its successor.
func (r *Registry) Unbind(sid core.SessionID, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

// CancelIf cancels sid only while it is bound to sess.
func (r *Registry) CancelIf(sid core.SessionID, sess *Session) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok || e.Session != sess {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions in no particular order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}
