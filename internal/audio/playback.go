package audio

import (
	"sync"
	"sync/atomic"
)

// PlaybackID identifies a playback sink.
type PlaybackID uint64

// PlaybackSink accepts frames for playback. PushFrame returns false when the frame was dropped.
type PlaybackSink interface {
	PushFrame(f SampleFrame) bool
}

// PlaybackResolver finds a live sink by identity. Taps call it every period.
type PlaybackResolver interface {
	Playback(id PlaybackID) (PlaybackSink, bool)
}

// Playback is a bounded frame queue filled by the bridge and drained by the render pass.
type Playback struct {
	id      PlaybackID
	dropped atomic.Uint64

	mu   sync.Mutex
	buf  []SampleFrame
	head int
	size int
}

func newPlayback(id PlaybackID, capacity int) *Playback {
	if capacity < 1 {
		capacity = 1
	}
	return &Playback{id: id, buf: make([]SampleFrame, capacity)}
}

func (p *Playback) ID() PlaybackID { return p.id }

func (p *Playback) PushFrame(f SampleFrame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size == len(p.buf) {
		p.dropped.Add(1)
		return false
	}
	p.buf[(p.head+p.size)%len(p.buf)] = f
	p.size++
	return true
}

// Pop moves up to len(dst) queued frames into dst and returns the count.
func (p *Playback) Pop(dst []SampleFrame) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := min(len(dst), p.size)
	for i := range n {
		dst[i] = p.buf[(p.head+i)%len(p.buf)]
	}
	p.head = (p.head + n) % len(p.buf)
	p.size -= n
	return n
}

// Len returns the number of queued frames.
func (p *Playback) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Dropped returns how many frames were rejected because the queue was full.
func (p *Playback) Dropped() uint64 { return p.dropped.Load() }

var _ PlaybackResolver = (*Playbacks)(nil)

// Playbacks is the identity registry of live playback sinks.
type Playbacks struct {
	capacity int
	next     atomic.Uint64

	mu sync.RWMutex
	m  map[PlaybackID]*Playback
}

// NewPlaybacks creates a registry whose playbacks hold capacity frames each.
func NewPlaybacks(capacity int) *Playbacks {
	return &Playbacks{capacity: capacity, m: make(map[PlaybackID]*Playback)}
}

func (ps *Playbacks) Create() *Playback {
	p := newPlayback(PlaybackID(ps.next.Add(1)), ps.capacity)
	ps.mu.Lock()
	ps.m[p.id] = p
	ps.mu.Unlock()
	return p
}

func (ps *Playbacks) Lookup(id PlaybackID) (*Playback, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.m[id]
	return p, ok
}

// Playback implements PlaybackResolver.
func (ps *Playbacks) Playback(id PlaybackID) (PlaybackSink, bool) {
	p, ok := ps.Lookup(id)
	if !ok {
		return nil, false
	}
	return p, true
}

// Destroy forgets id. Bridge taps bound to it tear themselves down on their next period.
func (ps *Playbacks) Destroy(id PlaybackID) {
	ps.mu.Lock()
	delete(ps.m, id)
	ps.mu.Unlock()
}

// Snapshot returns the live playbacks in no particular order.
func (ps *Playbacks) Snapshot() []*Playback {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]*Playback, 0, len(ps.m))
	for _, p := range ps.m {
		out = append(out, p)
	}
	return out
}
