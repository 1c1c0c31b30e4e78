// Package mock provides an in-memory [core.Driver] for tests. It records every call and
// lets tests fire the callbacks a native engine would deliver.
package mock

import (
	"errors"
	"sync"

	"github.com/dkeye/rtcpeer/internal/core"
)

var (
	_ core.Driver        = (*Driver)(nil)
	_ core.ChannelDriver = (*Driver)(nil)
	_ core.MediaDriver   = (*Driver)(nil)
)

// ErrRefused is returned by Create when RefuseCreate is set.
var ErrRefused = errors.New("mock: create refused")

// Call is one recorded driver invocation.
type Call struct {
	Method     string
	Handle     core.Handle
	Type       core.SDPType
	SDP        string
	Mid        string
	MLineIndex int
	Candidate  string
	Label      string
	Config     []byte
}

// Driver is safe for concurrent use.
type Driver struct {
	mu sync.Mutex

	// RefuseCreate makes Create fail.
	RefuseCreate bool
	// RefuseChannel makes CreateDataChannel return 0.
	RefuseChannel bool
	// StreamErr is returned by StreamCreate when set.
	StreamErr error

	next       core.Handle
	nextChan   core.ChannelID
	callbacks  map[core.Handle]core.Callbacks
	sessions   map[core.Handle]core.SessionFunc
	errs       map[core.Handle]core.ErrorFunc
	calls      []Call
	channels   map[core.ChannelID]*Channel
	streams    []*Stream
	sources    map[core.TrackID]*Source
	destroyed  map[core.Handle]int
	closed     map[core.Handle]int
	removedStr []*Stream
}

// Channel is the fake state behind a ChannelID.
type Channel struct {
	Label     string
	State     core.ChannelState
	Sent      [][]byte
	OnMessage func([]byte)
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		callbacks: make(map[core.Handle]core.Callbacks),
		sessions:  make(map[core.Handle]core.SessionFunc),
		errs:      make(map[core.Handle]core.ErrorFunc),
		channels:  make(map[core.ChannelID]*Channel),
		sources:   make(map[core.TrackID]*Source),
		destroyed: make(map[core.Handle]int),
		closed:    make(map[core.Handle]int),
	}
}

func (d *Driver) record(c Call) {
	d.calls = append(d.calls, c)
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (d *Driver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// DestroyCount returns how many times h was destroyed.
func (d *Driver) DestroyCount(h core.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[h]
}

// CloseCount returns how many times h was closed.
func (d *Driver) CloseCount(h core.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[h]
}

// Callbacks returns the callback set registered for h.
func (d *Driver) Callbacks(h core.Handle) core.Callbacks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks[h]
}

// Session fires the last session callback handed to the driver for h.
func (d *Driver) Session(h core.Handle, typ core.SDPType, sdp string) {
	d.mu.Lock()
	fn := d.sessions[h]
	d.mu.Unlock()
	if fn != nil {
		fn(typ, sdp)
	}
}

// Fail fires the last error callback handed to the driver for h.
func (d *Driver) Fail(h core.Handle, err error) {
	d.mu.Lock()
	fn := d.errs[h]
	d.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (d *Driver) Create(config []byte, cb core.Callbacks) (core.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "Create", Config: config})
	if d.RefuseCreate {
		return 0, ErrRefused
	}
	d.next++
	d.callbacks[d.next] = cb
	return d.next, nil
}

func (d *Driver) Close(h core.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "Close", Handle: h})
	d.closed[h]++
}

func (d *Driver) Destroy(h core.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "Destroy", Handle: h})
	d.destroyed[h]++
	delete(d.callbacks, h)
}

func (d *Driver) CreateOffer(h core.Handle, onSession core.SessionFunc, onError core.ErrorFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "CreateOffer", Handle: h})
	d.sessions[h] = onSession
	d.errs[h] = onError
}

func (d *Driver) SetLocalDescription(h core.Handle, typ core.SDPType, sdp string, onError core.ErrorFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "SetLocalDescription", Handle: h, Type: typ, SDP: sdp})
	d.errs[h] = onError
}

func (d *Driver) SetRemoteDescription(h core.Handle, typ core.SDPType, sdp string, onSession core.SessionFunc, onError core.ErrorFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "SetRemoteDescription", Handle: h, Type: typ, SDP: sdp})
	d.sessions[h] = onSession
	d.errs[h] = onError
}

func (d *Driver) AddICECandidate(h core.Handle, mid string, mlineIndex int, candidate string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "AddICECandidate", Handle: h, Mid: mid, MLineIndex: mlineIndex, Candidate: candidate})
}

func (d *Driver) CreateDataChannel(h core.Handle, label string, config []byte) core.ChannelID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "CreateDataChannel", Handle: h, Label: label, Config: config})
	if d.RefuseChannel {
		return 0
	}
	return d.addChannelLocked(label)
}

// AddChannel registers a channel as if the remote side had opened it.
func (d *Driver) AddChannel(label string) core.ChannelID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addChannelLocked(label)
}

func (d *Driver) addChannelLocked(label string) core.ChannelID {
	d.nextChan++
	d.channels[d.nextChan] = &Channel{Label: label, State: core.ChannelConnecting}
	return d.nextChan
}

// Channel returns the fake state for id.
func (d *Driver) Channel(id core.ChannelID) *Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[id]
}

// Deliver hands data to the channel's message handler as if it came from the remote peer.
// It reports false when no handler is registered.
func (d *Driver) Deliver(id core.ChannelID, data []byte) bool {
	d.mu.Lock()
	var fn func([]byte)
	if ch, ok := d.channels[id]; ok {
		fn = ch.OnMessage
	}
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(data)
	return true
}

// Sent returns copies of what was sent on id.
func (d *Driver) Sent(id core.ChannelID) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[id]
	if !ok {
		return nil
	}
	return append([][]byte(nil), ch.Sent...)
}

// SetChannelState moves a channel to st.
func (d *Driver) SetChannelState(id core.ChannelID, st core.ChannelState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		ch.State = st
	}
}

func (d *Driver) ChannelLabel(id core.ChannelID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		return ch.Label
	}
	return ""
}

func (d *Driver) ChannelReadyState(id core.ChannelID) core.ChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		return ch.State
	}
	return core.ChannelClosed
}

func (d *Driver) ChannelSend(id core.ChannelID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[id]
	if !ok || ch.State == core.ChannelClosed {
		return errors.New("mock: channel closed")
	}
	ch.Sent = append(ch.Sent, append([]byte(nil), data...))
	return nil
}

func (d *Driver) ChannelOnMessage(id core.ChannelID, fn func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		ch.OnMessage = fn
	}
}

func (d *Driver) ChannelClose(id core.ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		ch.State = core.ChannelClosed
	}
}

// Stream is a fake outbound stream that keeps every block written to it.
type Stream struct {
	mu     sync.Mutex
	id     string
	blocks [][][]float32
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) WriteBlock(block [][]float32) error {
	cp := make([][]float32, len(block))
	for i, ch := range block {
		cp[i] = append([]float32(nil), ch...)
	}
	s.mu.Lock()
	s.blocks = append(s.blocks, cp)
	s.mu.Unlock()
	return nil
}

// Blocks returns copies of the written blocks.
func (s *Stream) Blocks() [][][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][][]float32(nil), s.blocks...)
}

func (d *Driver) StreamCreate(h core.Handle) (core.OutboundStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "StreamCreate", Handle: h})
	if d.StreamErr != nil {
		return nil, d.StreamErr
	}
	s := &Stream{id: "stream-" + string(rune('a'+len(d.streams)))}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *Driver) StreamRemove(h core.Handle, s core.OutboundStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Method: "StreamRemove", Handle: h})
	if ms, ok := s.(*Stream); ok {
		d.removedStr = append(d.removedStr, ms)
	}
}

// RemovedStreams returns the streams handed to StreamRemove.
func (d *Driver) RemovedStreams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.removedStr...)
}

// Streams returns every stream created so far.
func (d *Driver) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Source is a fake remote track replaying the frames queued by the test. Each TrackSource
// call hands out a new Reader over it.
type Source struct {
	mu       sync.Mutex
	Channels int
	left     []float32
	right    []float32
	readers  []*Reader
}

// Feed queues samples. right is ignored for mono sources.
func (s *Source) Feed(left, right []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, left...)
	s.right = append(s.right, right...)
}

// Readers reports how many readers were handed out and how many of them are still open.
func (s *Source) Readers() (total, open int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.readers {
		if !r.closed {
			open++
		}
	}
	return len(s.readers), open
}

func (s *Source) newReader() *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Reader{src: s}
	s.readers = append(s.readers, r)
	return r
}

func (s *Source) read(dst [][]float32) {
	for c, out := range dst {
		src := s.left
		if c == 1 && s.Channels > 1 {
			src = s.right
		}
		n := copy(out, src)
		clear(out[n:])
	}
	if len(dst) > 0 {
		n := min(len(dst[0]), len(s.left))
		s.left = s.left[n:]
		if len(s.right) >= n {
			s.right = s.right[n:]
		}
	}
}

// Reader is one binding's view of a Source. A closed reader yields silence and consumes
// nothing.
type Reader struct {
	src    *Source
	closed bool
}

func (r *Reader) ReadBlock(dst [][]float32) int {
	s := r.src
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.closed {
		for _, out := range dst {
			clear(out)
		}
		return s.Channels
	}
	s.read(dst)
	return s.Channels
}

func (r *Reader) Close() {
	r.src.mu.Lock()
	r.closed = true
	r.src.mu.Unlock()
}

// AddTrack registers an inbound source for id with the given channel count.
func (d *Driver) AddTrack(id core.TrackID, channels int) *Source {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := &Source{Channels: channels}
	d.sources[id] = src
	return src
}

func (d *Driver) TrackSource(id core.TrackID) (core.InboundSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.sources[id]
	if !ok {
		return nil, errors.New("mock: unknown track")
	}
	return src.newReader(), nil
}
