package audio

import (
	"sync"
	"sync/atomic"
)

// SourceID identifies a record source for the lifetime of the process.
type SourceID uint64

var nextSourceID atomic.Uint64

// RecordSource is the engine-side capture buffer a Bridge reads from once per period.
type RecordSource interface {
	ID() SourceID
	SetRecordingActive(active bool)
	// Buffer returns the captured interleaved samples. The slice is valid until the next
	// Push or ResetBuffer.
	Buffer() (samples []float32, frames, channels int)
	ResetBuffer()
}

var _ RecordSource = (*Recorder)(nil)

// Recorder captures frames pushed by the render pass while recording is active.
// Frames beyond capacity are dropped and counted.
type Recorder struct {
	id       SourceID
	channels int
	capacity int
	active   atomic.Bool
	dropped  atomic.Uint64

	mu      sync.Mutex
	samples []float32
	frames  int
}

// NewRecorder creates a recorder holding up to capacity frames of 1 or 2 channels.
func NewRecorder(channels, capacity int) *Recorder {
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}
	return &Recorder{
		id:       SourceID(nextSourceID.Add(1)),
		channels: channels,
		capacity: capacity,
		samples:  make([]float32, 0, capacity*channels),
	}
}

func (r *Recorder) ID() SourceID { return r.id }

func (r *Recorder) SetRecordingActive(active bool) { r.active.Store(active) }

// Active reports whether Push currently accepts frames.
func (r *Recorder) Active() bool { return r.active.Load() }

// Push appends frames and returns how many were kept. A mono recorder keeps the left sample.
func (r *Recorder) Push(frames []SampleFrame) int {
	if !r.active.Load() {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(frames), r.capacity-r.frames)
	for _, f := range frames[:n] {
		if r.channels == 1 {
			r.samples = append(r.samples, f.L)
		} else {
			r.samples = append(r.samples, f.L, f.R)
		}
	}
	r.frames += n
	if drop := len(frames) - n; drop > 0 {
		r.dropped.Add(uint64(drop))
	}
	return n
}

func (r *Recorder) Buffer() ([]float32, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples, r.frames, r.channels
}

func (r *Recorder) ResetBuffer() {
	r.mu.Lock()
	r.samples = r.samples[:0]
	r.frames = 0
	r.mu.Unlock()
}

// Dropped returns how many pushed frames did not fit.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
