package core

// Tap is a per-period callback attached to the host audio graph.
// Process runs on the realtime goroutine and must not block.
type Tap interface {
	Process()
}

// AudioHost is the host audio driver capability, passed explicitly to whoever needs it.
// Taps attached here run after the host's main render pass, in attach order.
type AudioHost interface {
	SampleRate() int
	BlockSize() int
	Attach(t Tap)
	// Detach is safe to call from inside Tap.Process.
	Detach(t Tap)
}

// OutboundStream is a driver-side media destination whose tracks were added to a peer
// connection. Blocks are planar, one slice per channel.
type OutboundStream interface {
	ID() string
	WriteBlock(block [][]float32) error
}

// InboundSource is a driver-side view of one remote track.
type InboundSource interface {
	// ReadBlock fills every slice of dst (zero-padding what the network did not deliver) and
	// returns the number of channels the track actually carries.
	ReadBlock(dst [][]float32) int
	// Close releases this reader. Reads afterwards return silence.
	Close()
}

// MediaDriver plugs the audio bridge into a Driver's media streams.
type MediaDriver interface {
	StreamCreate(h Handle) (OutboundStream, error)
	StreamRemove(h Handle, s OutboundStream)
	// TrackSource returns a new reader over the remote track id. Closing one reader
	// does not affect the track or later readers.
	TrackSource(id TrackID) (InboundSource, error)
}
