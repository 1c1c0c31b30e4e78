// Package audio holds the engine side of the media path: a fixed-period host graph, capture
// and playback buffers, and the Bridge that moves blocks between them and a peer's driver
// streams.
package audio

// SampleFrame is one stereo sample pair.
type SampleFrame struct {
	L, R float32
}
