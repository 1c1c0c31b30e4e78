package core

// Frame is one encoded signaling message (a JSON envelope such as an answer or a candidate).
type Frame []byte

// SignalConnection carries a session's signaling frames back to its client.
// TrySend never blocks. The transport adapter owns the connection and closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
