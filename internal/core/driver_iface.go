package core

// Handle identifies one native peer connection. Zero means none.
type Handle uint32

// ChannelID identifies a native data channel. Zero means creation failed.
type ChannelID uint32

// TrackID identifies a remote media track surfaced by the driver.
type TrackID uint32

// SessionFunc receives a session description produced by the driver.
type SessionFunc func(typ SDPType, sdp string)

// ErrorFunc receives an asynchronous negotiation failure.
type ErrorFunc func(err error)

// Callbacks are registered once per handle at Create time.
// The driver invokes them in the order the underlying engine emits them.
type Callbacks struct {
	OnConnectionState func(ConnectionState)
	OnGatheringState  func(GatheringState)
	OnSignalingState  func(SignalingState)
	OnICECandidate    func(mid string, mlineIndex int, candidate string)
	OnDataChannel     func(ChannelID)
	// OnTrack reports a remote track that can be fed to an inbound tap.
	OnTrack func(TrackID)
}

// Driver is the native WebRTC engine as seen by the session layer.
// Every method that negotiates reports its outcome through callbacks; none of them block
// until the network answers.
type Driver interface {
	// Create builds a native peer connection from the serialized configuration.
	Create(config []byte, cb Callbacks) (Handle, error)
	// Close shuts the native connection down but keeps the handle allocated.
	Close(h Handle)
	// Destroy releases the handle. Callbacks for it stop afterwards.
	Destroy(h Handle)

	CreateOffer(h Handle, onSession SessionFunc, onError ErrorFunc)
	SetLocalDescription(h Handle, typ SDPType, sdp string, onError ErrorFunc)
	// SetRemoteDescription answers automatically when typ is an offer and reports the
	// answer through onSession.
	SetRemoteDescription(h Handle, typ SDPType, sdp string, onSession SessionFunc, onError ErrorFunc)
	AddICECandidate(h Handle, mid string, mlineIndex int, candidate string)

	// CreateDataChannel returns 0 when the engine refuses the channel.
	CreateDataChannel(h Handle, label string, config []byte) ChannelID
}

// ChannelDriver operates on channels created by or delivered from a Driver.
type ChannelDriver interface {
	ChannelLabel(id ChannelID) string
	ChannelReadyState(id ChannelID) ChannelState
	ChannelSend(id ChannelID, data []byte) error
	ChannelOnMessage(id ChannelID, fn func([]byte))
	ChannelClose(id ChannelID)
}
