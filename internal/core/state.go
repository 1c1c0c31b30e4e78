package core

// ConnectionState is the transport-level state of a peer connection.
type ConnectionState int32

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// GatheringState is the progress of local candidate discovery.
type GatheringState int32

const (
	GatheringNew GatheringState = iota
	GatheringGathering
	GatheringComplete
)

func (s GatheringState) String() string {
	switch s {
	case GatheringNew:
		return "new"
	case GatheringGathering:
		return "gathering"
	case GatheringComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// SignalingState is the offer/answer handshake phase.
type SignalingState int32

const (
	SignalingStable SignalingState = iota
	SignalingHaveLocalOffer
	SignalingHaveRemoteOffer
	SignalingHaveLocalPranswer
	SignalingHaveRemotePranswer
	SignalingClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStable:
		return "stable"
	case SignalingHaveLocalOffer:
		return "have-local-offer"
	case SignalingHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SDPType is the type field of a session description.
type SDPType string

const (
	SDPOffer    SDPType = "offer"
	SDPAnswer   SDPType = "answer"
	SDPPranswer SDPType = "pranswer"
	SDPRollback SDPType = "rollback"
)

// ChannelState mirrors RTCDataChannel.readyState.
type ChannelState int32

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}
