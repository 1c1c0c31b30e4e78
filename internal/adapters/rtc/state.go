package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/rtcpeer/internal/core"
)

func connectionState(s webrtc.PeerConnectionState) core.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return core.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return core.ConnectionClosed
	default:
		return core.ConnectionNew
	}
}

func gatheringState(s webrtc.ICEGatheringState) core.GatheringState {
	switch s {
	case webrtc.ICEGatheringStateGathering:
		return core.GatheringGathering
	case webrtc.ICEGatheringStateComplete:
		return core.GatheringComplete
	default:
		return core.GatheringNew
	}
}

func signalingState(s webrtc.SignalingState) core.SignalingState {
	switch s {
	case webrtc.SignalingStateHaveLocalOffer:
		return core.SignalingHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return core.SignalingHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return core.SignalingHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return core.SignalingHaveRemotePranswer
	case webrtc.SignalingStateClosed:
		return core.SignalingClosed
	default:
		return core.SignalingStable
	}
}

func channelState(s webrtc.DataChannelState) core.ChannelState {
	switch s {
	case webrtc.DataChannelStateOpen:
		return core.ChannelOpen
	case webrtc.DataChannelStateClosing:
		return core.ChannelClosing
	case webrtc.DataChannelStateClosed:
		return core.ChannelClosed
	default:
		return core.ChannelConnecting
	}
}
