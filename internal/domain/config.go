// Package domain contains entity without logic, just meta-data
package domain

// ICEServer describes one STUN or TURN server, in the shape browsers accept.
type ICEServer struct {
	URLs       []string `json:"urls" mapstructure:"urls"`
	Username   string   `json:"username,omitempty" mapstructure:"username"`
	Credential string   `json:"credential,omitempty" mapstructure:"credential"`
}

// Configuration is handed to the native driver as-is.
// The session layer serializes it but never reads it.
type Configuration struct {
	ICEServers         []ICEServer `json:"iceServers,omitempty"`
	ICETransportPolicy string      `json:"iceTransportPolicy,omitempty"`
	BundlePolicy       string      `json:"bundlePolicy,omitempty"`
	RTCPMuxPolicy      string      `json:"rtcpMuxPolicy,omitempty"`
}

// ChannelConfig mirrors RTCDataChannelInit.
type ChannelConfig struct {
	Ordered           *bool   `json:"ordered,omitempty"`
	MaxPacketLifeTime *uint16 `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    *uint16 `json:"maxRetransmits,omitempty"`
	Protocol          string  `json:"protocol,omitempty"`
	Negotiated        bool    `json:"negotiated,omitempty"`
	ID                *uint16 `json:"id,omitempty"`
}
