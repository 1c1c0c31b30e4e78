package rtc

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/rtcpeer/internal/domain"
)

// DefaultWebRTCConfig is used when the session hands over an empty configuration.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

var errUnknownPolicy = errors.New("rtc: unknown policy")

// configuration is the driver-side view of domain.Configuration. Policies decode through
// pion's own string forms.
type configuration struct {
	ICEServers         []domain.ICEServer    `json:"iceServers"`
	ICETransportPolicy string                `json:"iceTransportPolicy"`
	BundlePolicy       *webrtc.BundlePolicy  `json:"bundlePolicy"`
	RTCPMuxPolicy      *webrtc.RTCPMuxPolicy `json:"rtcpMuxPolicy"`
}

// parseConfiguration decodes a browser-shaped RTCConfiguration.
func parseConfiguration(raw []byte) (webrtc.Configuration, error) {
	var in configuration
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return webrtc.Configuration{}, fmt.Errorf("rtc: decode configuration: %w", err)
		}
	}
	if len(in.ICEServers) == 0 && in.ICETransportPolicy == "" && in.BundlePolicy == nil && in.RTCPMuxPolicy == nil {
		return DefaultWebRTCConfig(), nil
	}

	var cfg webrtc.Configuration
	for _, s := range in.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, srv)
	}
	switch in.ICETransportPolicy {
	case "":
	case "all", "relay":
		cfg.ICETransportPolicy = webrtc.NewICETransportPolicy(in.ICETransportPolicy)
	default:
		return webrtc.Configuration{}, fmt.Errorf("iceTransportPolicy %q: %w", in.ICETransportPolicy, errUnknownPolicy)
	}
	if in.BundlePolicy != nil {
		if *in.BundlePolicy == webrtc.BundlePolicyUnknown {
			return webrtc.Configuration{}, fmt.Errorf("bundlePolicy: %w", errUnknownPolicy)
		}
		cfg.BundlePolicy = *in.BundlePolicy
	}
	if in.RTCPMuxPolicy != nil {
		if *in.RTCPMuxPolicy == webrtc.RTCPMuxPolicyUnknown {
			return webrtc.Configuration{}, fmt.Errorf("rtcpMuxPolicy: %w", errUnknownPolicy)
		}
		cfg.RTCPMuxPolicy = *in.RTCPMuxPolicy
	}
	return cfg, nil
}

// parseChannelInit decodes an RTCDataChannelInit.
func parseChannelInit(raw []byte) (*webrtc.DataChannelInit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in domain.ChannelConfig
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("rtc: decode channel config: %w", err)
	}
	opts := &webrtc.DataChannelInit{
		Ordered:           in.Ordered,
		MaxPacketLifeTime: in.MaxPacketLifeTime,
		MaxRetransmits:    in.MaxRetransmits,
		ID:                in.ID,
	}
	if in.Protocol != "" {
		opts.Protocol = &in.Protocol
	}
	if in.Negotiated {
		opts.Negotiated = &in.Negotiated
	}
	return opts, nil
}
