package app

// Server-to-client signaling messages.

type descriptionMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMsg struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// StateMsg reports the three session state cells.
type StateMsg struct {
	Type       string `json:"type"`
	Connection string `json:"connection"`
	Gathering  string `json:"gathering"`
	Signaling  string `json:"signaling"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
