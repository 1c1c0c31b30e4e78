package signal

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/core"
)

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type descriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (ctl *SignalWSController) reject(c *WsSignalConn, err error) {
	ctl.sendJSON(c, errorMsg{Type: "error", Error: err.Error()})
}

func (ctl *SignalWSController) handleOffer(sid core.SessionID, sess *app.Session, c *WsSignalConn, data []byte) {
	var p descriptionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}
	if err := sess.Offer(p.SDP); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("offer rejected")
		ctl.reject(c, err)
	}
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, sess *app.Session, c *WsSignalConn, data []byte) {
	var p descriptionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.SDP == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}
	if err := sess.Answer(p.SDP); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("answer rejected")
		ctl.reject(c, err)
	}
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, sess *app.Session, c *WsSignalConn, data []byte) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex int    `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}
	if err := sess.Candidate(p.SDPMid, p.SDPMLineIndex, p.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("candidate rejected")
		ctl.reject(c, err)
	}
}

func (ctl *SignalWSController) handleCall(sid core.SessionID, sess *app.Session, c *WsSignalConn) {
	if err := sess.Call(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("call rejected")
		ctl.reject(c, err)
	}
}
