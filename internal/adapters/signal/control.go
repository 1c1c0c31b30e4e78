package signal

import "github.com/dkeye/rtcpeer/internal/app"

// handlePing answers with pong followed by the current session state.
func (ctl *SignalWSController) handlePing(sess *app.Session, conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
	ctl.sendJSON(conn, sess.State())
}
