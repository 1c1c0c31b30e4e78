package signal

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-tick:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, sess *app.Session, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		ctl.Sessions.Release(sess)
		ctl.Limiter.Forget(sid)
	}()

	if ctl.cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	}
	if ctl.cfg.PingPeriod > 0 {
		wait := ctl.cfg.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			if !ctl.Limiter.Allow(sid) {
				ctl.sendJSON(c, errorMsg{Type: "error", Error: "rate_limited"})
				continue
			}
			if stop := ctl.handleSignal(sid, sess, c, data); stop {
				return
			}
		}
	}
}

// handleSignal dispatches one client message. It reports true when the client asked to close.
func (ctl *SignalWSController) handleSignal(sid core.SessionID, sess *app.Session, c *WsSignalConn, data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "bad_payload"})
		return false
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(sess, c)
	case "offer":
		ctl.handleOffer(sid, sess, c, data)
	case "answer":
		ctl.handleAnswer(sid, sess, c, data)
	case "candidate":
		ctl.handleCandidate(sid, sess, c, data)
	case "call":
		ctl.handleCall(sid, sess, c)
	case "close":
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("client closed session")
		return true
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendJSON(c, errorMsg{Type: "error", Error: "unknown_type"})
	}
	return false
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
