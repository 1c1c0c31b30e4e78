package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/config"
	"github.com/dkeye/rtcpeer/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Sessions is what the controller needs from the application layer.
type Sessions interface {
	Open(ctx context.Context, sid core.SessionID, out core.SignalConnection) (*app.Session, error)
	Release(sess *app.Session) bool
}

type SignalWSController struct {
	Sessions Sessions
	Limiter  *RateLimiter
	cfg      config.SignalConfig
}

func NewSignalWSController(sessions Sessions, cfg config.SignalConfig) *SignalWSController {
	return &SignalWSController{
		Sessions: sessions,
		Limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		cfg:      cfg,
	}
}

// WsSignalConn implements core.SignalConnection over a websocket.
type WsSignalConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(conn WSConn) *WsSignalConn {
	return &WsSignalConn{
		conn: conn,
		send: make(chan core.Frame, 32),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ctl.Serve(ctx, sid, ws)
}

// Serve runs the signaling protocol for sid over ws until either side closes.
func (ctl *SignalWSController) Serve(ctx context.Context, sid core.SessionID, ws WSConn) {
	conn := NewWsSignalConn(ws)

	sess, err := ctl.Sessions.Open(ctx, sid, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("open session")
		b, _ := json.Marshal(errorMsg{Type: "error", Error: "session_unavailable"})
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, b)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		ctl.readPump(ctx, sid, sess, conn)
		cancel()
	}()
	go func() {
		select {
		case <-sess.Done():
			// replaced or closed server-side
			conn.Close()
		case <-ctx.Done():
		}
	}()
}
