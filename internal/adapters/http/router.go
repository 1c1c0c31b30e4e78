package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpeer/internal/adapters/signal"
	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/config"
)

const (
	clientTokenCookie = "ct"
	clientTokenTTL    = 7 * 24 * 3600
)

// genClientToken mints the id a browser keeps across reconnects; it keys the peer session.
func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware reads the "ct" cookie, issuing a new token when absent, and stores it
// as client_token for the signaling handler.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, clientTokenTTL, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter serves the signaling socket plus health and session introspection. Sessions
// opened through it live until ctx is done.
func SetupRouter(ctx context.Context, cfg *config.Config, manager *app.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RtcpeerSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{manager: manager}
	r.GET("/healthz", h.health)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("rtcpeer router ready")

	api := r.Group("/api")
	api.GET("/session", h.sessionInfo)

	ctrl := signal.NewSignalWSController(manager, cfg.Signal)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
