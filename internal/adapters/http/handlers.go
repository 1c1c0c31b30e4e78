package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/core"
)

type handlers struct {
	manager *app.Manager
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type SessionResponse struct {
	State            app.StateMsg `json:"state"`
	Tracks           int          `json:"tracks"`
	Playbacks        int          `json:"playbacks"`
	Underflows       uint64       `json:"underflows"`
	DroppedFrames    uint64       `json:"droppedFrames"`
	PlaybackOverruns uint64       `json:"playbackOverruns"`
	Visits           int          `json:"visits"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: h.manager.Len(),
	})
}

// sessionInfo reports the caller's live session, keyed by its client token.
func (h *handlers) sessionInfo(c *gin.Context) {
	store := sessions.Default(c)
	visits, _ := store.Get("visits").(int)
	visits++
	store.Set("visits", visits)
	_ = store.Save()

	sid := core.SessionID(c.GetString("client_token"))
	sess, ok := h.manager.Registry.GetSession(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
		return
	}
	st := sess.Stats()
	c.JSON(http.StatusOK, SessionResponse{
		State:            sess.State(),
		Tracks:           st.Tracks,
		Playbacks:        st.Playbacks,
		Underflows:       st.Underflows,
		DroppedFrames:    st.DroppedFrames,
		PlaybackOverruns: st.PlaybackOverruns,
		Visits:           visits,
	})
}
