package api

import (
	"net/http"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/gin-gonic/gin"
)

type profileService struct {
	m *chat.Manager
}

func RegisterProfile(rg *gin.RouterGroup, m *chat.Manager) {
	s := profileService{m: m}
	rg.GET("/me", s.getMe)
}

func (s profileService) getMe(c *gin.Context) {
	id := auth.MustIdentity(c)
	if id.UserID == "" {
		httpx.Err(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	status := ""
	if s.m.Presence != nil {
		status = string(s.m.Presence.Status())
	}
	httpx.OK(c, gin.H{
		"user_id":       id.UserID,
		"token_expired": id.Expired(time.Now()),
		"expires_at":    id.ExpiresAt,
		"status":        status,
		"connection":    s.m.State(),
		"queued":        s.m.Queue.Size(),
	})
}
