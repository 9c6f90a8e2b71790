package api

import (
	"net/http"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/gin-gonic/gin"
)

type presenceService struct {
	m *chat.Manager
}

type statusReq struct {
	Status models.Status `json:"status" binding:"required,oneof=online busy offline"`
}

func RegisterPresence(rg *gin.RouterGroup, m *chat.Manager) {
	s := presenceService{m: m}
	rg.GET("/users/:id/presence", s.get)
	rg.PUT("/presence", s.set)
	rg.POST("/presence/activity", s.activity)
}

func (s presenceService) get(c *gin.Context) {
	p, ok := s.m.Presence.Get(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusNotFound, "no presence known for user")
		return
	}
	httpx.OK(c, p)
}

func (s presenceService) set(c *gin.Context) {
	var req statusReq
	if !bindJSON(c, &req) {
		return
	}
	if _, err := s.m.Send(c.Request.Context(), chat.Intent{Type: chat.IntentSetPresence, Status: req.Status}); err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"status": s.m.Presence.Status()})
}

func (s presenceService) activity(c *gin.Context) {
	s.m.Presence.Activity()
	httpx.OK(c, gin.H{"status": s.m.Presence.Status()})
}
