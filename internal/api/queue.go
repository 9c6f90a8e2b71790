package api

import (
	"net/http"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/gin-gonic/gin"
)

type queueService struct {
	m *chat.Manager
}

func RegisterQueue(rg *gin.RouterGroup, m *chat.Manager) {
	s := queueService{m: m}
	rg.GET("/queue", s.list)
	rg.GET("/queue/failed", s.failed)
	rg.POST("/queue/failed/:id/retry", s.retry)
	rg.DELETE("/queue/failed/:id", s.abandon)
}

func (s queueService) list(c *gin.Context) {
	httpx.OK(c, gin.H{"pending": s.m.Queue.Items()})
}

func (s queueService) failed(c *gin.Context) {
	httpx.OK(c, gin.H{"failed": s.m.Failed()})
}

func (s queueService) retry(c *gin.Context) {
	if err := s.m.Retry(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s queueService) abandon(c *gin.Context) {
	if err := s.m.Abandon(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	httpx.NoContent(c)
}
