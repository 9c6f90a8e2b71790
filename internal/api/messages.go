package api

import (
	"net/http"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/gin-gonic/gin"
)

type messageService struct {
	m        *chat.Manager
	uploader Uploader
}

type sendReq struct {
	CorrelationID  string             `json:"correlation_id"`
	ConversationID string             `json:"conversation_id" binding:"required"`
	Content        string             `json:"content"`
	Kind           models.MessageKind `json:"kind" binding:"omitempty,oneof=text image file voice video"`
	Media          *models.MediaRef   `json:"media"`
	ReplyTo        string             `json:"reply_to"`
}

type editReq struct {
	Content string `json:"content" binding:"required"`
}

type reactReq struct {
	ReactionType string  `json:"reaction_type"`
	Emoji        *string `json:"emoji"` // null removes the reaction
}

type readReq struct {
	MessageID string `json:"message_id" binding:"required"`
}

func RegisterMessages(rg *gin.RouterGroup, m *chat.Manager, up Uploader) {
	s := messageService{m: m, uploader: up}
	rg.POST("/messages", s.send)
	rg.PUT("/messages/:id", s.edit)
	rg.DELETE("/messages/:id", s.remove)
	rg.POST("/messages/:id/reactions", s.react)
	rg.POST("/messages/read", s.markRead)
	rg.POST("/media", s.upload)
}

func (s messageService) send(c *gin.Context) {
	var req sendReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.m.Send(c.Request.Context(), chat.Intent{
		Type:           chat.IntentSend,
		CorrelationID:  req.CorrelationID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Kind:           req.Kind,
		Media:          req.Media,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		fail(c, err)
		return
	}
	sent(c, res)
}

func (s messageService) edit(c *gin.Context) {
	var req editReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.m.Send(c.Request.Context(), chat.Intent{Type: chat.IntentEdit, MessageID: c.Param("id"), Content: req.Content})
	if err != nil {
		fail(c, err)
		return
	}
	sent(c, res)
}

func (s messageService) remove(c *gin.Context) {
	res, err := s.m.Send(c.Request.Context(), chat.Intent{Type: chat.IntentDelete, MessageID: c.Param("id")})
	if err != nil {
		fail(c, err)
		return
	}
	sent(c, res)
}

func (s messageService) react(c *gin.Context) {
	var req reactReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Emoji != nil && req.ReactionType == "" {
		httpx.Err(c, http.StatusBadRequest, "reaction_type is required with an emoji")
		return
	}
	res, err := s.m.Send(c.Request.Context(), chat.Intent{
		Type:         chat.IntentReact,
		MessageID:    c.Param("id"),
		ReactionType: req.ReactionType,
		Emoji:        req.Emoji,
	})
	if err != nil {
		fail(c, err)
		return
	}
	sent(c, res)
}

func (s messageService) markRead(c *gin.Context) {
	var req readReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.m.Send(c.Request.Context(), chat.Intent{Type: chat.IntentMarkRead, MessageID: req.MessageID})
	if err != nil {
		fail(c, err)
		return
	}
	sent(c, res)
}

func (s messageService) upload(c *gin.Context) {
	if s.uploader == nil {
		httpx.Err(c, http.StatusNotImplemented, "media upload not configured")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()

	ref, err := s.uploader.UploadMedia(c.Request.Context(), fh.Filename, f)
	if err != nil {
		httpx.Err(c, http.StatusBadGateway, err.Error())
		return
	}
	httpx.OK(c, ref)
}
