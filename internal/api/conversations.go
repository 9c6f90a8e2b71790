package api

import (
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/reactions"
	"github.com/gin-gonic/gin"
)

type conversationService struct {
	m *chat.Manager
}

// messageView is a message as the UI renders it, reactions grouped by emoji.
type messageView struct {
	models.Message
	ReactionGroups []reactions.Group `json:"reaction_groups,omitempty"`
}

func views(msgs []models.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i := range msgs {
		out[i] = messageView{Message: msgs[i], ReactionGroups: reactions.Aggregate(msgs[i].Reactions)}
	}
	return out
}

type typingReq struct {
	IsTyping bool `json:"is_typing"`
}

func RegisterConversations(rg *gin.RouterGroup, m *chat.Manager) {
	s := conversationService{m: m}
	rg.GET("/conversations", s.list)
	rg.POST("/conversations/:id/open", s.open)
	rg.POST("/conversations/:id/close", s.close)
	rg.GET("/conversations/:id/messages", s.messages)
	rg.POST("/conversations/:id/older", s.older)
	rg.POST("/conversations/:id/typing", s.typing)
}

func (s conversationService) list(c *gin.Context) {
	httpx.OK(c, gin.H{"conversations": s.m.Conversations.List()})
}

func (s conversationService) open(c *gin.Context) {
	id := c.Param("id")
	if err := s.m.Open(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	conv, _ := s.m.Conversations.Get(id)
	httpx.OK(c, gin.H{"conversation": conv, "messages": views(s.m.Messages.Messages(id))})
}

func (s conversationService) close(c *gin.Context) {
	s.m.Close(c.Request.Context(), c.Param("id"))
	httpx.NoContent(c)
}

func (s conversationService) messages(c *gin.Context) {
	id := c.Param("id")
	var typing []string
	if s.m.Typing != nil {
		typing = s.m.Typing.Typing(id)
	}
	httpx.OK(c, gin.H{
		"messages": views(s.m.Messages.Messages(id)),
		"typing":   typing,
		"open":     s.m.Messages.IsOpen(id),
	})
}

func (s conversationService) older(c *gin.Context) {
	n, err := s.m.Messages.LoadOlder(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"loaded": n})
}

func (s conversationService) typing(c *gin.Context) {
	var req typingReq
	if !bindJSON(c, &req) {
		return
	}
	if _, err := s.m.Send(c.Request.Context(), chat.Intent{Type: chat.IntentTyping, ConversationID: c.Param("id"), IsTyping: req.IsTyping}); err != nil {
		fail(c, err)
		return
	}
	httpx.NoContent(c)
}
