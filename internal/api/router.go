// Package api is the loopback HTTP surface UI processes drive the sync
// core through.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/conversations"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/ageniuscoder/mmchat/client/internal/messages"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/offline"
	"github.com/ageniuscoder/mmchat/client/internal/presence"
	"github.com/ageniuscoder/mmchat/client/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Uploader stores media on the server ahead of a media message.
type Uploader interface {
	UploadMedia(ctx context.Context, name string, r io.Reader) (models.MediaRef, error)
}

type Options struct {
	Manager    *chat.Manager
	Uploader   Uploader
	Identity   auth.Identity
	LocalToken string
	Logger     *slog.Logger
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(opts.Manager.Metrics.Handler()))

	rg := r.Group("/api", auth.BearerMiddleware(opts.LocalToken, opts.Identity))
	RegisterConversations(rg, opts.Manager)
	RegisterMessages(rg, opts.Manager, opts.Uploader)
	RegisterPresence(rg, opts.Manager)
	RegisterQueue(rg, opts.Manager)
	RegisterProfile(rg, opts.Manager)
	if opts.Manager.Bus != nil {
		chat.RegisterWS(rg, opts.Manager.Bus, opts.Logger)
	}
	return r
}

// bindJSON decodes the body into req and answers 400 itself on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return false
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps a sync core error onto a status code.
func fail(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
	case errors.Is(err, presence.ErrNotSettable):
		httpx.Err(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, messages.ErrUnknownMessage),
		errors.Is(err, conversations.ErrUnknownConversation),
		errors.Is(err, offline.ErrUnknownAction):
		httpx.Err(c, http.StatusNotFound, err.Error())
	case errors.Is(err, messages.ErrConversationClosed):
		httpx.Err(c, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrRejected), errors.Is(err, chat.ErrSendFailed):
		httpx.Err(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, chat.ErrTransportUnavailable):
		httpx.Err(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.Err(c, http.StatusGatewayTimeout, err.Error())
	default:
		httpx.Err(c, http.StatusInternalServerError, err.Error())
	}
}

// sent answers an accepted intent: 202 when it waits in the offline queue.
func sent(c *gin.Context, res chat.Result) {
	if res.Queued {
		httpx.Accepted(c, res)
		return
	}
	httpx.OK(c, res)
}
