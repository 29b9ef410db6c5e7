package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/internal/service"
	"github.com/tirumala-karthikeya/chat-pro/pkg/errors"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// ChatStreamer produces the events of one POST /chat request.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req models.ChatRequest, emit service.Emitter) error
}

type ChatHandler struct {
	relay ChatStreamer
	log   *logger.Logger
}

func NewChatHandler(relay ChatStreamer, log *logger.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, log: log}
}

// Chat relays the upstream completion as server-sent events.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewBadRequestError("INVALID_BODY", "query is required").Wrap(err))
		return
	}
	if req.User == "" {
		req.User = models.DefaultChatUser
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	emit := func(ev models.RelayEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		c.Writer.Flush()
		return ctx.Err()
	}

	if err := h.relay.StreamChat(ctx, req, emit); err != nil {
		logger.FromContext(c, h.log).Info("chat stream ended early", "error", err.Error())
	}
}
