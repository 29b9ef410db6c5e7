package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/internal/service"
	"github.com/tirumala-karthikeya/chat-pro/pkg/errors"
)

// ChatbotGateway is the storage surface the chatbot routes need.
type ChatbotGateway interface {
	List(ctx context.Context) []models.Chatbot
	Lookup(ctx context.Context, uniqueID string) (*models.Chatbot, service.Outcome)
	Insert(ctx context.Context, bot models.Chatbot) service.Outcome
	Modify(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, service.Outcome)
	Remove(ctx context.Context, uniqueID string) service.Outcome
}

func outcomeError(out service.Outcome) *errors.AppError {
	switch out {
	case service.OutcomeNotFound:
		return errors.NewNotFoundError("CHATBOT_NOT_FOUND", "Chatbot not found")
	case service.OutcomeConflict:
		return errors.NewConflictError("CHATBOT_EXISTS", "Chatbot with this uniqueId already exists")
	case service.OutcomeInvalid:
		return errors.NewBadRequestError("INVALID_BODY", "uniqueId and name are required")
	default:
		return errors.NewServiceUnavailableError("STORAGE_UNAVAILABLE", "Chatbot storage is unavailable")
	}
}

type ChatbotHandler struct {
	gateway ChatbotGateway
}

func NewChatbotHandler(gateway ChatbotGateway) *ChatbotHandler {
	return &ChatbotHandler{gateway: gateway}
}

// RegisterRoutes mounts the chatbot routes. Mutating routes go through
// guard when it is non-nil.
func (h *ChatbotHandler) RegisterRoutes(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	bots := rg.Group("/chatbots")
	bots.GET("", h.List)
	bots.GET("/:uniqueId", h.Get)

	write := bots.Group("")
	if guard != nil {
		write.Use(guard)
	}
	write.POST("", h.Create)
	write.PUT("/:uniqueId", h.Update)
	write.DELETE("/:uniqueId", h.Delete)
}

func (h *ChatbotHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.List(c.Request.Context()))
}

func (h *ChatbotHandler) Get(c *gin.Context) {
	bot, out := h.gateway.Lookup(c.Request.Context(), c.Param("uniqueId"))
	if out != service.OutcomeOK {
		_ = c.Error(outcomeError(out))
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *ChatbotHandler) Create(c *gin.Context) {
	var bot models.Chatbot
	if err := c.ShouldBindJSON(&bot); err != nil {
		_ = c.Error(errors.NewBadRequestError("INVALID_BODY", "uniqueId and name are required").Wrap(err))
		return
	}
	if out := h.gateway.Insert(c.Request.Context(), bot); out != service.OutcomeOK {
		_ = c.Error(outcomeError(out))
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *ChatbotHandler) Update(c *gin.Context) {
	var patch models.ChatbotPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		_ = c.Error(errors.NewBadRequestError("INVALID_BODY", "Invalid chatbot update").Wrap(err))
		return
	}
	bot, out := h.gateway.Modify(c.Request.Context(), c.Param("uniqueId"), patch)
	if out != service.OutcomeOK {
		_ = c.Error(outcomeError(out))
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *ChatbotHandler) Delete(c *gin.Context) {
	if out := h.gateway.Remove(c.Request.Context(), c.Param("uniqueId")); out != service.OutcomeOK {
		_ = c.Error(outcomeError(out))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chatbot deleted successfully"})
}
