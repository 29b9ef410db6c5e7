package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/internal/service"
)

// StorageHealth reports the state of the storage gateway.
type StorageHealth interface {
	Health(ctx context.Context) service.HealthInfo
}

// ClientCounter reports the number of live websocket clients.
type ClientCounter interface {
	Count() int
}

type HealthResponse struct {
	service.HealthInfo
	WebSocketClients int `json:"websocket_clients"`
}

type HealthHandler struct {
	storage StorageHealth
	clients ClientCounter
}

func NewHealthHandler(storage StorageHealth, clients ClientCounter) *HealthHandler {
	return &HealthHandler{storage: storage, clients: clients}
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{HealthInfo: h.storage.Health(c.Request.Context())}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.Count()
	}
	c.JSON(http.StatusOK, resp)
}

func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Chatbot API"})
}
