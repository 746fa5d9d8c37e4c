package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/infrastructure/hub"
)

type HealthHandler struct {
	hub *hub.Hub
	now func() time.Time
}

func NewHealthHandler(hubInstance *hub.Hub) *HealthHandler {
	return &HealthHandler{hub: hubInstance, now: time.Now}
}

// Health reports process liveness.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// HubStatus reports whether the broadcast hub accepts connections.
func (h *HealthHandler) HubStatus(c *gin.Context) {
	running := h.hub.IsRunning()
	status, code := "healthy", http.StatusOK
	if !running {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":      status,
		"hub_running": running,
		"connections": h.hub.ConnectionCount(),
	})
}
