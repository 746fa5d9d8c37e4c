package sse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

type ServerSentEventHandler struct {
	hub      *hub.Hub
	verifier auth.Verifier
	opts     hub.TransportOptions
	metrics  *metrics.Realtime
	logger   logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	opts hub.TransportOptions,
	m *metrics.Realtime,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:      hubInstance,
		verifier: verifier,
		opts:     opts,
		metrics:  m,
		logger:   logger.WithField("handler", "sse"),
	}
}

// Connect streams update events to clients that cannot use WebSockets. The
// token rules match the WebSocket handshake, but rejections are plain HTTP
// errors since the stream has no close frame.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	claims, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		if errors.Is(err, auth.ErrTokenMissing) {
			h.reject(c, http.StatusUnauthorized, "Unauthorized: Token required", "missing_token")
		} else {
			h.logger.Warnf("Rejecting SSE connection: %v", err)
			h.reject(c, http.StatusForbidden, "Invalid token", "invalid_token")
		}
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), uuid.NewString(), claims.UserID, c.Writer, h.logger, h.opts)

	ack, err := json.Marshal(hub.NewConnectionAck(claims.UserID))
	if err == nil {
		err = conn.SendEvent(context.Background(), hub.TypeConnection, ack)
	}
	if err != nil {
		h.logger.Errorf("Failed to queue connection ack: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open stream"})
		return
	}

	if err := h.hub.RegisterConnection(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	h.logger.Infof("SSE connection %s connected for user %s", conn.ID(), claims.UserID)
	conn.Serve()
	h.logger.Infof("SSE connection %s disconnected", conn.ID())
}

func (h *ServerSentEventHandler) reject(c *gin.Context, status int, message, metricReason string) {
	if h.metrics != nil {
		h.metrics.HandshakeRejections.WithLabelValues(metricReason).Inc()
	}
	c.JSON(status, gin.H{"error": message})
}

// GetConnections returns information about connected SSE clients
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.TypeSSE)
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":      conn.ID(),
			"type":    conn.Type(),
			"user_id": conn.UserID(),
			"closed":  conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
