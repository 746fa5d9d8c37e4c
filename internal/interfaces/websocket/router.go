package websocket

import (
	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes. The handshake endpoint
// authenticates on its own; protected guards the inspection API.
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	inbound hub.InboundHandler,
	opts Options,
	rg *gin.RouterGroup,
	protected ...gin.HandlerFunc,
) {
	wsHandler := NewWebSocketHandler(hubInstance, verifier, inbound, opts, logger)

	// WebSocket connection endpoint
	wsGroup := rg.Group("/ws")
	wsGroup.GET("", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws", protected...)
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
