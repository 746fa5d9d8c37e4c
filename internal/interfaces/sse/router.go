package sse

import (
	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	opts hub.TransportOptions,
	m *metrics.Realtime,
	rg *gin.RouterGroup,
	protected ...gin.HandlerFunc,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, verifier, opts, m, logger)

	// SSE connection endpoint
	sseGroup := rg.Group("/sse")
	sseGroup.GET("", sseHandler.Connect)

	apiGroup := rg.Group("/api/v1/sse", protected...)
	apiGroup.GET("/connections", sseHandler.GetConnections)
}
