package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/config"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
	"go-portal-realtime/internal/interfaces/rest/v1"
	"go-portal-realtime/internal/interfaces/rest/v1/handler"
	"go-portal-realtime/internal/interfaces/rest/v1/middleware"
	"go-portal-realtime/internal/interfaces/sse"
	"go-portal-realtime/internal/interfaces/websocket"
	"go-portal-realtime/internal/port/inbound"
)

type routerDeps struct {
	cfg         *config.Config
	log         logger.Logger
	hub         *hub.Hub
	inbound     hub.InboundHandler
	verifier    auth.Verifier
	content     inbound.ContentUseCase
	profiles    inbound.ProfileUseCase
	registry    *prometheus.Registry
	realtime    *metrics.Realtime
	httpMetrics *metrics.HTTP
}

func InitRouter(d routerDeps) http.Handler {
	router := gin.New()
	router.Use(middleware.RequestLogger(d.log))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.cfg.Realtime.Origins()))
	if d.httpMetrics != nil {
		router.Use(d.httpMetrics.Middleware())
	}

	rootGroup := router.Group("")

	health := handler.NewHealthHandler(d.hub)
	rootGroup.GET("/api/health", health.Health)
	rootGroup.GET("/hub/status", health.HubStatus)

	if d.cfg.Metrics.Enabled {
		rootGroup.GET(d.cfg.Metrics.Path, gin.WrapH(metrics.Handler(d.registry)))
	}

	authenticate := middleware.Authenticate(d.verifier)

	apiGroup := rootGroup.Group("/api", authenticate)
	v1.InitContentRouter(d.log, d.content, apiGroup)
	v1.InitUserRouter(d.log, d.profiles, apiGroup)

	transport := hub.TransportOptions{
		SendBuffer:     d.cfg.Realtime.SendBuffer,
		WriteTimeout:   d.cfg.Realtime.WriteTimeout,
		MaxMessageSize: d.cfg.Realtime.MaxMessageSize,
		UpdateRate:     d.cfg.Realtime.UpdateRate,
		UpdateBurst:    d.cfg.Realtime.UpdateBurst,
	}

	sse.InitSSERouter(d.log, d.hub, d.verifier, transport, d.realtime, rootGroup, authenticate)
	websocket.InitWebSocketRouter(d.log, d.hub, d.verifier, d.inbound, websocket.Options{
		Transport:      transport,
		AllowedOrigins: d.cfg.Realtime.Origins(),
		Metrics:        d.realtime,
	}, rootGroup, authenticate)

	return router
}
