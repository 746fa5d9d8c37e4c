package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

// Application close codes sent when the handshake token is rejected.
const (
	CloseTokenRequired = 4001
	CloseInvalidToken  = 4003

	reasonTokenRequired = "Unauthorized: Token required"
	reasonInvalidToken  = "Invalid token"

	closeWriteTimeout = time.Second
)

// Options configures the handshake and the connections it admits.
type Options struct {
	Transport      hub.TransportOptions
	AllowedOrigins []string
	Metrics        *metrics.Realtime
}

// WebSocketHandler handles WebSocket connections and messages
type WebSocketHandler struct {
	hub      *hub.Hub
	verifier auth.Verifier
	inbound  hub.InboundHandler
	logger   logger.Logger
	upgrader websocket.Upgrader
	opts     Options
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	inbound hub.InboundHandler,
	opts Options,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hubInstance,
		verifier: verifier,
		inbound:  inbound,
		logger:   logger.WithField("handler", "websocket"),
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// Connect upgrades the request and authenticates it with the token query
// parameter. Rejected tokens are reported through the close frame, so the
// upgrade always happens first.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	claims, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		if errors.Is(err, auth.ErrTokenMissing) {
			h.reject(conn, CloseTokenRequired, reasonTokenRequired, "missing_token")
		} else {
			h.logger.Warnf("Rejecting WebSocket handshake: %v", err)
			h.reject(conn, CloseInvalidToken, reasonInvalidToken, "invalid_token")
		}
		return
	}

	wsConn := hub.NewWebSocketConnection(uuid.NewString(), claims.UserID, conn, h.logger, h.opts.Transport)

	// Queued before registration so it is the first frame on the wire.
	ack, err := json.Marshal(hub.NewConnectionAck(claims.UserID))
	if err == nil {
		err = wsConn.Send(context.Background(), ack)
	}
	if err != nil {
		h.logger.Errorf("Failed to queue connection ack: %v", err)
		_ = wsConn.Close()
		return
	}

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		_ = wsConn.Close()
		return
	}
	wsConn.Start(h.inbound)

	h.logger.Infof("WebSocket connection %s connected for user %s", wsConn.ID(), claims.UserID)

	// Keep the connection alive until client disconnects
	<-wsConn.Context().Done()
	h.logger.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

func (h *WebSocketHandler) reject(conn *websocket.Conn, code int, reason, metricReason string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.HandshakeRejections.WithLabelValues(metricReason).Inc()
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
	_ = conn.Close()
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.TypeWebSocket)
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

// originChecker allows requests without an Origin header and those whose
// origin is listed. A "*" entry allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
