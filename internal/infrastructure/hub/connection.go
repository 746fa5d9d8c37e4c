package hub

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-portal-realtime/internal/infrastructure/logger"
)

const (
	TypeWebSocket = "websocket"
	TypeSSE       = "sse"

	eventPing = "ping"
)

// TransportOptions tunes a single connection's buffers and limits.
type TransportOptions struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	MaxMessageSize int64
	// UpdateRate is the sustained number of client update frames allowed per
	// second. Zero disables the limit.
	UpdateRate  float64
	UpdateBurst int
}

func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		SendBuffer:     256,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// withDefaults replaces non-positive buffer sizes and limits with the
// defaults. A zero write timeout would otherwise expire every write at once.
func (o TransportOptions) withDefaults() TransportOptions {
	def := DefaultTransportOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	return o
}

// WebSocketConnection implements the Connection interface for WebSocket connections
type WebSocketConnection struct {
	Liveness

	id     string
	userID string
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	send    chan []byte
	limiter *rate.Limiter

	writeTimeout time.Duration
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection wraps an upgraded socket. Frames passed to Send are
// buffered until Start launches the pumps.
func NewWebSocketConnection(
	id string,
	userID string,
	conn *websocket.Conn,
	log logger.Logger,
	opts TransportOptions,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())
	opts = opts.withDefaults()

	wsConn := &WebSocketConnection{
		id:           id,
		userID:       userID,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		logger:       log.WithFields(logger.ConnectionFields(id, userID)),
		send:         make(chan []byte, opts.SendBuffer),
		writeTimeout: opts.WriteTimeout,
	}
	if opts.UpdateRate > 0 {
		wsConn.limiter = rate.NewLimiter(rate.Limit(opts.UpdateRate), opts.UpdateBurst)
	}

	wsConn.MarkAlive()
	conn.SetReadLimit(opts.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		wsConn.MarkAlive()
		return nil
	})

	return wsConn
}

// Start launches the write pump and a read pump that feeds handler.
func (c *WebSocketConnection) Start(handler InboundHandler) {
	go c.writePump()
	go c.readPump(handler)
}

// ID returns unique connection identifier
func (c *WebSocketConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return TypeWebSocket
}

func (c *WebSocketConnection) UserID() string {
	return c.userID
}

// Send queues a frame for the write pump without blocking.
func (c *WebSocketConnection) Send(ctx context.Context, frame []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Ping writes a websocket ping control frame. The pong handler marks the
// connection alive when the peer answers.
func (c *WebSocketConnection) Ping() error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// AllowUpdate reports whether another client update frame fits the rate limit.
func (c *WebSocketConnection) AllowUpdate() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// Close gracefully closes the WebSocket connection
func (c *WebSocketConnection) Close() error {
	if !c.markClosed() {
		return nil
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	err := c.conn.Close()

	c.logger.Info("WebSocket connection closed")
	return err
}

// Terminate drops the socket without a closing handshake.
func (c *WebSocketConnection) Terminate() error {
	if !c.markClosed() {
		return nil
	}

	c.logger.Info("WebSocket connection terminated")
	return c.conn.Close()
}

func (c *WebSocketConnection) markClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	c.cancel()
	return true
}

// IsClosed returns true if connection is closed
func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context returns the connection's context (for cancellation)
func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// writePump is the only goroutine that writes data frames.
func (c *WebSocketConnection) writePump() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Errorf("Failed to write frame: %v", err)
				_ = c.Terminate()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump hands every inbound frame to handler in arrival order. Reading
// also drives the pong handler.
func (c *WebSocketConnection) readPump(handler InboundHandler) {
	defer func() {
		_ = c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.IsClosed() && websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			handler.HandleInbound(c.ctx, c, data)
		}
	}
}

// SSEConnection implements the Connection interface for Server-Sent Events.
// The goroutine serving the HTTP request runs Serve and is the only writer.
type SSEConnection struct {
	Liveness

	id     string
	userID string
	writer sseWriter

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	send chan sse.Event
	// buf is owned by Serve.
	buf bytes.Buffer
}

type sseWriter interface {
	http.ResponseWriter
	http.Flusher
}

var _ Connection = (*SSEConnection)(nil)

// NewSSEConnection creates a new SSE connection bound to the request context.
func NewSSEConnection(
	ctx context.Context,
	id string,
	userID string,
	w sseWriter,
	log logger.Logger,
	opts TransportOptions,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)
	opts = opts.withDefaults()

	conn := &SSEConnection{
		id:     id,
		userID: userID,
		writer: w,
		ctx:    rctx,
		cancel: cancel,
		logger: log.WithFields(logger.ConnectionFields(id, userID)),
		send:   make(chan sse.Event, opts.SendBuffer),
	}
	conn.MarkAlive()
	conn.setupSSEHeaders()

	// Long-lived streams must not inherit the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	return conn
}

// ID returns unique connection identifier
func (c *SSEConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *SSEConnection) Type() string {
	return TypeSSE
}

func (c *SSEConnection) UserID() string {
	return c.userID
}

// Send queues a frame as an unnamed SSE event.
func (c *SSEConnection) Send(ctx context.Context, frame []byte) error {
	return c.enqueue(ctx, sse.Event{Data: string(frame)})
}

// SendEvent queues a frame under an SSE event name.
func (c *SSEConnection) SendEvent(ctx context.Context, event string, frame []byte) error {
	return c.enqueue(ctx, sse.Event{Event: event, Data: string(frame)})
}

// Ping queues a ping event. The stream counts as alive once that event has
// been written and flushed without error; SSE has no peer acknowledgement.
func (c *SSEConnection) Ping() error {
	return c.enqueue(context.Background(), sse.Event{
		Event: eventPing,
		Data:  strconv.FormatInt(time.Now().UnixMilli(), 10),
	})
}

func (c *SSEConnection) enqueue(ctx context.Context, ev sse.Event) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Serve writes queued events until the connection closes.
func (c *SSEConnection) Serve() {
	defer func() {
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				c.logger.Errorf("Failed to write SSE event: %v", err)
				return
			}

			if ev.Event == eventPing {
				c.MarkAlive()
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// write encodes and flushes one event. sse.Encode drops write errors for
// string data, so the frame is encoded into buf and written directly.
func (c *SSEConnection) write(ev sse.Event) error {
	c.buf.Reset()
	if err := sse.Encode(&c.buf, ev); err != nil {
		return err
	}
	if _, err := c.writer.Write(c.buf.Bytes()); err != nil {
		return err
	}
	return http.NewResponseController(c.writer).Flush()
}

// Close gracefully closes the connection
func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	c.logger.Info("SSE connection closed")
	return nil
}

// Terminate is Close: an SSE stream has no closing handshake to skip.
func (c *SSEConnection) Terminate() error {
	return c.Close()
}

// IsClosed returns true if connection is closed
func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context returns the connection's context (for cancellation)
func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// setupSSEHeaders sets up the proper headers for SSE connection
func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // For nginx
}
