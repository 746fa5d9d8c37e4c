package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

const (
	defaultPingInterval    = 30 * time.Second
	defaultBroadcastBuffer = 1000
	enqueueTimeout         = 5 * time.Second
	deliveryTimeout        = 10 * time.Second
)

// Hub is the registry of live connections. It owns the liveness monitor and
// a single dispatch loop that fans update events out to a snapshot of the
// registry, so events reach every recipient in submission order.
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.Realtime

	clock        clockwork.Clock
	pingInterval time.Duration
	monitor      *Monitor

	broadcast chan UpdateEvent

	ctx         context.Context
	cancel      context.CancelFunc
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
	runDone     chan struct{}
}

var _ Broadcaster = (*Hub)(nil)

type Option func(*Hub)

func WithMetrics(m *metrics.Realtime) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithPingInterval sets how often the liveness monitor pings connections.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func WithBroadcastBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.broadcast = make(chan UpdateEvent, n)
		}
	}
}

// New creates a new Hub instance
func New(log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections:  make(map[string]Connection),
		logger:       log.WithField("component", "hub"),
		clock:        clockwork.NewRealClock(),
		pingInterval: defaultPingInterval,
		broadcast:    make(chan UpdateEvent, defaultBroadcastBuffer),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.monitor = NewMonitor(h, h.pingInterval, h.clock, log, h.metrics)
	return h
}

// Start launches the dispatch loop and the liveness monitor.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	monitorCtx, stopMonitor := context.WithCancel(h.ctx)
	h.stopMonitor = stopMonitor
	h.monitorDone = make(chan struct{})
	h.runDone = make(chan struct{})
	h.running = true

	go func(done chan struct{}) {
		defer close(done)
		h.monitor.Run(monitorCtx)
	}(h.monitorDone)

	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		h.run(ctx)
	}(h.ctx, h.runDone)

	h.logger.Infof("Hub started, liveness interval %s", h.pingInterval)
	return nil
}

// Stop cancels the liveness monitor first, then the dispatch loop, and
// finally closes every registered connection.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.stopMonitor()
	if err := waitDone(ctx, h.monitorDone); err != nil {
		h.logger.Warnf("Liveness monitor did not stop in time: %v", err)
	}

	h.cancel()
	if err := waitDone(ctx, h.runDone); err != nil {
		h.logger.Warnf("Dispatch loop did not stop in time: %v", err)
	}

	h.connectionsMu.Lock()
	connections := h.connections
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	for _, conn := range connections {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		h.trackActive(conn, -1)
	}

	h.running = false
	h.logger.Infof("Hub stopped, closed %d connections", len(connections))
	return nil
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// RegisterConnection admits conn to the registry. The entry is removed again
// as soon as the connection's context ends.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	h.connectionsMu.Lock()
	if _, exists := h.connections[conn.ID()]; exists {
		h.connectionsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, conn.ID())
	}
	h.connections[conn.ID()] = conn
	total := len(h.connections)
	h.connectionsMu.Unlock()

	h.trackActive(conn, 1)
	h.logger.Infof("Connection %s registered for user %s (type: %s, total: %d)",
		conn.ID(), conn.UserID(), conn.Type(), total)

	go func() {
		<-conn.Context().Done()
		h.removeConnection(conn)
		_ = conn.Close()
	}()

	return nil
}

// UnregisterConnection removes a connection from the hub and closes it.
func (h *Hub) UnregisterConnection(connID string) {
	h.connectionsMu.RLock()
	conn, exists := h.connections[connID]
	h.connectionsMu.RUnlock()

	if exists && h.removeConnection(conn) {
		_ = conn.Close()
	}
}

// removeConnection deletes conn only if the registry still holds this exact
// handle. Closing the transport is left to the caller.
func (h *Hub) removeConnection(conn Connection) bool {
	h.connectionsMu.Lock()
	current, exists := h.connections[conn.ID()]
	removed := exists && current == conn
	if removed {
		delete(h.connections, conn.ID())
	}
	h.connectionsMu.Unlock()

	if !removed {
		return false
	}

	h.trackActive(conn, -1)
	h.logger.Infof("Connection %s unregistered", conn.ID())
	return true
}

// GetConnections returns a snapshot of all registered connections.
func (h *Hub) GetConnections() []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType string) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	var connections []Connection
	for _, conn := range h.connections {
		if conn.Type() == connType {
			connections = append(connections, conn)
		}
	}
	return connections
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Broadcast queues event for delivery to every registered connection.
func (h *Hub) Broadcast(ctx context.Context, event UpdateEvent) error {
	h.runningMu.RLock()
	running, hubCtx := h.running, h.ctx
	h.runningMu.RUnlock()

	if !running {
		return ErrHubNotRunning
	}

	timer := h.clock.NewTimer(enqueueTimeout)
	defer timer.Stop()

	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-hubCtx.Done():
		return ErrHubShuttingDown
	case <-timer.Chan():
		return fmt.Errorf("timeout broadcasting %s/%s", event.Resource, event.Action)
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case event := <-h.broadcast:
			h.dispatch(ctx, event)

		case <-ctx.Done():
			h.logger.Info("Hub dispatch loop stopped")
			return
		}
	}
}

// dispatch serializes event once and hands the identical bytes to every
// open connection in the current snapshot. A failing recipient is closed;
// its lifecycle watcher takes it out of the registry.
func (h *Hub) dispatch(ctx context.Context, event UpdateEvent) int {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorf("Failed to serialize %s/%s update: %v", event.Resource, event.Action, err)
		return 0
	}

	connections := h.GetConnections()
	delivered := 0

	for _, conn := range connections {
		if conn.IsClosed() {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := conn.Send(sendCtx, frame)
		cancel()

		if err != nil {
			h.logger.Warnf("Failed to deliver update to connection %s: %v", conn.ID(), err)
			if h.metrics != nil {
				h.metrics.DeliveryFailures.Inc()
			}
			_ = conn.Close()
			continue
		}
		delivered++
	}

	if h.metrics != nil {
		h.metrics.Broadcasts.Inc()
	}
	h.logger.Debugf("Broadcasted %s/%s to %d of %d connections",
		event.Resource, event.Action, delivered, len(connections))
	return delivered
}

func (h *Hub) trackActive(conn Connection, delta float64) {
	if h.metrics != nil {
		h.metrics.ActiveConnections.WithLabelValues(conn.Type()).Add(delta)
	}
}
