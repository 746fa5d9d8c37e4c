package hub

import (
	"context"
	"errors"
)

var (
	ErrHubNotRunning       = errors.New("hub is not running")
	ErrHubShuttingDown     = errors.New("hub is shutting down")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSendBufferFull      = errors.New("send buffer full")
)

// Connection is one authenticated real-time session, whatever the transport.
type Connection interface {
	ID() string
	Type() string
	UserID() string

	// Send queues an already serialized frame for delivery. It never waits
	// for the peer.
	Send(ctx context.Context, frame []byte) error

	// Ping sends a liveness ping. The transport calls MarkAlive when the
	// peer acknowledges it.
	Ping() error
	MarkAlive()
	// ResetAlive clears the liveness flag and reports whether it was set.
	ResetAlive() bool

	// Close shuts the transport down gracefully; Terminate drops it without
	// a closing handshake.
	Close() error
	Terminate() error
	IsClosed() bool
	Context() context.Context
}

// Broadcaster accepts update events for delivery to every connection.
type Broadcaster interface {
	Broadcast(ctx context.Context, event UpdateEvent) error
}

// InboundHandler processes one client frame. Calls for a single connection
// are made sequentially in arrival order.
type InboundHandler interface {
	HandleInbound(ctx context.Context, conn Connection, frame []byte)
}
