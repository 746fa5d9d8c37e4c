package hub

import (
	"context"
	"io"
	"sync"

	"go-portal-realtime/internal/infrastructure/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}

type mockConnection struct {
	Liveness

	id     string
	userID string
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	terminated bool
	frames     [][]byte
	pings      int
	sendErr    error
	pingErr    error
	// autoPong answers every ping immediately, like a healthy peer.
	autoPong bool
}

func newMockConnection(id string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &mockConnection{id: id, userID: "user-" + id, ctx: ctx, cancel: cancel}
	c.MarkAlive()
	return c
}

func (m *mockConnection) ID() string     { return m.id }
func (m *mockConnection) Type() string   { return "mock" }
func (m *mockConnection) UserID() string { return m.userID }

func (m *mockConnection) Send(ctx context.Context, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrConnectionClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

func (m *mockConnection) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pings++
	if m.pingErr != nil {
		return m.pingErr
	}
	if m.autoPong {
		m.MarkAlive()
	}
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.cancel()
	return nil
}

func (m *mockConnection) Terminate() error {
	m.mu.Lock()
	m.terminated = true
	m.mu.Unlock()
	return m.Close()
}

func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

func (m *mockConnection) PingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

func (m *mockConnection) WasTerminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

type limitedConnection struct {
	*mockConnection
	allow bool
}

func (l *limitedConnection) AllowUpdate() bool { return l.allow }

type stubBroadcaster struct {
	mu     sync.Mutex
	events []UpdateEvent
	err    error
}

func (s *stubBroadcaster) Broadcast(ctx context.Context, event UpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubBroadcaster) Events() []UpdateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateEvent(nil), s.events...)
}
