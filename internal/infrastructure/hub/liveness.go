package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

// Liveness is the per-connection flag the Monitor clears before every ping
// and the transport sets again when the peer answers. Embed it in a
// Connection implementation; the zero value reads as not alive, so call
// MarkAlive on admission.
type Liveness struct {
	alive atomic.Bool
}

func (l *Liveness) MarkAlive() { l.alive.Store(true) }

func (l *Liveness) ResetAlive() bool { return l.alive.Swap(false) }

func (l *Liveness) IsAlive() bool { return l.alive.Load() }

type connectionRegistry interface {
	GetConnections() []Connection
	removeConnection(conn Connection) bool
}

// Monitor reclaims half-open connections. A connection that has not answered
// the previous cycle's ping is terminated on the next cycle, so every ping
// gets one full interval to be answered.
type Monitor struct {
	registry connectionRegistry
	interval time.Duration
	clock    clockwork.Clock
	logger   logger.Logger
	metrics  *metrics.Realtime
}

func NewMonitor(
	registry connectionRegistry,
	interval time.Duration,
	clock clockwork.Clock,
	log logger.Logger,
	m *metrics.Realtime,
) *Monitor {
	return &Monitor{
		registry: registry,
		interval: interval,
		clock:    clock,
		logger:   log.WithField("component", "liveness"),
		metrics:  m,
	}
}

// Run sweeps the registry every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.Sweep()
		case <-ctx.Done():
			m.logger.Debug("Liveness monitor stopped")
			return
		}
	}
}

// Sweep runs one ping cycle and returns the number of evicted connections.
func (m *Monitor) Sweep() int {
	evicted := 0

	for _, conn := range m.registry.GetConnections() {
		if !conn.ResetAlive() {
			m.evict(conn, "no liveness response since last ping")
			evicted++
			continue
		}

		if err := conn.Ping(); err != nil {
			m.evict(conn, "ping failed: "+err.Error())
			evicted++
		}
	}

	return evicted
}

func (m *Monitor) evict(conn Connection, reason string) {
	removed := m.registry.removeConnection(conn)
	_ = conn.Terminate()
	if removed {
		if m.metrics != nil {
			m.metrics.Evictions.Inc()
		}
		m.logger.WithFields(logger.ConnectionFields(conn.ID(), conn.UserID())).Infof("Evicted connection: %s", reason)
	}
}
