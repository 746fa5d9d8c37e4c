package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"go-portal-realtime/internal/infrastructure/logger"
)

// CircuitBreakerHook guards every call on the relay's Redis client. Publish
// runs inside REST writes, so once Redis is failing the breaker opens and
// writes fail fast instead of waiting on dial and read timeouts.
type CircuitBreakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook trips after 60% of at least 5 calls fail within a 10s
// window, stays open for 30s, then lets one trial call through.
func NewCircuitBreakerHook(log logger.Logger) *CircuitBreakerHook {
	return newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis-relay",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}, log)
}

func newCircuitBreakerHook(st gobreaker.Settings, log logger.Logger) *CircuitBreakerHook {
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.WithFields(logger.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
			Warn("Circuit breaker state changed")
	}
	return &CircuitBreakerHook{cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker state.
func (h *CircuitBreakerHook) State() gobreaker.State {
	return h.cb.State()
}

// Counts reports the calls seen in the current window.
func (h *CircuitBreakerHook) Counts() gobreaker.Counts {
	return h.cb.Counts()
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := h.cb.Execute(func() (any, error) {
			return next(ctx, network, addr)
		})
		if err != nil {
			return nil, openErr(err)
		}
		c, _ := conn.(net.Conn)
		return c, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		var cmdErr error
		_, err := h.cb.Execute(func() (any, error) {
			cmdErr = next(ctx, cmd)
			// A missing key is an answer, not a failure.
			if cmdErr != nil && !errors.Is(cmdErr, goredis.Nil) {
				return nil, cmdErr
			}
			return nil, nil
		})
		if isOpen(err) {
			return openErr(err)
		}
		return cmdErr
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		_, err := h.cb.Execute(func() (any, error) {
			return nil, next(ctx, cmds)
		})
		return openErr(err)
	}
}

func isOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func openErr(err error) error {
	if isOpen(err) {
		return fmt.Errorf("redis circuit breaker open: %w", err)
	}
	return err
}
