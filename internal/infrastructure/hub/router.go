package hub

import (
	"context"
	"encoding/json"
	"time"

	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
)

// updateLimiter is implemented by connections that throttle client-originated
// update frames.
type updateLimiter interface {
	AllowUpdate() bool
}

// Router interprets client frames: subscribe and ping are answered to the
// sender only, update is handed to the broadcaster. Anything it cannot make
// sense of is logged and dropped; the connection stays open.
type Router struct {
	broadcaster Broadcaster
	logger      logger.Logger
	metrics     *metrics.Realtime
	now         func() time.Time
}

var _ InboundHandler = (*Router)(nil)

func NewRouter(broadcaster Broadcaster, log logger.Logger, m *metrics.Realtime) *Router {
	return &Router{
		broadcaster: broadcaster,
		logger:      log.WithField("component", "router"),
		metrics:     m,
		now:         time.Now,
	}
}

func (r *Router) HandleInbound(ctx context.Context, conn Connection, frame []byte) {
	msg, err := decodeInbound(frame)
	if err != nil {
		r.count("malformed")
		r.logger.Warnf("Dropping malformed frame from connection %s: %v", conn.ID(), err)
		return
	}

	switch m := msg.(type) {
	case subscribeMessage:
		r.count(TypeSubscribe)
		r.logger.Debugf("User %s subscribed to %q", conn.UserID(), m.Channel)
		r.reply(ctx, conn, subscribedFrame{Type: TypeSubscribed, Channel: m.Channel})

	case pingMessage:
		r.count(TypePing)
		r.reply(ctx, conn, pongFrame{Type: TypePong, Timestamp: r.now().UnixMilli()})

	case updateMessage:
		r.count(TypeUpdate)
		if l, ok := conn.(updateLimiter); ok && !l.AllowUpdate() {
			r.logger.Warnf("Dropping update from connection %s: rate limit exceeded", conn.ID())
			return
		}

		var payload any
		if len(m.Payload) > 0 {
			payload = m.Payload
		}
		event := UpdateEvent{
			Resource:  m.Resource,
			Action:    m.Action,
			Payload:   payload,
			Timestamp: r.now(),
		}
		if err := r.broadcaster.Broadcast(ctx, event); err != nil {
			r.logger.Errorf("Failed to broadcast %s/%s from connection %s: %v", m.Resource, m.Action, conn.ID(), err)
		}

	case unknownMessage:
		r.count("unknown")
		r.logger.Infof("Unknown message type %q from connection %s", m.Type, conn.ID())

	default:
		r.logger.Errorf("Unhandled inbound message %T from connection %s", msg, conn.ID())
	}
}

func (r *Router) reply(ctx context.Context, conn Connection, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		r.logger.Errorf("Failed to encode reply for connection %s: %v", conn.ID(), err)
		return
	}
	if err := conn.Send(ctx, frame); err != nil {
		r.logger.Warnf("Failed to reply to connection %s: %v", conn.ID(), err)
	}
}

func (r *Router) count(msgType string) {
	if r.metrics != nil {
		r.metrics.InboundMessages.WithLabelValues(msgType).Inc()
	}
}
