package relay

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
)

const DefaultChannel = "portal:updates"

// Redis relays update events between service instances over Redis Pub/Sub.
// Broadcast only publishes; every instance, the publisher included, hands
// events it receives on the channel to its local hub, so each client sees an
// event exactly once regardless of where it originated.
type Redis struct {
	rdb     *goredis.Client
	channel string
	local   hub.Broadcaster
	logger  logger.Logger
}

var _ hub.Broadcaster = (*Redis)(nil)

// NewRedis creates a relay from a URL (e.g., "redis://localhost:6379").
func NewRedis(redisURL, channel string, local hub.Broadcaster, log logger.Logger) (*Redis, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}

	log = log.WithField("component", "relay")
	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewCircuitBreakerHook(log))

	return &Redis{
		rdb:     rdb,
		channel: channel,
		local:   local,
		logger:  log,
	}, nil
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Broadcast publishes event to every instance listening on the channel.
func (r *Redis) Broadcast(ctx context.Context, event hub.UpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}
	return nil
}

// Run subscribes to the channel and forwards events to the local hub until
// ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer func() {
		_ = sub.Close()
	}()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Infof("Relaying updates on Redis channel %s", r.channel)

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Redis) deliver(ctx context.Context, payload string) {
	forward(ctx, r.local, r.logger, []byte(payload))
}
