package bus

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis publishes each channel as <prefix><channel> and pattern-subscribes to
// the whole prefix.
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedis(client *redis.Client, prefix string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, logger: logger.Named("bus.redis")}
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, r.prefix+channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	ch := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					r.logger.Warn("redis_subscription_closed")
					return
				}
				handler(strings.TrimPrefix(msg.Channel, r.prefix), []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
