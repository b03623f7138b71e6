// Package bus carries encoded events from producers (engine, price feed) to
// the stream gateway. Channel names are the ones in package topic.
package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handler func(channel string, payload []byte)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber starts delivering every channel's traffic to handler until ctx
// ends. Local, Redis and libp2p subscriptions are live when Subscribe returns;
// Kafka goes live once its reader has joined the consumer group.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

type Config struct {
	Backend string // local | redis | kafka | libp2p

	RedisURL    string
	RedisPrefix string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	P2PListen    string
	P2PBootstrap []string
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "local":
		return NewLocal(), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("bus: redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("bus: redis ping: %w", err)
		}
		return NewRedis(client, cfg.RedisPrefix, logger), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("bus: kafka backend needs brokers")
		}
		return NewKafka(KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroup,
		}, logger), nil
	case "libp2p":
		return NewP2P(ctx, P2PConfig{
			ListenAddr: cfg.P2PListen,
			Bootstrap:  cfg.P2PBootstrap,
			Logger:     logger.Sugar(),
		})
	default:
		return nil, fmt.Errorf("bus: unknown backend %q", cfg.Backend)
	}
}
