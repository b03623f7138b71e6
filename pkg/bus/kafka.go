package bus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID must be unique per node: nodes sharing a group split the topic's
	// partitions between them instead of each seeing every channel. Empty
	// picks a fresh group per process.
	GroupID string
}

const kafkaGroupPrefix = "bookcast-gateway-"

// Kafka carries every channel on one topic, keyed by channel name. The hash
// balancer keeps a channel on one partition, which preserves its order.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafka(cfg KafkaConfig, logger *zap.Logger) *Kafka {
	if cfg.Topic == "" {
		cfg.Topic = "bookcast-events"
	}
	if cfg.GroupID == "" {
		cfg.GroupID = kafkaGroupPrefix + uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 5 * time.Millisecond,
		},
		logger: logger.Named("bus.kafka"),
	}
}

func (k *Kafka) Publish(ctx context.Context, channel string, payload []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: payload,
		Time:  time.Now(),
	})
}

// Subscribe reads from the newest offset. The reader joins its group in the
// background, so messages written in the short window between Subscribe
// returning and the join completing are not delivered.
func (k *Kafka) Subscribe(ctx context.Context, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		Topic:       k.cfg.Topic,
		GroupID:     k.cfg.GroupID,
		StartOffset: kafka.LastOffset,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					k.logger.Warn("kafka_read_failed", zap.Error(err))
				}
				return
			}
			handler(string(m.Key), m.Value)
		}
	}()
	return nil
}

func (k *Kafka) GroupID() string { return k.cfg.GroupID }

func (k *Kafka) Close() error {
	return k.writer.Close()
}
