package kafka

import (
	"context"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume reads messages until the context is canceled. Handler
// errors are logged and the partition offset still advances; the
// settlement topic carries notifications, not state.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				zlog.Error().Err(err).Msg("failed to read message")
				continue
			}

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				zlog.Error().Err(err).Str("key", string(msg.Key)).Msg("failed to handle message")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
