package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON to a topic so operators can stream
// them into their own tooling. Messages are keyed by user id when known.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			MaxAttempts:  3,
			BatchTimeout: 50 * time.Millisecond,
			Compression:  kafka.Snappy,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				slog.Error("kafka audit writer", "error", fmt.Sprintf(msg, args...))
			}),
		},
	}
}

func (s *KafkaSink) Write(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	msg := kafka.Message{Value: value, Time: entry.Timestamp}
	if entry.UserID != nil {
		msg.Key = []byte(entry.UserID.String())
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
