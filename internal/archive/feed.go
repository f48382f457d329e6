// Package archive publishes shadow-archived group messages to a Kafka topic
// for downstream indexing.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/uflbot/uflbot/internal/store"
)

// Feed writes archived group messages to a topic. A nil Feed is valid and
// publishes nothing, so callers never need to branch on configuration.
type Feed struct {
	writer *kafka.Writer
}

// NewFeed creates a feed for the given brokers and topic. Returns nil when
// no brokers are configured.
func NewFeed(brokers, topic string) *Feed {
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return nil
	}
	return &Feed{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(brokers, ",")...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish sends one archived group message as a JSON record keyed by chat id.
// The store write has already happened; this is best effort.
func (f *Feed) Publish(ctx context.Context, msg *store.GroupMessage) error {
	if f == nil {
		return nil
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal group message: %w", err)
	}
	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.ChatID, 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", f.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}
