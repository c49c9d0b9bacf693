// Package consumer reads bug change notifications from the inbound Kafka topic.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	kafkautil "github.com/afikmenashe/bugzilla-bridge/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// Consumer wraps a Kafka reader and yields decoded notifications.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer-group reader on topic.
// Offsets are committed by the caller through CommitMessage.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	cfg := kafkautil.NewReaderConfig(brokerList, topic, groupID)
	reader := kafka.NewReader(cfg)
	kafkautil.LogReaderConfig(cfg)

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadMessage fetches the next message and decodes it as a Notification.
// On a decode failure the raw message is still returned so it can be committed.
func (c *Consumer) ReadMessage(ctx context.Context) (*events.Notification, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	n, err := decodeMessage(msg)
	if err != nil {
		return nil, &msg, err
	}
	return n, &msg, nil
}

// decodeMessage turns a Kafka message into a Notification. Kafka headers become
// the notification's transport headers.
func decodeMessage(msg kafka.Message) (*events.Notification, error) {
	var n events.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification (partition=%d offset=%d): %w", msg.Partition, msg.Offset, err)
	}
	n.Headers = kafkautil.HeadersToMap(msg.Headers)
	return &n, nil
}

// CommitMessage commits the offset for the given message.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
