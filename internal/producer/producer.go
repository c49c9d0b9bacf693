// Package producer publishes enriched bug events to the outbound Kafka topics.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	kafkautil "github.com/afikmenashe/bugzilla-bridge/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a Kafka writer. Each topic tag maps to its own topic under a shared prefix.
type Producer struct {
	writer      *kafka.Writer
	topicPrefix string
}

// NewProducer creates a producer writing to "<topicPrefix>.<tag>" topics.
func NewProducer(brokers string, topicPrefix string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topicPrefix); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic_prefix", topicPrefix,
	)

	// Topic is left unset on the writer; every message names its own.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Balancer:     &kafka.Hash{}, // Key-based partitioning keeps one bug's events ordered
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka producer configured",
		"write_timeout", kafkautil.WriteTimeout,
		"required_acks", "RequireOne",
		"async", false,
		"partition_key", "bug_id (hashed)",
	)

	return &Producer{
		writer:      writer,
		topicPrefix: strings.TrimSuffix(topicPrefix, "."),
	}, nil
}

// TopicFor returns the full topic name for a topic tag.
func (p *Producer) TopicFor(tag string) string {
	return p.topicPrefix + "." + tag
}

// buildMessage creates a Kafka message from an outbound event, keyed by bug ID.
func buildMessage(topic string, ev *events.OutboundEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal outbound event: %w", err)
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(ev.RecordKey()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: kafkautil.HeaderSchemaVersion, Value: []byte(strconv.Itoa(ev.SchemaVersion))},
			{Key: kafkautil.HeaderMessageID, Value: []byte(ev.MessageID)},
			{Key: kafkautil.HeaderClassification, Value: []byte(ev.Classification)},
		},
		Time: time.Now(),
	}, nil
}

// Publish stamps the event with its topic and writes it synchronously.
func (p *Producer) Publish(ctx context.Context, topicTag string, ev *events.OutboundEvent) error {
	ev.Topic = p.TopicFor(topicTag)

	msg, err := buildMessage(ev.Topic, ev)
	if err != nil {
		slog.Error("Failed to build outbound message",
			"msg_id", ev.MessageID,
			"record_id", ev.RecordKey(),
			"error", err,
		)
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka topic %s: %w", ev.Topic, err)
	}

	slog.Debug("Wrote outbound event",
		"msg_id", ev.MessageID,
		"topic", ev.Topic,
		"record_id", ev.RecordKey(),
	)
	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic_prefix", p.topicPrefix)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	slog.Info("Kafka producer closed successfully")
	return nil
}
