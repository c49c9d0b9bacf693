// Package main publishes synthetic Bugzilla change notifications onto the inbound
// topic so the bridge can be exercised end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	kafkautil "github.com/afikmenashe/bugzilla-bridge/pkg/kafka"
	"github.com/afikmenashe/bugzilla-bridge/pkg/shared"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// options holds the producer's command-line settings.
type options struct {
	brokers   string
	topic     string
	product   string
	bugID     string
	timestamp string
	count     int
	interval  time.Duration
	mock      bool
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	opts := options{}
	flag.StringVar(&opts.brokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&opts.topic, "topic", shared.GetEnvOrDefault("INBOUND_TOPIC", "bugzilla.notifications"), "Kafka topic for notifications")
	flag.StringVar(&opts.product, "product", "Fedora", "Product field of the notification (empty omits it)")
	flag.StringVar(&opts.bugID, "bug-id", "", "Bug ID to announce")
	flag.StringVar(&opts.timestamp, "timestamp", "", "Notification timestamp (default: now, UTC)")
	flag.IntVar(&opts.count, "count", 1, "Number of notifications to send")
	flag.DurationVar(&opts.interval, "interval", time.Second, "Delay between notifications")
	flag.BoolVar(&opts.mock, "mock", false, "Log notifications instead of sending them")
	flag.Parse()

	if err := opts.validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var writer *kafka.Writer
	if !opts.mock {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(kafkautil.ParseBrokers(opts.brokers)...),
			Topic:        opts.topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: kafkautil.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
		}
		defer writer.Close()
		slog.Info("Connected Kafka writer", "brokers", opts.brokers, "topic", opts.topic)
	} else {
		slog.Info("Using mock mode - notifications will be logged but not sent to Kafka")
	}

	for i := 0; i < opts.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				slog.Info("Interrupted", "sent", i)
				return
			case <-time.After(opts.interval):
			}
		}

		msg, err := buildMessage(opts, time.Now().UTC())
		if err != nil {
			slog.Error("Failed to build notification", "error", err)
			os.Exit(1)
		}

		if opts.mock {
			slog.Info("Mock notification", "topic", opts.topic, "key", string(msg.Key), "value", string(msg.Value))
			continue
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			slog.Error("Failed to publish notification", "bug_id", opts.bugID, "error", err)
			os.Exit(1)
		}
		slog.Info("Published notification", "bug_id", opts.bugID, "product", opts.product)
	}
}

func (o options) validate() error {
	if err := kafkautil.ValidateProducerParams(o.brokers, o.topic); err != nil {
		return err
	}
	if o.bugID == "" {
		return fmt.Errorf("bug-id cannot be empty")
	}
	if o.count < 1 {
		return fmt.Errorf("count must be >= 1")
	}
	return nil
}

// buildMessage renders one notification the way the upstream bus delivers it.
func buildMessage(o options, now time.Time) (kafka.Message, error) {
	n := events.Notification{
		RecordID:  o.bugID,
		Timestamp: o.timestamp,
	}
	if n.Timestamp == "" {
		n.Timestamp = now.Format("2006-01-02T15:04:05") + "+00:00"
	}
	if o.product != "" {
		product := o.product
		n.Product = &product
	}

	value, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	return kafka.Message{
		Key:   []byte(o.bugID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "esb-message-id", Value: []byte(uuid.NewString())},
		},
		Time: now,
	}, nil
}
