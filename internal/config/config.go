// Package config provides configuration parsing and validation for the bridge.
package config

import (
	"fmt"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"
)

// Config holds all configuration parameters for the bridge.
type Config struct {
	KafkaBrokers    string
	InboundTopic    string
	ConsumerGroupID string
	// OutboundTopicPrefix is joined with the topic tag, e.g. "bugzilla" + "record.created".
	OutboundTopicPrefix string

	Products string

	BugzillaURL      string
	BugzillaAPIKey   string
	BugzillaUsername string
	BugzillaPassword string
	LookupTimeout    time.Duration

	CorrelationWindow    time.Duration
	CreationCommentCount int

	// Optional sinks; empty disables them.
	RedisAddr   string
	PostgresDSN string

	MetricsInterval time.Duration
	LogLevel        string
}

// ProductList returns the parsed allow-list.
func (c *Config) ProductList() []string {
	return lookup.ParseProducts(c.Products)
}

// Validate checks that all required configuration fields are set and have valid values.
func (c *Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.InboundTopic == "" {
		return fmt.Errorf("inbound-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.OutboundTopicPrefix == "" {
		return fmt.Errorf("outbound-topic-prefix cannot be empty")
	}
	if len(c.ProductList()) == 0 {
		return fmt.Errorf("products cannot be empty")
	}
	if c.BugzillaURL == "" {
		return fmt.Errorf("bugzilla-url cannot be empty")
	}
	if (c.BugzillaUsername == "") != (c.BugzillaPassword == "") {
		return fmt.Errorf("bugzilla-username and bugzilla-password must be set together")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup-timeout must be > 0")
	}
	if c.CorrelationWindow <= 0 {
		return fmt.Errorf("correlation-window must be > 0")
	}
	if c.CreationCommentCount < 1 {
		return fmt.Errorf("creation-comment-count must be >= 1")
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics-interval must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error")
	}
	return nil
}
