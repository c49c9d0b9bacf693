package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/afikmenashe/bugzilla-bridge/internal/bugzilla"
	"github.com/afikmenashe/bugzilla-bridge/internal/config"
	"github.com/afikmenashe/bugzilla-bridge/internal/consumer"
	"github.com/afikmenashe/bugzilla-bridge/internal/correlator"
	"github.com/afikmenashe/bugzilla-bridge/internal/database"
	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"
	"github.com/afikmenashe/bugzilla-bridge/internal/processor"
	"github.com/afikmenashe/bugzilla-bridge/internal/producer"
	"github.com/afikmenashe/bugzilla-bridge/pkg/metrics"
	"github.com/afikmenashe/bugzilla-bridge/pkg/shared"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Parse command-line flags with environment variable fallbacks
	cfg := &config.Config{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.InboundTopic, "inbound-topic", shared.GetEnvOrDefault("INBOUND_TOPIC", "bugzilla.notifications"), "Kafka topic carrying Bugzilla change notifications")
	flag.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", shared.GetEnvOrDefault("CONSUMER_GROUP_ID", "bugzilla-bridge-group"), "Kafka consumer group ID")
	flag.StringVar(&cfg.OutboundTopicPrefix, "outbound-topic-prefix", shared.GetEnvOrDefault("OUTBOUND_TOPIC_PREFIX", "bugzilla"), "Prefix for outbound topics (<prefix>.record.created, <prefix>.record.updated)")
	flag.StringVar(&cfg.Products, "products", shared.GetEnvOrDefault("PRODUCTS", "Fedora, Fedora EPEL"), "Products to bridge (comma-separated)")
	flag.StringVar(&cfg.BugzillaURL, "bugzilla-url", shared.GetEnvOrDefault("BUGZILLA_URL", bugzilla.DefaultURL), "Bugzilla base URL")
	flag.StringVar(&cfg.BugzillaAPIKey, "bugzilla-api-key", shared.GetEnvOrDefault("BUGZILLA_API_KEY", ""), "Bugzilla API key")
	flag.StringVar(&cfg.BugzillaUsername, "bugzilla-username", shared.GetEnvOrDefault("BUGZILLA_USERNAME", ""), "Bugzilla username")
	flag.StringVar(&cfg.BugzillaPassword, "bugzilla-password", shared.GetEnvOrDefault("BUGZILLA_PASSWORD", ""), "Bugzilla password")
	flag.DurationVar(&cfg.LookupTimeout, "lookup-timeout", shared.GetEnvDurationOrDefault("LOOKUP_TIMEOUT", lookup.DefaultTimeout), "Timeout for fetching one bug and its history")
	flag.DurationVar(&cfg.CorrelationWindow, "correlation-window", shared.GetEnvDurationOrDefault("CORRELATION_WINDOW", correlator.DefaultWindow), "Largest distance between a notification and a matching history entry or comment")
	flag.IntVar(&cfg.CreationCommentCount, "creation-comment-count", shared.GetEnvIntOrDefault("CREATION_COMMENT_COUNT", correlator.DefaultCreationCommentCount), "Comment count of a freshly filed bug")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", ""), "Redis server address for metrics (empty disables reporting)")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", shared.GetEnvOrDefault("POSTGRES_DSN", ""), "PostgreSQL connection string for the outcome journal (empty disables it)")
	flag.DurationVar(&cfg.MetricsInterval, "metrics-interval", shared.GetEnvDurationOrDefault("METRICS_INTERVAL", metrics.DefaultReportInterval), "Metrics reporting interval")
	flag.StringVar(&cfg.LogLevel, "log-level", shared.GetEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: shared.ParseLogLevel(cfg.LogLevel),
	})))

	slog.Info("Starting bugzilla bridge",
		"kafka_brokers", cfg.KafkaBrokers,
		"inbound_topic", cfg.InboundTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"outbound_topic_prefix", cfg.OutboundTopicPrefix,
		"products", cfg.ProductList(),
		"bugzilla_url", cfg.BugzillaURL,
		"correlation_window", cfg.CorrelationWindow,
		"redis_addr", cfg.RedisAddr,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Bugzilla client
	client := bugzilla.NewClient(bugzilla.Options{
		BaseURL:  cfg.BugzillaURL,
		APIKey:   cfg.BugzillaAPIKey,
		Username: cfg.BugzillaUsername,
		Password: cfg.BugzillaPassword,
		Timeout:  cfg.LookupTimeout,
	})
	switch {
	case cfg.BugzillaAPIKey != "":
		slog.Info("Using Bugzilla API key")
	case cfg.BugzillaUsername != "":
		if err := client.Login(ctx); err != nil {
			slog.Error("Failed to log in to Bugzilla", "username", cfg.BugzillaUsername, "error", err)
			os.Exit(1)
		}
	default:
		slog.Info("No Bugzilla credentials provided, continuing anonymously")
	}

	// Optional outcome journal
	var journal processor.Journal
	if cfg.PostgresDSN != "" {
		slog.Info("Connecting to PostgreSQL database")
		db, err := database.NewDB(cfg.PostgresDSN)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or leave -postgres-dsn empty")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("Failed to prepare outcome journal", "error", err)
			os.Exit(1)
		}
		journal = db
	}

	// Metrics; without Redis the counters stay in memory
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
		rc, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			slog.Info("Tip: Start Redis with 'docker compose up -d redis' or leave -redis-addr empty")
			os.Exit(1)
		}
		defer rc.Close()
		redisClient = rc
	}
	metricsCollector := metrics.NewCollector(instanceName(), redisClient)
	metricsCollector.SetReportInterval(cfg.MetricsInterval)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	// Initialize Kafka consumer
	slog.Info("Connecting to Kafka consumer", "topic", cfg.InboundTopic)
	kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.InboundTopic, cfg.ConsumerGroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaConsumer.Close()

	// Initialize Kafka producer
	kafkaProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.OutboundTopicPrefix)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer kafkaProducer.Close()

	proc := processor.NewProcessor(processor.Deps{
		Reader:    kafkaConsumer,
		Publisher: kafkaProducer,
		Filter:    lookup.NewFilter(cfg.ProductList()),
		Lookup:    lookup.New(client, cfg.LookupTimeout),
		Correlator: correlator.New(
			correlator.WithWindow(cfg.CorrelationWindow),
			correlator.WithCreationCommentCount(cfg.CreationCommentCount),
		),
		Journal: journal,
		Metrics: metricsCollector,
	})

	// Main processing loop
	if err := proc.Run(ctx); err != nil {
		slog.Error("Notification processing failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Bugzilla bridge stopped")
}

// instanceName identifies this process in the metrics store.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "bugzilla-bridge"
	}
	return "bugzilla-bridge." + host
}
