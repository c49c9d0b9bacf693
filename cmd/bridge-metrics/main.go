// Package main prints the metrics snapshots that running bridges publish to Redis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/pkg/metrics"
	"github.com/afikmenashe/bugzilla-bridge/pkg/shared"
)

func main() {
	var (
		redisAddr string
		instance  string
		prefix    string
		watch     time.Duration
	)
	flag.StringVar(&redisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&instance, "instance", "", "Show a single instance (default: all matching -prefix)")
	flag.StringVar(&prefix, "prefix", "bugzilla-bridge", "Instance name prefix when listing")
	flag.DurationVar(&watch, "watch", 0, "Refresh interval (0 prints once)")
	flag.Parse()

	// Logs go to stderr so stdout stays valid JSON.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if redisAddr == "" {
		slog.Error("Invalid configuration", "error", "redis-addr cannot be empty")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := shared.ConnectRedis(ctx, redisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		os.Exit(1)
	}
	defer redisClient.Close()

	reader := metrics.NewReader(redisClient)

	for {
		snaps, err := fetch(ctx, reader, instance, prefix)
		if err != nil {
			slog.Error("Failed to read metrics", "error", err)
			os.Exit(1)
		}
		if err := writeSnapshots(os.Stdout, snaps); err != nil {
			slog.Error("Failed to write metrics", "error", err)
			os.Exit(1)
		}

		if watch <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watch):
		}
	}
}

// snapshotSource is the part of metrics.Reader the CLI uses.
type snapshotSource interface {
	Get(ctx context.Context, instance string) (*metrics.Snapshot, error)
	List(ctx context.Context, prefix string) ([]*metrics.Snapshot, error)
}

func fetch(ctx context.Context, src snapshotSource, instance, prefix string) ([]*metrics.Snapshot, error) {
	if instance != "" {
		snap, err := src.Get(ctx, instance)
		if err != nil {
			return nil, err
		}
		return []*metrics.Snapshot{snap}, nil
	}
	return src.List(ctx, prefix)
}

func writeSnapshots(w io.Writer, snaps []*metrics.Snapshot) error {
	if snaps == nil {
		snaps = []*metrics.Snapshot{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snaps); err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}
	return nil
}
