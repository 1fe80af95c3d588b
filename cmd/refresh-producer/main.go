package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/profile-scores/internal/config"
	"github.com/profile-scores/internal/kafka"
	"github.com/profile-scores/internal/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides the config file")
	topic := flag.String("topic", "", "Kafka topic, overrides the config file")
	users := flag.String("users", "", "User IDs to refresh (comma-separated)")
	all := flag.Bool("all", false, "Refresh every user known to PostgreSQL")
	batchSize := flag.Int("batch", 100, "Requests per publish call")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9094"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userIDs := splitUsers(*users)
	if *all {
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		known, err := repo.ListUserIDs(ctx)
		repo.Close()
		if err != nil {
			logger.Error("failed to list users", "error", err)
			os.Exit(1)
		}
		userIDs = append(userIDs, known...)
	}
	if len(userIDs) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to refresh: pass -users or -all")
		os.Exit(2)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Profile Refresh Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:   %s\n", strings.Join(cfg.Kafka.Brokers, ","))
	fmt.Printf("  Topic:     %s\n", cfg.Kafka.Topic)
	fmt.Printf("  Users:     %d\n", len(userIDs))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	producer, err := kafka.NewProducer(&cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if *batchSize <= 0 {
		*batchSize = 1
	}

	sent := 0
	for start := 0; start < len(userIDs); start += *batchSize {
		if ctx.Err() != nil {
			fmt.Println("\nInterrupted")
			break
		}
		end := min(start+*batchSize, len(userIDs))
		if _, err := producer.PublishRefresh(userIDs[start:end]...); err != nil {
			logger.Error("failed to publish batch", "from", start, "to", end, "error", err)
			continue
		}
		sent = end
		fmt.Printf("\r  Progress: %d/%d requests", end, len(userIDs))
	}
	fmt.Printf("\n✓ Completed. Published up to %d of %d requests\n", sent, len(userIDs))
}

// splitUsers parses a comma-separated list, dropping blanks and duplicates
func splitUsers(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
