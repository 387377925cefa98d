// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kacperw/chesshub/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for finished match records.
var DefaultQueueName = "chess_finished_matches"

// FinishedMatchRecord is the minimal payload downstream consumers (archival,
// leaderboards, analytics) need to process a completed game.
type FinishedMatchRecord struct {
	GameID     uuid.UUID           `json:"game_id"`
	GameType   models.GameType     `json:"game_type"`
	White      string              `json:"white"`
	Black      string              `json:"black"`
	Result     string              `json:"result"`
	Reason     models.OutcomeReason `json:"reason"`
	Winner     *models.Color       `json:"winner,omitempty"`
	WhiteDelta int                 `json:"white_delta"`
	BlackDelta int                 `json:"black_delta"`
	Timestamp  int64               `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishFinishedMatch serializes the record to JSON and pushes it onto the
// Redis queue. A quick network send; never blocks game logic meaningfully.
func PublishFinishedMatch(ctx context.Context, record FinishedMatchRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal FinishedMatchRecord: %w", err)
	}

	queueName := getEnv("MATCH_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
