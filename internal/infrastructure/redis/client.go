package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// ConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD and REDIS_DB with local
// defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			cfg.DB = db
		}
	}
	return cfg
}

func NewClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// EventsChannel carries JSON-encoded models.JobEvent messages.
const EventsChannel = "refbatch:jobs:events"

// QueueKey returns the list key workers BRPOP from. Queues are sharded per
// region and queue class.
func QueueKey(region, queue string) string {
	return "refbatch:queue:" + region + ":" + queue
}

// LogKey returns the list key holding the job's buffered log lines.
func LogKey(jobID string) string {
	return "refbatch:logs:" + jobID
}

// CancelKey returns the flag key set when a job is cancelled.
func CancelKey(jobID string) string {
	return "refbatch:cancel:" + jobID
}
