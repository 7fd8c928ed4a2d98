package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/refbatch/refbatch/internal/infrastructure/objectstore"
	"github.com/refbatch/refbatch/internal/infrastructure/redis"
)

// Config carries the ambient settings shared by the server and the worker.
// The database package reads its own DATABASE_URL/DB_* chain.
type Config struct {
	Port     string
	Redis    redis.Config
	Artifact objectstore.Config
}

// Load reads .env (when present) and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Redis:    redis.ConfigFromEnv(),
		Artifact: loadArtifactConfig(),
	}
}

// ArtifactEnabled reports whether an object store endpoint is configured.
// Without one, logs are served from the Redis buffer only.
func (c *Config) ArtifactEnabled() bool {
	return strings.TrimSpace(c.Artifact.Endpoint) != ""
}

func loadArtifactConfig() objectstore.Config {
	return objectstore.Config{
		Endpoint:  strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
		Region:    getEnv("MINIO_REGION", "us-east-1"),
		AccessKey: firstNonEmpty(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(os.Getenv("MINIO_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
		Bucket:    getEnv("MINIO_BUCKET", "refbatch-logs"),
		UseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
