package database

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// GetDatabaseURL returns the PostgreSQL connection string from environment
func GetDatabaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}

	// Fallback: construct from individual env vars
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "refbatch")
	password := getEnv("DB_PASSWORD", "refbatch_dev")
	dbname := getEnv("DB_NAME", "refbatch")
	sslmode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// NewPostgresDB creates a new PostgreSQL connection
func NewPostgresDB() (*sqlx.DB, error) {
	connStr := GetDatabaseURL()
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// EnsureSchema creates the jobs table if it does not exist yet.
func EnsureSchema(db *sqlx.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			region TEXT NOT NULL,
			job_type TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			work_dir TEXT NOT NULL DEFAULT '',
			remote_url TEXT NOT NULL,
			command TEXT NOT NULL,
			env JSONB NOT NULL DEFAULT '{}',
			queue TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			error_message TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			worker_id TEXT NOT NULL DEFAULT '',
			log_key TEXT NOT NULL DEFAULT '',
			timeout_sec INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
		`CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
