package database

import (
	"strings"
	"testing"
)

func TestGetDatabaseURLPrefersDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db.internal:5432/refbatch")
	if got := GetDatabaseURL(); got != "postgres://u:p@db.internal:5432/refbatch" {
		t.Errorf("GetDatabaseURL = %q", got)
	}
}

func TestGetDatabaseURLFallsBackToParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "ci")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "jobs")
	t.Setenv("DB_SSLMODE", "require")

	got := GetDatabaseURL()
	for _, part := range []string{"host=pg.internal", "port=5433", "user=ci", "dbname=jobs", "sslmode=require"} {
		if !strings.Contains(got, part) {
			t.Errorf("GetDatabaseURL = %q, missing %q", got, part)
		}
	}
}
