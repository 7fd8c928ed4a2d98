package redis

import "testing"

func TestKeyLayout(t *testing.T) {
	if got := QueueKey("us-east-1", "gpu"); got != "refbatch:queue:us-east-1:gpu" {
		t.Errorf("QueueKey = %q", got)
	}
	if got := LogKey("job-1"); got != "refbatch:logs:job-1" {
		t.Errorf("LogKey = %q", got)
	}
	if got := CancelKey("job-1"); got != "refbatch:cancel:job-1" {
		t.Errorf("CancelKey = %q", got)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_DB", "")

	cfg := ConfigFromEnv()
	if cfg.Addr != "localhost:6379" {
		t.Errorf("addr = %q, want localhost:6379", cfg.Addr)
	}
	if cfg.DB != 0 {
		t.Errorf("db = %d, want 0", cfg.DB)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "3")

	cfg := ConfigFromEnv()
	if cfg.Addr != "redis.internal:6380" || cfg.Password != "hunter2" || cfg.DB != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
