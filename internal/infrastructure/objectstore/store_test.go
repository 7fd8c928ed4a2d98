package objectstore

import "testing"

func TestLogObjectKey(t *testing.T) {
	if got := LogObjectKey("job-42"); got != "jobs/job-42/output.log" {
		t.Errorf("LogObjectKey = %q", got)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "refbatch-logs",
	}

	if _, err := New(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missing := []struct {
		name   string
		mutate func(*Config)
	}{
		{"endpoint", func(c *Config) { c.Endpoint = "" }},
		{"access key", func(c *Config) { c.AccessKey = "" }},
		{"secret key", func(c *Config) { c.SecretKey = "" }},
		{"bucket", func(c *Config) { c.Bucket = "" }},
	}
	for _, tc := range missing {
		cfg := base
		tc.mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Errorf("config without %s should be rejected", tc.name)
		}
	}
}
