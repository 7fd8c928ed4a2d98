package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refbatch/refbatch/internal/models"
)

// WorkerConfig is the execution agent's configuration, loaded from a YAML
// file. Every field has a usable default so the file is optional.
type WorkerConfig struct {
	WorkerID       string   `yaml:"worker_id"`
	Region         string   `yaml:"region"`
	Queues         []string `yaml:"queues"`
	Concurrency    int      `yaml:"concurrency"`
	WorkspaceRoot  string   `yaml:"workspace_root"`
	PollTimeoutSec int      `yaml:"poll_timeout_sec"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBackoffMs int      `yaml:"retry_backoff_ms"`
}

// LoadWorker reads path when non-empty and fills in defaults. A missing file
// with a non-empty path is an error; an empty path means defaults only.
func LoadWorker(path string) (*WorkerConfig, error) {
	cfg := &WorkerConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read worker config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse worker config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *WorkerConfig) applyDefaults() {
	if c.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		c.WorkerID = host
	}
	if c.Region == "" {
		c.Region = models.DefaultRegion
	}
	if len(c.Queues) == 0 {
		c.Queues = []string{models.QueueCPU}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "./workspaces"
	}
	if c.PollTimeoutSec <= 0 {
		c.PollTimeoutSec = 5
	}
	if c.RetryBackoffMs <= 0 {
		c.RetryBackoffMs = 1000
	}
}

func (c *WorkerConfig) validate() error {
	for _, q := range c.Queues {
		if q != models.QueueGPU && q != models.QueueCPU {
			return fmt.Errorf("unknown queue %q in worker config", q)
		}
	}
	return nil
}

// PollTimeout is the BRPOP timeout.
func (c *WorkerConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// RetryBackoff is the delay before requeueing after an infrastructure
// failure.
func (c *WorkerConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
