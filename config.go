package workpool

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/workpool-dev/workpool/core"
)

// Config is the file-loadable pool configuration.
//
// Example YAML:
//
//	id: ingest-pool
//	workers: 8
//	queue_capacity: 256
//	rejection_policy: drop_oldest
type Config struct {
	// ID names the pool in logs and metrics; generated if empty.
	ID string `yaml:"id"`

	// Workers is the number of worker goroutines; defaults to the number
	// of CPUs.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the pending-task queue; 0 = unbounded.
	QueueCapacity int `yaml:"queue_capacity"`

	// RejectionPolicy is one of: block, fail, caller_runs, drop_oldest.
	// Empty defaults to block.
	RejectionPolicy string `yaml:"rejection_policy"`
}

// DefaultConfig returns a config with CPU-count workers, an unbounded
// queue, and the block policy.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		RejectionPolicy: core.Block.String(),
	}
}

// LoadConfig reads a YAML pool configuration from path, applying defaults
// for omitted fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return core.ErrInvalidConfig("workers must be > 0")
	}
	if c.QueueCapacity < 0 {
		return core.ErrInvalidConfig("queue_capacity must be >= 0")
	}
	if _, err := core.ParseRejectionPolicy(c.RejectionPolicy); err != nil {
		return err
	}
	return nil
}

// NewFromConfig builds a pool from a validated Config. Hooks (metrics,
// panic handling, logging) are code-level concerns and stay on PoolConfig;
// pass them through opts, which may be nil.
func NewFromConfig(cfg *Config, opts *PoolConfig) (*Pool, error) {
	if cfg == nil {
		return nil, core.ErrInvalidConfig("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := core.ParseRejectionPolicy(cfg.RejectionPolicy)
	if err != nil {
		return nil, err
	}

	if opts == nil {
		opts = DefaultPoolConfig()
	}
	merged := *opts
	merged.QueueCapacity = cfg.QueueCapacity
	merged.RejectionPolicy = policy

	return NewWithConfig(cfg.ID, cfg.Workers, &merged)
}
