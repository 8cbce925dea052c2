// Package config loads the engine configuration from an optional YAML
// file overlaid with ARGUS_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "argus.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "argus.yml"

// Config is the full engine configuration.
type Config struct {
	NATS     NATSConfig     `koanf:"nats"`
	Blob     BlobConfig     `koanf:"blob"`
	Sessions SessionsConfig `koanf:"sessions"`
	Workers  WorkersConfig  `koanf:"workers"`
	Tracing  TracingConfig  `koanf:"tracing"`
}

// NATSConfig configures the messaging layer.
type NATSConfig struct {
	URL                 string `koanf:"url"`
	NotifyStream        string `koanf:"notify_stream"`
	NotifySubjectPrefix string `koanf:"notify_subject_prefix"`
	ArrivalStream       string `koanf:"arrival_stream"`
	ArrivalConsumer     string `koanf:"arrival_consumer"`
	PublishMaxRetries   int    `koanf:"publish_max_retries"`
}

// BlobConfig configures validation-detail offloading.
type BlobConfig struct {
	ConnectionString string `koanf:"connection_string"`
	Container        string `koanf:"container"`
	OffloadThreshold int    `koanf:"offload_threshold"`
}

// SessionsConfig bounds session lifetimes and the wait API.
type SessionsConfig struct {
	Lifespan           time.Duration `koanf:"lifespan"`
	DeferredLifespan   time.Duration `koanf:"deferred_lifespan"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	WaitPollInterval   time.Duration `koanf:"wait_poll_interval"`
	WaitDefaultTimeout time.Duration `koanf:"wait_default_timeout"`
	WaitMaxTimeout     time.Duration `koanf:"wait_max_timeout"`
	WorkerTTL          time.Duration `koanf:"worker_ttl"`
}

// WorkersConfig sizes the execution pools. Zero values defer to
// CPU-based auto-detection.
type WorkersConfig struct {
	MaxConcurrent    int `koanf:"max_concurrent"`
	ArrivalBatchSize int `koanf:"arrival_batch_size"`
	ArrivalWorkers   int `koanf:"arrival_workers"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	Environment  string  `koanf:"environment"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.NotifyStream == "" {
		c.NATS.NotifyStream = "ARGUS_NOTIFY"
	}
	if c.NATS.NotifySubjectPrefix == "" {
		c.NATS.NotifySubjectPrefix = "argus.notify"
	}
	if c.NATS.ArrivalStream == "" {
		c.NATS.ArrivalStream = "ARGUS_ARRIVALS"
	}
	if c.NATS.ArrivalConsumer == "" {
		c.NATS.ArrivalConsumer = "argus-engine"
	}
	if c.NATS.PublishMaxRetries <= 0 {
		c.NATS.PublishMaxRetries = 3
	}
	if c.Blob.Container == "" {
		c.Blob.Container = "validation-details"
	}
	if c.Sessions.Lifespan <= 0 {
		c.Sessions.Lifespan = 30 * time.Minute
	}
	if c.Sessions.DeferredLifespan <= 0 {
		c.Sessions.DeferredLifespan = 15 * time.Minute
	}
	if c.Sessions.SweepInterval <= 0 {
		c.Sessions.SweepInterval = time.Minute
	}
	if c.Sessions.WaitPollInterval <= 0 {
		c.Sessions.WaitPollInterval = time.Second
	}
	if c.Sessions.WaitDefaultTimeout <= 0 {
		c.Sessions.WaitDefaultTimeout = 60 * time.Second
	}
	if c.Sessions.WaitMaxTimeout <= 0 {
		c.Sessions.WaitMaxTimeout = 600 * time.Second
	}
	if c.Sessions.WorkerTTL <= 0 {
		c.Sessions.WorkerTTL = 30 * time.Second
	}
	if c.Workers.ArrivalBatchSize <= 0 {
		c.Workers.ArrivalBatchSize = 32
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1.0
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = "127.0.0.1:4318"
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}
}

// Load reads the configuration. Priority, lowest to highest: file,
// environment. path may be empty; the working directory is searched
// for argus.yaml / argus.yml. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = findConfigFile(".")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Double underscore separates levels so keys may keep single
	// underscores: ARGUS_NATS__NOTIFY_STREAM -> nats.notify_stream
	if err := k.Load(env.Provider("ARGUS_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "ARGUS_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := dir + string(os.PathSeparator) + name
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
