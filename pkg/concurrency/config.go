package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the concurrency configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds the sizing of the execution worker pool.
type Config struct {
	// MaxConcurrent bounds simultaneous parameter executions.
	MaxConcurrent int

	// Workers is the size of the fan-out worker pool.
	Workers int

	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig sizes the pool with priority: env vars > auto-detection.
// ARGUS_MAX_CONCURRENT and ARGUS_WORKERS override; otherwise sizing
// follows the effective CPU count, conservatively under Kubernetes.
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
	}

	if maxConcurrent := getEnvInt("ARGUS_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = defaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	if workers := getEnvInt("ARGUS_WORKERS", 0); workers > 0 {
		config.Workers = workers
	} else {
		config.Workers = defaultWorkers(config.IsKubernetes, config.EffectiveCPUs)
	}

	return config
}

// isKubernetes detects if the process is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func defaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		// Conservative under Kubernetes to prevent resource exhaustion
		return cpus * 2
	}
	return cpus * 4
}

func defaultWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 4)
	}
	return max(cpus*2, 8)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, Workers: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent, c.Workers, c.IsKubernetes, c.EffectiveCPUs, c.Source,
	)
}
