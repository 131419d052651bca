package config

import (
	"time"

	"github.com/vietddude/acumba/internal/bulk"
	"github.com/vietddude/acumba/internal/infra/acumbamail"
	redisclient "github.com/vietddude/acumba/internal/infra/redis"
	"github.com/vietddude/acumba/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	API      acumbamail.Config  `yaml:"api"`
	Retry    RetryConfig        `yaml:"retry"`
	Breaker  BreakerConfig      `yaml:"breaker"`
	Bulk     bulk.Config        `yaml:"bulk"`
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Triggers TriggersConfig     `yaml:"triggers"`
}

// RetryConfig configures exponential backoff of failed calls.
type RetryConfig struct {
	MaxRetries *int          `yaml:"max_retries"` // unset uses the default, 0 disables retries
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	RetryOn    []string      `yaml:"retry_on"` // validation, rate_limit, api, other
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// DisabledPort turns the health server off.
const DisabledPort = -1

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // unset uses 8080, -1 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TriggersConfig points at extra trigger templates.
type TriggersConfig struct {
	File string `yaml:"file"`
}
