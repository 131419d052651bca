package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/acumba/internal/bulk"
	redisclient "github.com/vietddude/acumba/internal/infra/redis"
	"github.com/vietddude/acumba/internal/resilience"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given. The API
// token is read from ACUMBAMAIL_AUTH_TOKEN.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.API.AuthToken = os.Getenv("ACUMBAMAIL_AUTH_TOKEN")
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	retry := resilience.DefaultRetryPolicy()
	if c.Retry.MaxRetries == nil {
		n := retry.MaxRetries()
		c.Retry.MaxRetries = &n
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.BaseDelay()
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = retry.MaxDelay()
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = retry.Multiplier()
	}
	if len(c.Retry.RetryOn) == 0 {
		for _, k := range retry.RetryOn() {
			c.Retry.RetryOn = append(c.Retry.RetryOn, string(k))
		}
	}

	breaker := resilience.DefaultBreakerSettings("")
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = breaker.FailureThreshold
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = breaker.Cooldown
	}

	def := bulk.DefaultConfig()
	if c.Bulk.Pace == 0 {
		c.Bulk.Pace = def.Pace
	}
	if c.Bulk.Concurrency == 0 {
		c.Bulk.Concurrency = def.Concurrency
	}
	if c.Bulk.ReplayInterval == 0 {
		c.Bulk.ReplayInterval = def.ReplayInterval
	}
	if c.Bulk.MaxReplays == 0 {
		c.Bulk.MaxReplays = def.MaxReplays
	}
	if c.Bulk.ReplayBatch == 0 {
		c.Bulk.ReplayBatch = def.ReplayBatch
	}

	if c.Redis.StatsTTL == 0 {
		c.Redis.StatsTTL = redisclient.DefaultStatsTTL
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.RetryPolicy(); err != nil {
		errs = append(errs, err)
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("breaker.failure_threshold must be at least 1"))
	}
	if c.Breaker.Cooldown < 0 {
		errs = append(errs, errors.New("breaker.cooldown must not be negative"))
	}
	if c.Bulk.Concurrency < 1 {
		errs = append(errs, errors.New("bulk.concurrency must be at least 1"))
	}
	if c.Bulk.Pace < 0 || c.Bulk.ReplayInterval < 0 {
		errs = append(errs, errors.New("bulk durations must not be negative"))
	}
	if c.Server.Port < DisabledPort || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("database.min_conns %d exceeds max_conns %d",
			c.Database.MinConns, c.Database.MaxConns))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetryPolicy builds the retry policy of the retry section.
func (c *AppConfig) RetryPolicy() (resilience.RetryPolicy, error) {
	kinds := make([]resilience.Kind, len(c.Retry.RetryOn))
	for i, k := range c.Retry.RetryOn {
		kinds[i] = resilience.Kind(strings.TrimSpace(k))
	}
	maxRetries := resilience.DefaultRetryPolicy().MaxRetries()
	if c.Retry.MaxRetries != nil {
		maxRetries = *c.Retry.MaxRetries
	}
	return resilience.NewRetryPolicy(maxRetries, c.Retry.BaseDelay, c.Retry.MaxDelay, c.Retry.Multiplier, kinds...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return l, nil
}
