package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/keepa"
	"github.com/jonwraymond/tokengate/observe"
)

// Config is the complete tokengate configuration.
type Config struct {
	Keepa      KeepaConfig          `mapstructure:"keepa"`
	Budget     BudgetConfig         `mapstructure:"budget"`
	Retry      RetryConfig          `mapstructure:"retry"`
	Pacer      PacerConfig          `mapstructure:"pacer"`
	Bulkhead   BulkheadConfig       `mapstructure:"bulkhead"`
	Circuit    CircuitConfig        `mapstructure:"circuit"`
	Operations []governor.Operation `mapstructure:"operations"`
	Cache      CacheConfig          `mapstructure:"cache"`
	Server     ServerConfig         `mapstructure:"server"`
	Auth       AuthConfig           `mapstructure:"auth"`
	Health     HealthConfig         `mapstructure:"health"`
	Observe    observe.Config       `mapstructure:"observe"`
}

// KeepaConfig selects the upstream account.
type KeepaConfig struct {
	// APIKey falls back to the KEEPA_API_KEY environment variable.
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`

	// Domain is the default marketplace code, e.g. DE or US.
	Domain string `mapstructure:"domain"`
}

// BudgetConfig describes the token bucket.
type BudgetConfig struct {
	Capacity     int           `mapstructure:"capacity"`
	Window       time.Duration `mapstructure:"window"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Seed asks upstream for the live balance at startup.
	Seed bool `mapstructure:"seed"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	Multiplier        float64       `mapstructure:"multiplier"`
	Jitter            bool          `mapstructure:"jitter"`
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

type PacerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rate    float64       `mapstructure:"rate"`
	Burst   int           `mapstructure:"burst"`
	MaxWait time.Duration `mapstructure:"max_wait"`
}

type BulkheadConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
}

type CircuitConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxFailures         int           `mapstructure:"max_failures"`
	ResetTimeout        time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMaxRequests int           `mapstructure:"half_open_max_requests"`
}

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type CacheConfig struct {
	Backend    string            `mapstructure:"backend"`
	DefaultTTL time.Duration     `mapstructure:"default_ttl"`
	MaxTTL     time.Duration     `mapstructure:"max_ttl"`
	Redis      cache.RedisConfig `mapstructure:"redis"`
}

// Policy returns the cache policy.
func (c CacheConfig) Policy() cache.Policy {
	return cache.Policy{DefaultTTL: c.DefaultTTL, MaxTTL: c.MaxTTL}
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig protects the operator endpoints. With no keys and no JWT
// secret those endpoints reject every request.
type AuthConfig struct {
	APIKeyHeader string         `mapstructure:"api_key_header"`
	APIKeys      []auth.APIKey  `mapstructure:"api_keys"`
	JWT          auth.JWTConfig `mapstructure:"jwt"`
}

// Authenticators builds the configured authenticators.
func (c AuthConfig) Authenticators() []auth.Authenticator {
	var out []auth.Authenticator
	if len(c.APIKeys) > 0 {
		out = append(out, auth.NewAPIKeyAuthenticator(c.APIKeyHeader, c.APIKeys))
	}
	if c.JWT.Secret != "" {
		out = append(out, auth.NewJWTAuthenticator(c.JWT))
	}
	return out
}

type HealthConfig struct {
	LowWatermark      float64       `mapstructure:"low_watermark"`
	AuthFailureWindow time.Duration `mapstructure:"auth_failure_window"`
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Keepa.APIKey) == "" {
		return fmt.Errorf("%w: keepa.api_key is required (or set KEEPA_API_KEY)", ErrInvalid)
	}
	if _, err := keepa.ParseDomain(c.Keepa.Domain); err != nil {
		return fmt.Errorf("%w: keepa.domain: %w", ErrInvalid, err)
	}
	if c.Budget.Capacity <= 0 {
		return fmt.Errorf("%w: budget.capacity must be positive", ErrInvalid)
	}
	if c.Budget.Window <= 0 {
		return fmt.Errorf("%w: budget.window must be positive", ErrInvalid)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalid)
	}
	if c.Pacer.Enabled && c.Pacer.Rate <= 0 {
		return fmt.Errorf("%w: pacer.rate must be positive", ErrInvalid)
	}
	if !slices.Contains([]string{CacheNone, CacheMemory, CacheRedis}, c.Cache.Backend) {
		return fmt.Errorf("%w: cache.backend %q", ErrInvalid, c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("%w: cache.redis.addr is required for the redis backend", ErrInvalid)
	}
	if c.Health.LowWatermark < 0 || c.Health.LowWatermark >= 1 {
		return fmt.Errorf("%w: health.low_watermark must be in [0, 1)", ErrInvalid)
	}
	for i, k := range c.Auth.APIKeys {
		if k.Name == "" || len(k.Hash) != 64 {
			return fmt.Errorf("%w: auth.api_keys[%d] needs a name and a sha256 hex hash", ErrInvalid, i)
		}
	}
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: observe: %w", ErrInvalid, err)
	}

	gc := c.Governor()
	if err := gc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Domain returns the parsed default marketplace.
func (c *Config) Domain() keepa.Domain {
	d, err := keepa.ParseDomain(c.Keepa.Domain)
	if err != nil {
		return keepa.DomainDE
	}
	return d
}
