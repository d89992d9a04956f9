package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOKENGATE"

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// Path is the YAML config file. Empty means defaults and environment
	// only.
	Path string

	// EnvFiles are loaded into the environment before anything else.
	// Missing files are skipped. Variables already set win.
	// Default: .env
	EnvFiles []string
}

// Load reads, expands, decodes and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFiles == nil {
		opts.EnvFiles = []string{".env"}
	}
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.Path, err)
		}
		expanded, err := ExpandEnvStrict(string(raw))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", opts.Path, err)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", opts.Path, err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.Keepa.APIKey == "" {
		cfg.Keepa.APIKey = os.Getenv("KEEPA_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("keepa.api_key", "")
	v.SetDefault("keepa.base_url", "https://api.keepa.com")
	v.SetDefault("keepa.domain", "DE")

	v.SetDefault("budget.capacity", 200)
	v.SetDefault("budget.window", time.Minute)
	v.SetDefault("budget.max_wait", 120*time.Second)
	v.SetDefault("budget.poll_interval", 5*time.Second)
	v.SetDefault("budget.seed", true)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_backoff", 2*time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("retry.per_attempt_timeout", 60*time.Second)

	v.SetDefault("pacer.enabled", false)
	v.SetDefault("pacer.rate", 5.0)
	v.SetDefault("pacer.burst", 1)
	v.SetDefault("pacer.max_wait", 10*time.Second)

	v.SetDefault("bulkhead.max_concurrent", 4)
	v.SetDefault("bulkhead.max_wait", 30*time.Second)

	v.SetDefault("circuit.enabled", true)
	v.SetDefault("circuit.max_failures", 5)
	v.SetDefault("circuit.reset_timeout", 30*time.Second)
	v.SetDefault("circuit.half_open_max_requests", 1)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.max_ttl", time.Hour)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "tokengate:")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.api_key_header", "X-API-Key")
	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")

	v.SetDefault("health.low_watermark", 0.1)
	v.SetDefault("health.auth_failure_window", 15*time.Minute)

	v.SetDefault("observe.service_name", "tokengate")
	v.SetDefault("observe.version", "dev")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.metrics.enabled", true)
	v.SetDefault("observe.metrics.exporter", "prometheus")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")
	v.SetDefault("observe.logging.format", "json")
}
