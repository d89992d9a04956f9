package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/keepa"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func load(t *testing.T, path string) (*Config, error) {
	t.Helper()
	return Load(LoadOptions{Path: path, EnvFiles: []string{}})
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KEEPA_API_KEY", "from-env")

	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Keepa.APIKey)
	assert.Equal(t, keepa.DomainDE, cfg.Domain())
	assert.Equal(t, 200, cfg.Budget.Capacity)
	assert.Equal(t, time.Minute, cfg.Budget.Window)
	assert.Equal(t, 120*time.Second, cfg.Budget.MaxWait)
	assert.True(t, cfg.Budget.Seed)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseBackoff)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.1, cfg.Health.LowWatermark)
	assert.Equal(t, "tokengate", cfg.Observe.ServiceName)
	assert.Empty(t, cfg.Auth.Authenticators())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_KEEPA_KEY", "file-key")
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	path := writeFile(t, "tokengate.yaml", `
keepa:
  api_key: ${TEST_KEEPA_KEY}
  domain: us
budget:
  capacity: 1200
  window: 1m
  max_wait: 45s
retry:
  max_attempts: 5
  per_attempt_timeout: 20s
pacer:
  enabled: true
  rate: 2
circuit:
  enabled: false
operations:
  - name: product
    timeout: 90s
  - name: graphimage
    cost: 1
    path: /graphimage
auth:
  api_keys:
    - name: ops
      hash: "`+auth.HashAPIKey("ops-key")+`"
      roles: [operator]
  jwt:
    secret: ${TEST_JWT_SECRET}
    issuer: tokengate
`)

	cfg, err := load(t, path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Keepa.APIKey)
	assert.Equal(t, keepa.DomainUS, cfg.Domain())
	assert.Equal(t, 1200, cfg.Budget.Capacity)
	assert.Equal(t, 45*time.Second, cfg.Budget.MaxWait)
	assert.Equal(t, "s3cret", cfg.Auth.JWT.Secret)
	require.Len(t, cfg.Auth.APIKeys, 1)
	assert.Equal(t, []string{"operator"}, cfg.Auth.APIKeys[0].Roles)
	assert.Len(t, cfg.Auth.Authenticators(), 2)

	gc := cfg.Governor()
	assert.Equal(t, 1200, gc.Bucket.Capacity)
	assert.Equal(t, 5, gc.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, gc.Retry.PerAttemptTimeout)
	require.NotNil(t, gc.Pacer)
	assert.Equal(t, 2.0, gc.Pacer.Rate)
	assert.Nil(t, gc.CircuitBreaker)

	ops := map[string]int{}
	for i, op := range gc.Operations {
		ops[op.Name] = i
	}
	product := gc.Operations[ops[keepa.OpProduct]]
	assert.Equal(t, 90*time.Second, product.Timeout)
	assert.Equal(t, keepa.CostProduct, product.Cost, "override keeps unset fields")
	assert.True(t, product.Cache)
	require.Contains(t, ops, "graphimage")
	assert.Equal(t, "/graphimage", gc.Operations[ops["graphimage"]].Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "tokengate.yaml", "keepa:\n  api_key: k\nbudget:\n  capacity: 300\n")
	t.Setenv("TOKENGATE_BUDGET_CAPACITY", "60")
	t.Setenv("TOKENGATE_BUDGET_MAX_WAIT", "3s")

	cfg, err := load(t, path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Budget.Capacity)
	assert.Equal(t, 3*time.Second, cfg.Budget.MaxWait)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "TOKENGATE_KEEPA_API_KEY=dotenv-key\n")
	t.Cleanup(func() { _ = os.Unsetenv("TOKENGATE_KEEPA_API_KEY") })

	cfg, err := Load(LoadOptions{EnvFiles: []string{envFile, filepath.Join(t.TempDir(), "missing.env")}})
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Keepa.APIKey)
}

func TestLoad_MissingEnvReference(t *testing.T) {
	path := writeFile(t, "tokengate.yaml", "keepa:\n  api_key: ${TOKENGATE_TEST_UNSET_VAR}\n")

	_, err := load(t, path)
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "TOKENGATE_TEST_UNSET_VAR")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(t, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("KEEPA_API_KEY", "k")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.Keepa.APIKey = " " }},
		{"bad domain", func(c *Config) { c.Keepa.Domain = "XX" }},
		{"zero capacity", func(c *Config) { c.Budget.Capacity = 0 }},
		{"zero window", func(c *Config) { c.Budget.Window = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"pacer without rate", func(c *Config) { c.Pacer = PacerConfig{Enabled: true} }},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = CacheRedis }},
		{"watermark", func(c *Config) { c.Health.LowWatermark = 1 }},
		{"short key hash", func(c *Config) { c.Auth.APIKeys = []auth.APIKey{{Name: "x", Hash: "abc"}} }},
		{"bad log level", func(c *Config) { c.Observe.Logging.Level = "loud" }},
		{"negative op cost", func(c *Config) { c.Operations = []governor.Operation{{Name: "x", Cost: -1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(t, "")
			require.NoError(t, err)
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, closeFn, err := CacheConfig{Backend: CacheNone}.OpenCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, closeFn())

	c, closeFn, err = CacheConfig{Backend: CacheMemory}.OpenCache(ctx)
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.NoError(t, closeFn())

	_, _, err = CacheConfig{Backend: CacheRedis}.OpenCache(ctx)
	assert.Error(t, err)
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("TG_A", "alpha")

	got, err := ExpandEnvStrict("x=${TG_A} y=$TG_A cost=$$5")
	require.NoError(t, err)
	assert.Equal(t, "x=alpha y=alpha cost=$5", got)

	_, err = ExpandEnvStrict("${TG_MISSING_B} ${TG_MISSING_A} ${TG_MISSING_B}")
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "TG_MISSING_A, TG_MISSING_B")
}
