package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "verbose"
	cfg.Wallet.KeyFile = "/tmp/key.json"
	cfg.Redis.Addr = ""
	cfg.Funding.LockTTL = duration{time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "verbose"`,
		"wallet: key_password is required",
		"redis: addr must not be empty",
		"funding: lock_ttl",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateArchiveMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Chain.RPCURL = ""
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
	assert.NotContains(t, err.Error(), "chain: rpc_url")
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketfund.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[chain]
rpc_url = "http://localhost:8545"
chain_id = 1337

[funding]
action_timeout = "90s"
lock_ttl = "2m"

[features]
comments = true
`), 0o600))

	t.Setenv("MARKETFUND_SERVER_PORT", "9100")
	t.Setenv("MARKETFUND_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MARKETFUND_CHAIN_SIMULATED", "true")
	t.Setenv("MARKETFUND_REDIS_DB", "not-a-number")
	t.Setenv("MARKETFUND_REDIS_KEY_PREFIX", "mf-staging")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, 1337, cfg.Chain.ChainID)
	assert.True(t, cfg.Chain.Simulated)
	assert.Equal(t, 90*time.Second, cfg.Funding.ActionTimeout.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Funding.SessionTTL.Duration, "default survives")
	assert.True(t, cfg.Features.Comments)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0, cfg.Redis.DB, "malformed override is ignored")
	assert.Equal(t, "mf-staging", cfg.Redis.KeyPrefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[funding]\naction_timeout = \"soon\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Server.AuthToken = "token"
	cfg.Postgres.DSN = "postgres://u:p@h/db"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Server.AuthToken)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Empty(t, out.Wallet.KeyPassword, "empty values stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
