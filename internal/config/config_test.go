package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate.
func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.PrivateKey = "deadbeef"
	cfg.Contracts.DepositAsset = "0x1111111111111111111111111111111111111111"
	cfg.Contracts.LockedAsset = "0x2222222222222222222222222222222222222222"
	cfg.Contracts.PositionToken = "0x3333333333333333333333333333333333333333"
	cfg.Vault.AdminAddress = "0x4444444444444444444444444444444444444444"
	cfg.Server.AdminAPIKey = "secret"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 90*24*time.Hour, cfg.Vault.PositionTTL.Duration)
	assert.Equal(t, time.Minute, cfg.Vault.RemediationInterval.Duration)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.RateLimitPerMin)
	assert.Equal(t, "0 3 1 * *", cfg.Archive.Schedule)
	assert.False(t, cfg.Archive.Enabled)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	cfg.Chain.RPCURL = ""
	cfg.Vault.AdminAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "admin_address")
}

func TestValidateRequiresSigningKey(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.PrivateKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	// An encrypted keystore needs its password.
	cfg.Chain.EncryptedKeyPath = "/keys/vault.json"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")

	cfg.Chain.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestValidateContracts(t *testing.T) {
	cfg := validConfig()
	cfg.Contracts.DepositAsset = ""
	cfg.Contracts.PositionToken = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deposit_asset")
	assert.Contains(t, err.Error(), "position_token")

	// Venue and bridge stay optional; they can be installed at runtime.
	cfg = validConfig()
	cfg.Contracts.VenueRouter = ""
	cfg.Contracts.Bridge = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateS3OnlyWhenArchiveEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate(), "s3 settings are not required while archival is off")

	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint")
	assert.Contains(t, err.Error(), "s3: bucket")

	cfg = validConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Schedule = "  "
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: schedule")
}

func TestValidateServerGates(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AdminAPIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_api_key")

	// Disabling the server lifts the API-key requirement.
	cfg.Server.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.RateLimitPerMin = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_per_min")
}

func TestValidatePostgresDSNBypassesHostChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	err := cfg.Validate()
	require.Error(t, err)

	cfg.Postgres.DSN = "postgres://user:pass@db:5432/gasvault"
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte(`
mode = "full"
log_level = "debug"

[vault]
admin_address = "0xadmin"
position_ttl = "720h"

[server]
port = 9090
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xadmin", cfg.Vault.AdminAddress)
	assert.Equal(t, 720*time.Hour, cfg.Vault.PositionTTL.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Vault.RemediationInterval.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GASVAULT_MODE", "remediate")
	t.Setenv("GASVAULT_CHAIN_PRIVATE_KEY", "cafe")
	t.Setenv("GASVAULT_SERVER_RATE_LIMIT_PER_MIN", "30")
	t.Setenv("GASVAULT_VAULT_POSITION_TTL", "48h")
	t.Setenv("GASVAULT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GASVAULT_ARCHIVE_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "remediate", cfg.Mode)
	assert.Equal(t, "cafe", cfg.Chain.PrivateKey)
	assert.Equal(t, 30, cfg.Server.RateLimitPerMin)
	assert.Equal(t, 48*time.Hour, cfg.Vault.PositionTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Archive.Enabled)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("GASVAULT_SERVER_PORT", "not-a-number")
	t.Setenv("GASVAULT_VAULT_POSITION_TTL", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 90*24*time.Hour, cfg.Vault.PositionTTL.Duration)
}
