package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"accountsync-server"}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseJson_Full(t *testing.T) {
	withArgs(t, "-config", writeFile(t, `{
		"endpoint_addr_grpc": "directory.internal:9000",
		"database_dsn": "memory",
		"secret_key": "jwt-key",
		"require_token": true,
		"access_token_validity_duration": "90m",
		"log_level": "debug",
		"otel_endpoint": "http://otel:4318"
	}`))

	var cfg Config
	parseJson(&cfg)

	assert.Equal(t, Config{
		EndpointAddrGRPC:            "directory.internal:9000",
		DatabaseDSN:                 MemoryDSN,
		SecretKey:                   "jwt-key",
		RequireToken:                true,
		AccessTokenValidityDuration: 90 * time.Minute,
		LogLevel:                    "debug",
		OTelEndpoint:                "http://otel:4318",
	}, cfg)
}

func TestParseJson_PartialKeepsEarlierValues(t *testing.T) {
	withArgs(t, "-c", writeFile(t, `{"secret_key": "k2", "require_token": false}`))

	cfg := Config{}
	cfg.LoadDefaults()
	cfg.RequireToken = true
	parseJson(&cfg)

	assert.Equal(t, "k2", cfg.SecretKey)
	assert.False(t, cfg.RequireToken, "explicit false overrides")
	assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenValidityDuration)
}

func TestParseJson_NoFlag(t *testing.T) {
	withArgs(t, "token", "alice")

	cfg := Config{DatabaseDSN: "postgres://db/accounts", SecretKey: "key"}
	parseJson(&cfg)

	assert.Equal(t, Config{DatabaseDSN: "postgres://db/accounts", SecretKey: "key"}, cfg)
}

func TestParseJson_Panics(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		withArgs(t, "-c", filepath.Join(t.TempDir(), "absent.json"))
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
	t.Run("invalid json", func(t *testing.T) {
		withArgs(t, "-c", writeFile(t, `{ not json`))
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
