package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, "accountsync.db", c.DatabasePath)
	assert.Equal(t, ProbePing, c.ReachabilityProbe)
	assert.Equal(t, 2*time.Second, c.PingTimeout)
	assert.Equal(t, 10*time.Second, c.StatusInterval)
	assert.Equal(t, 5*time.Second, c.GatewayTimeout)
	assert.Equal(t, "sqlite", c.KeystoreDriver)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.True(t, c.AllowGoogleWithoutPassword)
	assert.False(t, c.AutoLogin)
	assert.False(t, c.PreferOffline)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_endpoint_addr": "json:1",
		"database_path":        "json.db",
		"gateway_timeout":      "9s",
	})
	t.Setenv("ACCOUNTSYNC_SERVER_ADDR", "env:2")
	t.Setenv("ACCOUNTSYNC_KEYSTORE", "redis")
	os.Args = []string{"testbin", "-c", path, "-a", "flag:3"}

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "flag:3", cfg.ServerEndpointAddr, "flags beat env")
	assert.Equal(t, "redis", cfg.KeystoreDriver, "env beats defaults")
	assert.Equal(t, "json.db", cfg.DatabasePath, "json beats defaults")
	assert.Equal(t, 9*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 2*time.Second, cfg.PingTimeout, "untouched default")
}

func TestLoadConfig_UsesDefaultsWithoutSources(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, cfg)
}
