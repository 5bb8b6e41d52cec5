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

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerEndpointAddr)
	assert.Equal(t, "cellar.db", c.DatabasePath)
	assert.Equal(t, "cellar-photos", c.PhotoBucket)
	assert.Equal(t, 15*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"cmd"}
	t.Cleanup(func() { os.Args = oldArgs })

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerEndpointAddr)
	assert.Equal(t, 15*time.Second, cfg.OnlineCheckInterval)
}

func TestParseEnv_OverlaysDefaults(t *testing.T) {
	t.Setenv("CELLAR_SERVER_ADDR", "https://cellar.example.com")
	t.Setenv("CELLAR_API_TOKEN", "tok-1")
	t.Setenv("CELLAR_ONLINE_CHECK_INTERVAL", "30s")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "https://cellar.example.com", c.ServerEndpointAddr)
	assert.Equal(t, "tok-1", c.APIToken)
	assert.Equal(t, 30*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, "cellar.db", c.DatabasePath, "unset variables leave defaults alone")
}

func TestParseEnv_IgnoresMalformedDuration(t *testing.T) {
	t.Setenv("CELLAR_REQUEST_TIMEOUT", "not a duration")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, 10*time.Second, c.RequestTimeout)
}
