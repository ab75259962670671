package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.NotEmpty(t, cfg.DeviceName)
	assert.Equal(t, ":0", cfg.ListenAddr)
	assert.Equal(t, common.DefaultServiceType, cfg.ServiceType)
	assert.Equal(t, 120*time.Second, cfg.PairingLifetime)
	assert.Equal(t, 8*time.Second, cfg.ReconnectTimeout)
	assert.False(t, cfg.RequireSyncApproval)
}

func TestParseJson_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	data := `{
		"device_name": "office-mac",
		"reconnect_timeout": "15s",
		"require_sync_approval": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, "office-mac", cfg.DeviceName)
	assert.Equal(t, 15*time.Second, cfg.ReconnectTimeout)
	assert.True(t, cfg.RequireSyncApproval)
	// Untouched fields keep their defaults.
	assert.Equal(t, common.DefaultServiceType, cfg.ServiceType)
}

func TestParseFlags_Overlay(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test", "-n", "kitchen-ipad", "-t", "20"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "kitchen-ipad", cfg.DeviceName)
	assert.Equal(t, 20*time.Second, cfg.ReconnectTimeout)
}
