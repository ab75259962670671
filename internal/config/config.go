package config

import (
	"os"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
)

// Config holds runtime settings for the pairsync engine and CLI.
//
// Fields:
//   - DeviceName: human-readable name advertised to peers (defaults to hostname).
//   - ListenAddr: TCP listen address for inbound peer connections; port 0
//     picks a free port, which is then advertised via discovery.
//   - ServiceType: mDNS service type shared by provider and scanner.
//   - DataDir: directory for the key-value database and the secure store file.
//   - PairingLifetime: how long a pairing payload/session stays valid.
//   - ReconnectTimeout: how long discovery browsing runs before self-cancelling.
//   - RequireSyncApproval: when true, unsolicited incoming sync requests need
//     a one-shot user approval before a response is sent.
type Config struct {
	DeviceName          string
	ListenAddr          string
	ServiceType         string
	DataDir             string
	PairingLifetime     time.Duration
	ReconnectTimeout    time.Duration
	RequireSyncApproval bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "pairsync-device"
	}
	c.DeviceName = name
	c.ListenAddr = ":0"
	c.ServiceType = common.DefaultServiceType
	c.DataDir = defaultDataDir()
	c.PairingLifetime = 120 * time.Second
	c.ReconnectTimeout = 8 * time.Second
	c.RequireSyncApproval = false
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pairsync"
	}
	return home + string(os.PathSeparator) + ".pairsync"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
