package config

import (
	"encoding/json"
	"os"

	"github.com/ledgerlink/pairsync/internal/flagx"
	"github.com/ledgerlink/pairsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "8s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	DeviceName          string         `json:"device_name"`
	ListenAddr          string         `json:"listen_addr"`
	ServiceType         string         `json:"service_type"`
	DataDir             string         `json:"data_dir"`
	PairingLifetime     timex.Duration `json:"pairing_lifetime"`
	ReconnectTimeout    timex.Duration `json:"reconnect_timeout"`
	RequireSyncApproval *bool          `json:"require_sync_approval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the JSON override defaults. Panics on read or
// unmarshal errors (caller should recover if desired). Intended usage is:
// defaults -> parseJson -> parseFlags, where later stages override earlier
// ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DeviceName != "" {
		cfg.DeviceName = jc.DeviceName
	}
	if jc.ListenAddr != "" {
		cfg.ListenAddr = jc.ListenAddr
	}
	if jc.ServiceType != "" {
		cfg.ServiceType = jc.ServiceType
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.PairingLifetime.Duration > 0 {
		cfg.PairingLifetime = jc.PairingLifetime.Duration
	}
	if jc.ReconnectTimeout.Duration > 0 {
		cfg.ReconnectTimeout = jc.ReconnectTimeout.Duration
	}
	if jc.RequireSyncApproval != nil {
		cfg.RequireSyncApproval = *jc.RequireSyncApproval
	}
}
