package config

import (
	"flag"
	"os"
	"time"

	"github.com/ledgerlink/pairsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   device name advertised to peers
//	-l string   TCP listen address (host:port, port 0 = auto)
//	-d string   data directory
//	-t int      reconnect/browse timeout in seconds
//	-approve    require one-shot approval for incoming sync requests
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-l", "-d", "-t", "-approve"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name advertised to peers")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "tcp listen address")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	reconnectTimeout := fs.Int("t", int(cfg.ReconnectTimeout.Seconds()), "reconnect timeout (in seconds)")
	fs.BoolVar(&cfg.RequireSyncApproval, "approve", cfg.RequireSyncApproval, "require approval for incoming sync")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ReconnectTimeout = time.Duration(*reconnectTimeout) * time.Second
}
