package cli

import (
	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewRootCommand builds the pairsync command tree. Engine settings come from
// the config package (defaults, JSON file, -n/-l/-d/-t/-approve flags);
// unknown flags are whitelisted so both flag sets coexist.
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "pairsync",
		Short: "LAN peer synchronization",
		Long: `pairsync pairs devices over the local network with a QR bootstrap and
keeps their records in sync with last-write-wins deltas. No cloud, no
accounts: peers find each other with mDNS and talk directly over TCP.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cfg := config.LoadConfig()
	log := func() logging.Logger { return newLogger(verbose) }

	cmd.AddCommand(NewHostCommand(cfg, log))
	cmd.AddCommand(NewPairCommand(cfg, log))
	cmd.AddCommand(NewSyncCommand(cfg, log))
	cmd.AddCommand(NewPeersCommand(cfg, log))
	cmd.AddCommand(NewStatusCommand(cfg, log))
	cmd.AddCommand(NewForgetCommand(cfg, log))
	cmd.AddCommand(NewRecordsCommand(cfg, log))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
