package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewStatusCommand creates the status command: show the local identity and
// current engine state.
func NewStatusCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local identity and engine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			local, err := a.identity.Local()
			if err != nil {
				return err
			}

			fmt.Printf("device name:  %s\n", cfg.DeviceName)
			fmt.Printf("peer id:      %s\n", local.PeerID)
			fmt.Printf("fingerprint:  %s\n", local.Fingerprint)
			fmt.Printf("service type: %s\n", cfg.ServiceType)
			fmt.Printf("data dir:     %s\n", cfg.DataDir)

			peers, err := a.trust.All()
			if err != nil {
				return err
			}
			fmt.Printf("trusted peers: %d\n", len(peers))
			return nil
		},
	}
	return cmd
}
