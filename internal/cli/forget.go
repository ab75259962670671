package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewForgetCommand creates the forget command: drop all trust records,
// checkpoints and transfer stats. Local records and identity are kept.
func NewForgetCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Forget all paired peers and their sync state",
		Long: `Remove every trust record, sync checkpoint and transfer statistic. Peers
will need to pair again. Local records and the device identity survive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to forget without --yes")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.coord.ForgetAllPeerSyncData(ctx); err != nil {
				return err
			}
			fmt.Println("all peer sync data forgotten")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the operation")
	return cmd
}
