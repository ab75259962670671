package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/coordinator"
	"github.com/ledgerlink/pairsync/internal/logging"
	"github.com/ledgerlink/pairsync/internal/store/checkpoint"
)

// NewSyncCommand creates the sync command: reconnect to a trusted peer and
// pull its changes once.
func NewSyncCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [peer]",
		Short: "Sync once with a trusted peer",
		Long: `Find a previously paired peer on the network, pull its changes since the
last checkpoint and apply them locally. The optional argument is a peer id
or device name; with a single trusted peer it can be omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var peerID string
			if len(args) == 1 {
				peerID = args[0]
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			done := make(chan struct{}, 1)
			a.coord.Subscribe(func(e coordinator.Event) {
				if sa, ok := e.(coordinator.SyncActivity); ok {
					if !sa.Active && sa.Direction == checkpoint.DirectionOutgoing {
						select {
						case done <- struct{}{}:
						default:
						}
					}
				}
			})

			if err := a.coord.ReconnectToTrustedPeer(ctx); err != nil {
				return err
			}
			if err := a.coord.SyncNow(ctx, peerID); err != nil {
				return err
			}

			select {
			case <-done:
				fmt.Println("sync finished")
				return nil
			case <-time.After(cfg.ReconnectTimeout):
				return fmt.Errorf("sync did not finish in time (is the peer awaiting approval?)")
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	return cmd
}
