package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewPeersCommand creates the peers command: list trusted peers with their
// sync history and transfer totals.
func NewPeersCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List trusted peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			peers, err := a.trust.All()
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Println("no trusted peers; pair first")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tPEER ID\tPAIRED\tLAST SYNC\tBYTES")
			for _, p := range peers {
				lastSync := "never"
				if p.LastSyncAt != nil {
					lastSync = p.LastSyncAt.Local().Format("2006-01-02 15:04")
				}
				var bytes int64
				if st, err := a.stats.Get(ctx, p.PeerID); err == nil && st != nil {
					bytes = st.TotalSyncedBytes
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					p.DeviceName, p.PeerID, p.PairedAt.Local().Format("2006-01-02"), lastSync, bytes)
			}
			return w.Flush()
		},
	}
	return cmd
}
