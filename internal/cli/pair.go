package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/coordinator"
	"github.com/ledgerlink/pairsync/internal/logging"
	"github.com/ledgerlink/pairsync/internal/pairing"
)

// NewPairCommand creates the pair command: decode a scanned payload, find
// the provider on the LAN and complete the handshake.
func NewPairCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair <payload>",
		Short: "Pair with a device showing a QR code",
		Long: `Pair with a hosting device. The argument is the base64 payload encoded in
the QR code the other device is showing (copy it from its terminal, or feed
the output of a QR scanner). Use "-" to read the payload from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded := args[0]
			if encoded == "-" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading payload from stdin: %w", err)
				}
				encoded = strings.TrimSpace(line)
			}
			payload, err := pairing.Decode(encoded)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			paired := make(chan coordinator.PeerConnected, 1)
			a.coord.Subscribe(func(e coordinator.Event) {
				if pc, ok := e.(coordinator.PeerConnected); ok {
					select {
					case paired <- pc:
					default:
					}
				}
			})

			if err := a.coord.PairWithPeer(ctx, payload); err != nil {
				return err
			}

			select {
			case pc := <-paired:
				fmt.Printf("paired with %s (%s)\n", pc.DeviceName, pc.PeerID)
				return nil
			case <-time.After(time.Until(payload.ExpiresAt)):
				return fmt.Errorf("pairing did not complete before the payload expired")
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	return cmd
}
