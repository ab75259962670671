package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/coordinator"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewHostCommand creates the host command: advertise on the LAN, render a
// pairing QR code and serve peers until interrupted.
func NewHostCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	var noQR bool

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Advertise this device and display a pairing QR code",
		Long: `Start hosting: listen for peer connections, advertise the service over
mDNS and display a pairing payload as a QR code. The payload is single-use
and expires; restart the command to issue a fresh one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			a.coord.Subscribe(func(e coordinator.Event) {
				switch ev := e.(type) {
				case coordinator.PeerConnected:
					fmt.Printf("peer connected: %s (%s)\n", ev.DeviceName, ev.PeerID)
				case coordinator.SyncActivity:
					if !ev.Active {
						fmt.Printf("sync with %s finished\n", ev.PeerID)
					}
				case coordinator.SyncApprovalRequested:
					fmt.Printf("sync request from %s (%s) — approve? [y/N] ", ev.DeviceName, ev.PeerID)
					go promptApproval(a.coord, ev.PeerID)
				}
			})

			if err := a.coord.StartHosting(ctx); err != nil {
				return err
			}

			payload, err := a.coord.CreatePairingPayload()
			if err != nil {
				return err
			}
			encoded, err := payload.Encode()
			if err != nil {
				return err
			}

			if noQR {
				fmt.Println(encoded)
			} else {
				q, err := qrcode.New(encoded, qrcode.Medium)
				if err != nil {
					return fmt.Errorf("rendering qr code: %w", err)
				}
				fmt.Print(q.ToSmallString(false))
				fmt.Printf("payload (for --payload pairing): %s\n", encoded)
			}
			fmt.Printf("hosting as %q until %s; ctrl-c to stop\n",
				cfg.DeviceName, payload.ExpiresAt.Local().Format("15:04:05"))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-stop:
			case <-ctx.Done():
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noQR, "no-qr", false, "print the raw payload instead of a QR code")
	return cmd
}

func promptApproval(c *coordinator.Coordinator, peerID string) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return
	}
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		c.ApproveIncomingSync(peerID)
		fmt.Println("approved; ask the peer to sync again")
	}
}
