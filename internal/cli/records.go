package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/delta"
	"github.com/ledgerlink/pairsync/internal/logging"
)

// NewRecordsCommand creates the records command group operating on the demo
// ledger: put, rm and ls. Every edit lands in the change history and reaches
// peers on the next sync.
func NewRecordsCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Edit and list local records",
	}
	cmd.AddCommand(newRecordsPutCommand(cfg, log))
	cmd.AddCommand(newRecordsRmCommand(cfg, log))
	cmd.AddCommand(newRecordsLsCommand(cfg, log))
	return cmd
}

func newRecordsPutCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	var idKey string

	cmd := &cobra.Command{
		Use:   "put <entity> <identity> <fields-json>",
		Short: "Insert or update a record",
		Long: `Insert or update a record, e.g.:

  pairsync records put Invoice 2026-03-02T09:00:00Z '{"number":"INV-1","total":99.5}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields map[string]any
			if err := json.Unmarshal([]byte(args[2]), &fields); err != nil {
				return fmt.Errorf("parsing fields: %w", err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			id := delta.Identity{Key: idKey, Value: args[1]}
			if err := a.history.Put(ctx, args[0], id, fields, time.Now().UTC()); err != nil {
				return err
			}
			fmt.Printf("stored %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&idKey, "key", "issuedAt", "identity attribute name")
	return cmd
}

func newRecordsRmCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	var idKey string

	cmd := &cobra.Command{
		Use:   "rm <entity> <identity>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			id := delta.Identity{Key: idKey, Value: args[1]}
			if err := a.history.Drop(ctx, args[0], id, time.Now().UTC()); err != nil {
				return err
			}
			fmt.Printf("deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&idKey, "key", "issuedAt", "identity attribute name")
	return cmd
}

func newRecordsLsCommand(cfg *config.Config, log func() logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <entity>",
		Short: "List records of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log())
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.history.List(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no records")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tMODIFIED\tFIELDS")
			for _, r := range records {
				raw, _ := json.Marshal(r.Fields)
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					r.Identity.Value, r.ModifiedAt.Local().Format("2006-01-02 15:04:05"), raw)
			}
			return w.Flush()
		},
	}
	return cmd
}
