// Package cli wires the sync engine into a cobra command tree. The CLI is a
// reference host for the engine: it keeps a demo invoice ledger in the local
// sync database and exposes pairing and sync as subcommands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/coordinator"
	"github.com/ledgerlink/pairsync/internal/delta"
	"github.com/ledgerlink/pairsync/internal/history"
	"github.com/ledgerlink/pairsync/internal/logging"
	"github.com/ledgerlink/pairsync/internal/securestore"
	"github.com/ledgerlink/pairsync/internal/store/checkpoint"
	"github.com/ledgerlink/pairsync/internal/store/identity"
	"github.com/ledgerlink/pairsync/internal/store/stats"
	"github.com/ledgerlink/pairsync/internal/store/trust"
	"github.com/ledgerlink/pairsync/internal/transport"

	_ "modernc.org/sqlite"
)

// passphraseEnv lets scripts provide the secure-store passphrase without a
// terminal prompt.
const passphraseEnv = "PAIRSYNC_PASSPHRASE"

// demoSchema is the entity schema the CLI syncs. Embedding applications
// provide their own.
var demoSchema = map[string][]string{
	"Invoice":  {"number", "customer", "total", "currency"},
	"Customer": {"name", "email"},
}

// app holds the wired engine for the lifetime of one command.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	db       *sql.DB
	history  *history.SQLiteProvider
	identity *identity.Manager
	trust    *trust.Store
	stats    stats.Store
	coord    *coordinator.Coordinator
}

// openApp builds the full engine stack: secure store, sync database,
// discovery and coordinator.
func openApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	passphrase, err := readPassphrase()
	if err != nil {
		return nil, err
	}
	secure, err := securestore.OpenFile(filepath.Join(cfg.DataDir, "secure.bin"), passphrase)
	if err != nil {
		return nil, err
	}

	db, err := history.OpenDatabase(ctx, filepath.Join(cfg.DataDir, "sync.db"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		history:  history.NewSQLiteProvider(db, demoSchema),
		identity: identity.NewManager(secure),
		trust:    trust.NewStore(secure),
		stats:    stats.NewSQLiteStore(db),
	}

	a.coord, err = coordinator.New(coordinator.Deps{
		Config:      cfg,
		Logger:      log,
		Discovery:   transport.NewZeroconfDiscovery(cfg.ServiceType, log),
		Identity:    a.identity,
		Trust:       a.trust,
		Checkpoints: checkpoint.NewSQLiteStore(db),
		Stats:       a.stats,
		Engine:      delta.NewEngine(a.history),
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	a.coord.Stop()
	_ = a.db.Close()
}

// readPassphrase takes the secure-store passphrase from the environment or
// prompts for it on the terminal.
func readPassphrase() ([]byte, error) {
	if v := os.Getenv(passphraseEnv); v != "" {
		return []byte(v), nil
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return passphrase, nil
}
