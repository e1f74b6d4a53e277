// sasanactl is the back-office tool for the sasana registry: schema
// migration, sequence and counter maintenance, tombstone back-fill, and the
// audit outbox relay. It is operational tooling; the records API itself is a
// library consumed by a service layer.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/spf13/cobra"

	"sasana/internal/platform/config"
	"sasana/internal/platform/logger"
	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	pgstore "sasana/internal/registry/store/postgres"
	sqlitestore "sasana/internal/registry/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sasanactl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sasanactl",
		Short:         "Operations tooling for the sasana registration registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newResyncSequencesCmd(),
		newSeedCountersCmd(),
		newRetireOrphansCmd(),
		newAuditRelayCmd(),
	)
	return root
}

// env is everything a subcommand needs: configuration, logger, the open
// database and the family catalog.
type env struct {
	cfg      config.Config
	log      *slog.Logger
	db       *sql.DB
	store    store.Store
	families models.FamilySet
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var (
		db *sql.DB
		st store.Store
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st = pgstore.New(db)
	case "sqlite":
		db, err = sqlitestore.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = sqlitestore.New(db)
	}

	return &env{
		cfg:      cfg,
		log:      logger.New(),
		db:       db,
		store:    st,
		families: models.DefaultFamilySet(),
	}, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

// resolveFamilies turns the --family flag into the set of families to act
// on: all of them when the flag is empty.
func (e *env) resolveFamilies(name string) ([]models.Family, error) {
	if name == "" {
		out := make([]models.Family, 0, len(e.families))
		for _, n := range e.families.Names() {
			f, _ := e.families.Get(n)
			out = append(out, f)
		}
		return out, nil
	}
	f, ok := e.families.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown family %q (known: %v)", name, e.families.Names())
	}
	return []models.Family{f}, nil
}
