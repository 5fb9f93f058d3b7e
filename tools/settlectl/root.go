package main

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"retail-settlement/internal/settlement/adapters/contracts"
	"retail-settlement/internal/settlement/adapters/metering"
	settlementapp "retail-settlement/internal/settlement/application"
	settlementrepo "retail-settlement/internal/settlement/infrastructure/postgres"
)

type options struct {
	dbURL    string
	location string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operate retail settlement runs from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dbURL, "db", firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")), "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&opts.location, "location", "UTC", "IANA zone billing dates are interpreted in")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log orchestrator events to stderr")

	rootCmd.AddCommand(
		newAdvanceCmd(opts),
		newRunsCmd(opts),
		newPeriodsCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

// app holds the wiring shared by database-backed commands.
type app struct {
	db           *sql.DB
	loc          *time.Location
	store        *settlementrepo.ResultStore
	orchestrator *settlementapp.Orchestrator
}

func (o *options) open(cmd *cobra.Command) (*app, error) {
	if o.dbURL == "" {
		return nil, errors.New("settlectl: --db, DATABASE_URL or PG_DSN is required")
	}
	loc, err := time.LoadLocation(o.location)
	if err != nil {
		return nil, err
	}
	logger := log.New(io.Discard, "", 0)
	if o.verbose {
		logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}

	db, err := sql.Open("pgx", o.dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(cmd.Context()); err != nil {
		db.Close()
		return nil, err
	}
	locker, err := settlementrepo.NewAdvisoryLocker(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	store, err := settlementrepo.NewResultStore(db, locker, settlementrepo.WithLocation(loc), settlementrepo.WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	lookup, err := contracts.NewLookup(db, loc)
	if err != nil {
		db.Close()
		return nil, err
	}
	loader, err := metering.NewDataLoader(db, metering.WithLocation(loc))
	if err != nil {
		db.Close()
		return nil, err
	}
	counter, err := metering.NewSampleCounter(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	orchestrator, err := settlementapp.NewOrchestrator(lookup, lookup, loader, counter, store,
		settlementapp.WithLocation(loc),
		settlementapp.WithLogger(logger),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{db: db, loc: loc, store: store, orchestrator: orchestrator}, nil
}

func (a *app) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
