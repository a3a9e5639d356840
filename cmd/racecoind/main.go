package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarkoPoloResearchLab/racecoin/internal/config"
	"github.com/MarkoPoloResearchLab/racecoin/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "racecoind"

// application carries the configuration resolved before any subcommand runs.
type application struct {
	cfg config.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	app := &application{}
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Horse racing prediction game coin ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}
			app.cfg = cfg
			return nil
		},
	}
	config.RegisterFlags(cmd)
	cmd.AddCommand(
		newServeCommand(app),
		newMigrateCommand(app),
		newRacesCommand(app),
		newSettleCommand(app),
		newReconcileCommand(app),
	)
	return cmd
}

func newServeCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC admin server and the race result consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app.cfg)
		},
	}
}

func newMigrateCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, cleanup, driver, err := openDatabase(cmd.Context(), app.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := prepareSchema(db, driver); err != nil {
				return err
			}
			logger.Info("schema ready", zap.String("driver", driver))
			return nil
		},
	}
}

func (app *application) logger() (*zap.Logger, error) {
	logger, err := logging.New(serviceName, app.cfg.Env, app.cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}
