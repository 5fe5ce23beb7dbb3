package main

import (
	"FeeLedger/internal/observability"
	"FeeLedger/internal/persistence"
	"FeeLedger/internal/upgrade"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	var cfg Config
	var logger zerolog.Logger

	root := &cobra.Command{
		Use:           "feeledger",
		Short:         "Fee-charging token ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = LoadConfig(v, configFile); err != nil {
				return err
			}
			logger = observability.NewLoggerWithLevel("feeledger", observability.ParseLogLevel(cfg.LogLevel))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger: ingestion, core, persistence, projections and APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info().Str("version", Version).Msg("FeeLedger starting")
			return serve(ctx, cfg, logger)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), cfg, logger, func(ctx context.Context, m *persistence.Migrator) error {
					return m.Up(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), cfg, logger, func(ctx context.Context, m *persistence.Migrator) error {
					return m.Down(ctx)
				})
			},
		},
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build and state schema versions",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feeledger %s (state schema v%d)\n", Version, upgrade.Version)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, versionCmd)
	return root
}

func withMigrator(ctx context.Context, cfg Config, logger zerolog.Logger, f func(context.Context, *persistence.Migrator) error) error {
	db, err := openDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return f(ctx, persistence.NewMigrator(db, persistence.EmbeddedMigrations(), logger))
}
