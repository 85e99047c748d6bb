package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/yar/internal/config"
	"github.com/ashureev/yar/internal/engine"
	"github.com/ashureev/yar/internal/store"
	"github.com/joho/godotenv"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var dbPathFlag string

// Execute runs the root command.
func Execute() {
	rootCmd := &cobra.Command{
		Use:   "yar",
		Short: "Chat channels for coordinating local agent sessions",
		Long: "yar lets independent agent processes on one machine register sessions, " +
			"join named channels and exchange messages through a shared SQLite file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file (default $YAR_DB_PATH or ~/.claude/yar/yar.db)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGCCmd())
	rootCmd.AddCommand(newChannelsCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	initLogger(cfg)
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	store.RegisterDI(injector)
	engine.RegisterDI(injector)

	return injector
}

// openEngine resolves the engine and returns a func that closes the store.
func openEngine(injector do.Injector) (*engine.Engine, func(), error) {
	eng, err := do.Invoke[*engine.Engine](injector)
	if err != nil {
		return nil, nil, err
	}
	repo := do.MustInvoke[store.Repository](injector)
	closeRepo := func() {
		if err := repo.Close(); err != nil {
			slog.Error("Failed to close repository", "error", err)
		}
	}
	return eng, closeRepo, nil
}
