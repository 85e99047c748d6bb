package main

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/yar/internal/store"
	"github.com/ashureev/yar/internal/worker"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove expired sessions and messages once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, closeRepo, err := openEngine(setupDI(cfg))
			if err != nil {
				return err
			}
			defer closeRepo()

			res := worker.NewGC(eng, cfg.Engine.GCInterval).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired sessions: %d\nexpired messages: %d\n", res.Sessions, res.Messages)
			return nil
		},
	}
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Print every channel with its members as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, closeRepo, err := openEngine(setupDI(cfg))
			if err != nil {
				return err
			}
			defer closeRepo()

			listings, err := eng.ListChannels(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(listings)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := do.Invoke[store.Repository](setupDI(cfg))
			if err != nil {
				return err
			}
			defer repo.Close()

			version, err := repo.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, cfg.DBPath)
			return nil
		},
	}
}
