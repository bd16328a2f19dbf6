package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and apply the integrations seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(*cfg)
			if err != nil {
				return err
			}
			defer closeStore(db)

			if err := seedIntegrations(cmd.Context(), db, providers.DefaultRegistry(), cfg.IntegrationsFile); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}
