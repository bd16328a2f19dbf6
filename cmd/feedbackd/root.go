package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	var (
		envFile string
		cfg     config.Config
	)

	root := &cobra.Command{
		Use:           "feedbackd",
		Short:         "Customer feedback ingestion and classification pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded

			sysutil.SetLogLevel(cfg.LogLevel)
			log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName, Version)
			gin.SetMode(cfg.GinMode)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")

	root.AddCommand(
		newServeCmd(&cfg),
		newMigrateCmd(&cfg),
		newSweepCmd(&cfg),
	)
	return root
}

// loadEnvFile applies a dotenv file without overriding variables that are
// already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
