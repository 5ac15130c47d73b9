package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-setlogs-backend/internal/config"
	"github.com/tbourn/go-setlogs-backend/internal/sysutil"
)

// app is the state shared by subcommands once the root pre-run has loaded
// the environment.
type app struct {
	envFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "setlogs",
		Short:         "Workout log with idempotent writes and versioned exercises",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newReapCmd(a),
		newSeedCmd(a),
	)
	return root
}
