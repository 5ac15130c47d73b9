package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-setlogs-backend/internal/seed"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load exercises and sessions from a YAML fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.SeedPath
			}
			f, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), a.cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := seed.Apply(cmd.Context(), seed.Services{
				Exercises: services.NewExerciseService(rt.Core, false),
				Sessions:  services.NewSessionService(rt.Core, false),
				Sets:      services.NewSetService(rt.Core),
			}, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d exercises (+%d versions), %d sessions, %d sets; %d replayed\n",
				res.Exercises, res.Versions, res.Sessions, res.Sets, res.Replayed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture path (default SEED_PATH)")
	return cmd
}
