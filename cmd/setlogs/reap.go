package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete idempotency records older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(a.cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			n, err := newLedger(db, a.cfg).Reap(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d idempotency records (retention %s)\n", n, a.cfg.Idempotency.Retention)
			return nil
		},
	}
}
