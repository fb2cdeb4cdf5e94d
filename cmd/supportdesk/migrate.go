package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-support-desk/internal/observability"
	"github.com/tbourn/go-support-desk/internal/repo"
)

func newMigrateCmd() *cobra.Command {
	var printSQL bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and change triggers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, logger, flush, err := setup(ctx, observability.ComponentAPI)
			if err != nil {
				return err
			}
			defer flush()

			if printSQL {
				stmts, err := repo.ChangeTriggerSQL(cfg.Feed.Channel)
				if err != nil {
					return err
				}
				for _, s := range stmts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", s)
				}
				return nil
			}

			db, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			closeStore(db, logger)
			logger.Info().Str("channel", cfg.Feed.Channel).Msg("migration complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSQL, "print-triggers", false, "print the Postgres change-trigger SQL instead of applying it")
	return cmd
}
