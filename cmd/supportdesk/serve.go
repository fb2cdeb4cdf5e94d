package main

import (
	"github.com/spf13/cobra"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/observability"
	"github.com/tbourn/go-support-desk/internal/repo"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the HTTP API over the configured store. On Postgres the bots learn about\n" +
			"changes through NOTIFY triggers; on SQLite use `run` to host the bots in the\n" +
			"same process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, logger, flush, err := setup(ctx, observability.ComponentAPI)
			if err != nil {
				return err
			}
			defer flush()

			db, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(db, logger)

			if !repo.IsPostgres(db) {
				logger.Warn().Msg("sqlite store has no change feed; bots in other processes will not be notified")
			}

			c, err := buildCore(ctx, cfg, db, changefeed.Nop{}, logger)
			if err != nil {
				return err
			}
			defer c.close()

			return serveHTTP(ctx, newHTTPServer(cfg, db, c.httpServices()), logger)
		},
	}
}
