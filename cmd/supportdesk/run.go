package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/observability"
	"github.com/tbourn/go-support-desk/internal/repo"
)

func newRunCmd() *cobra.Command {
	var noUser, noAdmin bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the API and both bots in one process",
		Long: "Run the HTTP API with the user and admin bots. The bots still call the API\n" +
			"over HTTP (API_BASE_URL); change notifications travel through an in-process\n" +
			"broker on SQLite or through NOTIFY on Postgres.",
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

			var (
				feed changefeed.Publisher = changefeed.Nop{}
				src  changefeed.Source
			)
			if repo.IsPostgres(db) {
				src = changefeed.NewPGListener(cfg.DB.URL, cfg.Feed.Channel, cfg.Feed.Reconnect, cfg.Feed.Buffer)
			} else {
				broker := changefeed.NewBroker(cfg.Feed.Buffer)
				feed, src = broker, broker
			}

			c, err := buildCore(ctx, cfg, db, feed, logger)
			if err != nil {
				return err
			}
			defer c.close()

			lookup := storeLookup{issues: c.Issues, admins: c.Admins}
			d := newDispatcher(cfg, src, lookup, logger)

			var bots []*botParts
			if !noUser {
				b, err := userBot(cfg, newAPIClient(cfg, observability.ComponentUserBot), logger)
				if err != nil {
					return err
				}
				bots = append(bots, b)
			}
			if !noAdmin {
				b, err := adminBot(cfg, newAPIClient(cfg, observability.ComponentAdminBot), logger)
				if err != nil {
					return err
				}
				bots = append(bots, b)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return serveHTTP(gctx, newHTTPServer(cfg, db, c.httpServices()), logger) })
			if len(bots) > 0 {
				for _, b := range bots {
					b.subscribe(d)
					poller := b.poller
					g.Go(func() error { return poller.Run(gctx) })
				}
				g.Go(func() error { return d.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noUser, "no-user-bot", false, "do not start the user bot")
	cmd.Flags().BoolVar(&noAdmin, "no-admin-bot", false, "do not start the admin bot")
	return cmd
}

