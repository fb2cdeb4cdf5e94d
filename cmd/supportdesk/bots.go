package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-support-desk/internal/apiclient"
	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/config"
	"github.com/tbourn/go-support-desk/internal/dispatch"
	"github.com/tbourn/go-support-desk/internal/notify"
	"github.com/tbourn/go-support-desk/internal/observability"
	"github.com/tbourn/go-support-desk/internal/session"
	"github.com/tbourn/go-support-desk/internal/telegram"
)

func newUserBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "userbot",
		Short: "Run the requester-facing Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStandaloneBot(cmd.Context(), observability.ComponentUserBot)
		},
	}
}

func newAdminBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adminbot",
		Short: "Run the staff-facing Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStandaloneBot(cmd.Context(), observability.ComponentAdminBot)
		},
	}
}

// runStandaloneBot runs one bot against a remote API, listening to the
// Postgres change feed for the events it forwards.
func runStandaloneBot(parent context.Context, component string) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, logger, flush, err := setup(ctx, component)
	if err != nil {
		return err
	}
	defer flush()

	if cfg.DB.Driver != config.DriverPostgres {
		return errors.New("standalone bots need DB_DRIVER=postgres for the change feed; use `run` with sqlite")
	}

	client := newAPIClient(cfg, component)
	src := changefeed.NewPGListener(cfg.DB.URL, cfg.Feed.Channel, cfg.Feed.Reconnect, cfg.Feed.Buffer)
	d := newDispatcher(cfg, src, client, logger)

	var bot *botParts
	if component == observability.ComponentUserBot {
		bot, err = userBot(cfg, client, logger)
	} else {
		bot, err = adminBot(cfg, client, logger)
	}
	if err != nil {
		return err
	}
	bot.subscribe(d)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.poller.Run(gctx) })
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return observability.ServeMetrics(gctx, cfg.Bot.MetricsAddr, logger) })
	return g.Wait()
}

// botParts is one running bot: its update loop and the notification
// routing it performs.
type botParts struct {
	poller    *telegram.Poller
	subscribe func(d *dispatch.Dispatcher)
}

func newAPIClient(cfg config.Config, component string) *apiclient.Client {
	return apiclient.New(cfg.Bot.APIBaseURL, component, apiclient.WithTimeout(cfg.Bot.OutboundTimeout))
}

func newDispatcher(cfg config.Config, src changefeed.Source, lookup dispatch.IssueLookup, logger zerolog.Logger) *dispatch.Dispatcher {
	return dispatch.New(src, lookup,
		dispatch.WithLogger(logger.With().Str("component", "dispatch").Logger()),
		dispatch.WithHandlerTimeout(cfg.Feed.HandlerTimeout),
		dispatch.WithDedupeTTL(cfg.Feed.DedupeTTL),
	)
}

func connectBot(cfg config.Config, kind string) (*tgbotapi.BotAPI, error) {
	token, err := cfg.RequireBotToken(kind)
	if err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect %s bot: %w", kind, err)
	}
	api.Debug = cfg.Bot.Debug
	return api, nil
}

func newRouter(cfg config.Config, out notify.Deliverer, admins notify.AdminDirectory, focus notify.FocusLookup, logger zerolog.Logger) *notify.Router {
	r := notify.NewRouter(out, admins, focus)
	r.Timeout = cfg.Bot.OutboundTimeout
	r.Logger = logger.With().Str("component", "notify").Logger()
	return r
}

func newPoller(api telegram.BotAPI, name string, h telegram.UpdateHandler, timeout time.Duration, logger zerolog.Logger) *telegram.Poller {
	return &telegram.Poller{
		API:     api,
		Bot:     name,
		Handler: h,
		Logger:  logger,
		Timeout: timeout,
	}
}

// userBot relays admin replies to requesters.
func userBot(cfg config.Config, api telegram.UserAPI, logger zerolog.Logger) (*botParts, error) {
	tg, err := connectBot(cfg, "user")
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("bot", tg.Self.UserName).Logger()
	sender := telegram.NewSender(tg, observability.ComponentUserBot, cfg.Bot.SendRPS, logger)
	router := newRouter(cfg, sender, nil, nil, logger)

	h := &telegram.UserBot{API: api, Out: sender, Logger: logger}
	return &botParts{
		poller:    newPoller(tg, observability.ComponentUserBot, h, 2*cfg.Bot.OutboundTimeout+cfg.AI.Timeout, logger),
		subscribe: router.RegisterUserHandlers,
	}, nil
}

// adminBotAPI is what the admin bot and its router need from the API.
type adminBotAPI interface {
	telegram.AdminAPI
	notify.AdminDirectory
}

// adminBot fans escalations and requester messages out to admins.
func adminBot(cfg config.Config, api adminBotAPI, logger zerolog.Logger) (*botParts, error) {
	tg, err := connectBot(cfg, "admin")
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("bot", tg.Self.UserName).Logger()
	sender := telegram.NewSender(tg, observability.ComponentAdminBot, cfg.Bot.SendRPS, logger)
	focus := session.NewFocusTable()
	router := newRouter(cfg, sender, api, focus, logger)

	h := &telegram.AdminBot{API: api, Out: sender, Focus: focus, Logger: logger}
	return &botParts{
		poller:    newPoller(tg, observability.ComponentAdminBot, h, 2*cfg.Bot.OutboundTimeout, logger),
		subscribe: router.RegisterAdminHandlers,
	}, nil
}
