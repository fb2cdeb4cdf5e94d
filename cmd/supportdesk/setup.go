package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/config"
	"github.com/tbourn/go-support-desk/internal/domain"
	httpapi "github.com/tbourn/go-support-desk/internal/http"
	"github.com/tbourn/go-support-desk/internal/llm"
	"github.com/tbourn/go-support-desk/internal/observability"
	"github.com/tbourn/go-support-desk/internal/repo"
	"github.com/tbourn/go-support-desk/internal/services"
	"github.com/tbourn/go-support-desk/internal/sysutil"
)

// setup loads the configuration, installs the global logger and starts
// tracing for component. The returned func flushes traces.
func setup(ctx context.Context, component string) (config.Config, zerolog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), nil, fmt.Errorf("config: %w", err)
	}
	logger := sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, component)

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, component, version)
	if err != nil {
		return cfg, logger, nil, fmt.Errorf("otel: %w", err)
	}
	flush := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}
	return cfg, logger, flush, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openStore connects, migrates, and on Postgres (re)installs the change
// triggers the bots listen to.
func openStore(cfg config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if repo.IsPostgres(db) {
		if err := repo.InstallChangeTriggers(db, cfg.Feed.Channel); err != nil {
			return nil, fmt.Errorf("install change triggers: %w", err)
		}
	}
	logger.Info().Str("driver", cfg.DB.Driver).Msg("store ready")
	return db, nil
}

func closeStore(db *gorm.DB, logger zerolog.Logger) {
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}
}

// core is the server-side service graph.
type core struct {
	Issues *services.IssueService
	Admins *services.AdminService
	FAQs   *services.FAQService
	close  func()
}

func (c core) httpServices() httpapi.Services {
	return httpapi.Services{Issues: c.Issues, Admins: c.Admins, FAQs: c.FAQs}
}

// buildCore wires the services. feed receives post-commit changes; pass
// changefeed.Nop{} when the store publishes its own. Without an AI key the
// desk still runs, only without automatic replies and FAQ embeddings.
func buildCore(ctx context.Context, cfg config.Config, db *gorm.DB, feed changefeed.Publisher, logger zerolog.Logger) (core, error) {
	c := core{
		Admins: &services.AdminService{DB: db},
		FAQs:   &services.FAQService{DB: db},
		close:  func() {},
	}

	var responder services.Replier
	if err := cfg.RequireAI(); err != nil {
		logger.Warn().Err(err).Msg("automatic replies disabled")
	} else {
		gem, err := llm.NewGemini(ctx, cfg.AI.APIKey, cfg.AI.ChatModel, cfg.AI.EmbeddingModel, cfg.AI.Timeout)
		if err != nil {
			return c, err
		}
		c.close = func() { _ = gem.Close() }
		c.FAQs.Embeddings = gem
		responder = &services.Responder{
			DB:           db,
			Embeddings:   gem,
			Completion:   gem,
			Feed:         feed,
			SystemPrompt: cfg.AI.SystemPrompt,
			Threshold:    cfg.AI.Threshold,
			TopK:         cfg.AI.TopK,
			MaxTokens:    cfg.AI.MaxTokens,
			Temperature:  cfg.AI.Temperature,
		}
	}

	c.Issues = services.NewIssueService(db, responder, feed)
	c.Issues.IdempotencyTTL = cfg.IdempotencyTTL
	return c, nil
}

func newHTTPServer(cfg config.Config, db *gorm.DB, svc httpapi.Services) *http.Server {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// serveHTTP runs srv until ctx is done, then drains in-flight requests.
func serveHTTP(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("http shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// storeLookup resolves issues for the dispatcher straight from the services
// when it shares a process with them.
type storeLookup struct {
	issues *services.IssueService
	admins *services.AdminService
}

func (l storeLookup) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	return l.issues.Get(ctx, id)
}

func (l storeLookup) ListMessages(ctx context.Context, issueID string) ([]domain.Message, error) {
	return l.issues.Messages(ctx, issueID)
}

func (l storeLookup) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	return l.admins.List(ctx)
}
