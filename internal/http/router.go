// Package httpapi wires the HTTP transport (Gin) to the support-desk
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency, rate limiting and
// compression.
//
// Two namespaces are mounted under the API base path:
//   - /public   used by the user bot on behalf of requesters
//   - /private  used by the admin bot; responses are never cached
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/config"
	"github.com/tbourn/go-support-desk/internal/http/docs"
	"github.com/tbourn/go-support-desk/internal/http/handlers"
	"github.com/tbourn/go-support-desk/internal/http/middleware"
	"github.com/tbourn/go-support-desk/internal/repo"
	"github.com/tbourn/go-support-desk/internal/services"
)

// maxBodyBytes caps request bodies. Chat messages are small.
const maxBodyBytes = 1 << 20

// Services are the application services behind the endpoints.
type Services struct {
	Issues handlers.IssueService
	Admins handlers.AdminService
	FAQs   handlers.FAQService // nil leaves /private/faq unmounted
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. db backs the idempotency pre-check; everything else goes through
// svc.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id, scope the logger
//  3. RedactingLogger: structured access logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per bot and IP, bypass on replay)
//  9. CORS and security headers
//  10. gzip
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "X-Goog-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(db),
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS)...)

	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{base + "/private"},
		EnablePolicy:    true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Issues, svc.Admins, svc.FAQs)
	api := groupWithPrefix(r, cfg.APIBasePath)

	pub := api.Group("/public")
	{
		// :id is the requester chat id on GET and an issue id elsewhere.
		pub.GET("/issues/:id", h.GetActiveIssue)
		pub.POST("/issues", h.CreateIssue)
		pub.POST("/issues/:id/messages", h.PostUserMessage)
		pub.PUT("/issues/:id/manual", h.EscalateIssue)
		pub.POST("/issues/:id/close", h.CloseIssue)
	}

	priv := api.Group("/private")
	{
		priv.GET("/admins", h.ListAdmins)
		priv.POST("/admins", h.RegisterAdmin)

		priv.GET("/issues", h.ListIssues)
		priv.GET("/issues/manual", h.ListManualIssues)
		priv.GET("/issues/:id", h.GetIssue)
		priv.GET("/issues/:id/messages", h.ListMessages)
		priv.POST("/issues/:id/messages", h.PostAdminMessage)
		priv.POST("/issues/:id/close", h.CloseIssue)

		if svc.FAQs != nil {
			priv.GET("/faq", h.ListFAQ)
			priv.POST("/faq", h.CreateFAQ)
			priv.GET("/faq/:id", h.GetFAQ)
			priv.PUT("/faq/:id", h.UpdateFAQ)
			priv.DELETE("/faq/:id", h.DeleteFAQ)
		}
	}
}

// idempotencyLookup reports a live stored result for a public message post.
// Store errors count as a miss; the service repeats the check transactionally.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, issueID, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, services.IdempotencyScope, issueID, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// corsMiddleware returns the CORS posture: allow all when no origins are
// configured, otherwise echo allow-listed origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	methods := []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	headers := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderClientName, middleware.HeaderIdempotencyKey,
	}
	expose := []string{"X-Request-ID", "Content-Length", "Idempotency-Replayed", "Retry-After"}

	if len(cfg.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     headers,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Downstream reads past the cap fail and binding reports 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
