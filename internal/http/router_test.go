package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-desk/internal/config"
	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/http/middleware"
	"github.com/tbourn/go-support-desk/internal/repo"
	"github.com/tbourn/go-support-desk/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   100,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func testServices(db *gorm.DB) Services {
	return Services{
		Issues: services.NewIssueService(db, nil, nil),
		Admins: &services.AdminService{DB: db},
		FAQs:   &services.FAQService{DB: db},
	}
}

func newEngine(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, db, testServices(db), cfg)
	return r, db
}

func serve(r http.Handler, method, path string, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = serve(r, http.MethodOptions, "/api/public/issues", "",
		"Origin", "http://ui.test",
		"Access-Control-Request-Method", "POST",
	)
	if w.Code != http.StatusNoContent || !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("wildcard preflight = %d %v", w.Code, w.Header())
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}

	w = serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/health", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

// The request host is example.com, so the UI origin is cross-origin.
func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://ui.test"}}
	r, _ := newEngine(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", "Origin", "http://ui.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.test" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodOptions, "/api/public/issues", "",
		"Origin", "http://ui.test",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "X-Client-Name, Idempotency-Key",
	)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.test" {
		t.Fatalf("preflight ACAO = %q", got)
	}
	allow := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
	if !strings.Contains(allow, "x-client-name") || !strings.Contains(allow, "idempotency-key") {
		t.Fatalf("preflight allow headers = %q", allow)
	}

	w = serve(r, http.MethodGet, "/health", "", "Origin", "http://evil.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin got ACAO %q", got)
	}
}

func TestRegisterRoutes_PublicAndPrivateFlow(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodPost, "/api/public/issues", `{"chat_id":"42","username":"alice"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var is domain.Issue
	if err := json.Unmarshal(w.Body.Bytes(), &is); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Header().Get("Cache-Control") == "no-store" {
		t.Fatal("public response must not be marked no-store")
	}

	w = serve(r, http.MethodGet, "/api/public/issues/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("active = %d", w.Code)
	}

	w = serve(r, http.MethodPut, "/api/public/issues/"+is.ID+"/manual", "")
	if w.Code != http.StatusOK {
		t.Fatalf("escalate = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/private/issues/manual", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), is.ID) {
		t.Fatalf("manual list = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("private response Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	w = serve(r, http.MethodPost, "/api/private/issues/"+is.ID+"/messages", `{"message":"hi, Bob here"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("admin reply = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/private/issues/"+is.ID+"/close", "")
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d", w.Code)
	}
	w = serve(r, http.MethodPost, "/api/public/issues/"+is.ID+"/messages", `{"message":"still there?"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("post into closed = %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/api/private/issues", "", "Accept-Encoding", "gzip")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip, headers=%v", w.Header())
	}

	w = serve(r, http.MethodGet, "/api/private/issues", "")
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "[]" {
		t.Fatalf("plain request got %q %q", w.Header().Get("Content-Encoding"), w.Body.String())
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ := newEngine(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("doc.json = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/public/issues/{id}/messages") ||
		!strings.Contains(w.Body.String(), `"basePath": "/api"`) {
		t.Fatalf("unexpected doc: %.200s", w.Body.String())
	}

	r2, _ := newEngine(t, testConfig())
	if w := serve(r2, http.MethodGet, "/swagger/doc.json", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled but served: %d", w.Code)
	}
}

func TestRegisterRoutes_FAQUnmountedWithoutService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	svc := testServices(db)
	svc.FAQs = nil
	r := gin.New()
	RegisterRoutes(r, db, svc, testConfig())

	if w := serve(r, http.MethodGet, "/api/private/faq", ""); w.Code != http.StatusNotFound {
		t.Fatalf("faq without service = %d", w.Code)
	}
}

func Test_idempotencyLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	lookup := idempotencyLookup(db)
	now := time.Now().UTC()

	is, err := repo.CreateIssue(ctx, db, "42", "alice")
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	m, err := repo.AppendMessage(ctx, db, is.ID, "alice", "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if hit, err := lookup(ctx, is.ID, "k1", now); err != nil || hit {
		t.Fatalf("miss: hit=%v err=%v", hit, err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, services.IdempotencyScope, is.ID, "k1", m.ID, http.StatusOK, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if hit, err := lookup(ctx, is.ID, "k1", now); err != nil || !hit {
		t.Fatalf("hit: hit=%v err=%v", hit, err)
	}
	if hit, _ := lookup(ctx, is.ID, "k1", now.Add(2*time.Hour)); hit {
		t.Fatal("expired record reported as hit")
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if hit, err := lookup(ctx, is.ID, "k1", now); err != nil || hit {
		t.Fatalf("store error must be a miss: hit=%v err=%v", hit, err)
	}

	if idempotencyLookup(nil) != nil {
		t.Fatal("nil db should disable the lookup")
	}
}

func TestRegisterRoutes_ReplayBypassesRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, db := newEngine(t, cfg)
	ctx := context.Background()

	is, _ := repo.CreateIssue(ctx, db, "42", "alice")
	m, _ := repo.AppendMessage(ctx, db, is.ID, "alice", "hi")
	if _, err := repo.CreateIdempotency(ctx, db, services.IdempotencyScope, is.ID, "k1", m.ID, http.StatusOK, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}

	path := "/api/public/issues/" + is.ID + "/messages"
	// drain the single token
	_ = serve(r, http.MethodGet, "/health", "")
	if w := serve(r, http.MethodGet, "/health", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected limiter to trip, got %d", w.Code)
	}

	w := serve(r, http.MethodPost, path, `{"message":"hi"}`, middleware.HeaderIdempotencyKey, "k1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d %v %s", w.Code, w.Header(), w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
