package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-desk/internal/config"
	httpapi "github.com/tbourn/go-support-desk/internal/http"
	"github.com/tbourn/go-support-desk/internal/repo"
	"github.com/tbourn/go-support-desk/internal/services"
)

// newAPI serves the real router over an in-memory store.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:apiclient_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{
		Issues: services.NewIssueService(db, nil, nil),
		Admins: &services.AdminService{DB: db},
	}, config.Config{APIBasePath: "/api", RateRPS: 1000, RateBurst: 1000})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AgainstRouter(t *testing.T) {
	srv := newAPI(t)
	c := New(srv.URL+"/api/", "userbot", WithHTTPClient(srv.Client()))
	ctx := context.Background()

	if _, err := c.GetActiveIssue(ctx, "42"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	is, err := c.CreateIssue(ctx, "42", "alice")
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if _, err := c.CreateIssue(ctx, "42", "alice"); !HasCode(err, CodeIssueExists) {
		t.Fatalf("duplicate create err = %v", err)
	}

	active, err := c.GetActiveIssue(ctx, "42")
	if err != nil || active.ID != is.ID {
		t.Fatalf("GetActiveIssue = %+v, %v", active, err)
	}

	res, err := c.PostUserMessage(ctx, is.ID, "hello", "tg-42-1")
	if err != nil || res.Message == nil || res.Reply != nil || res.Replayed {
		t.Fatalf("PostUserMessage = %+v, %v", res, err)
	}
	again, err := c.PostUserMessage(ctx, is.ID, "hello", "tg-42-1")
	if err != nil || !again.Replayed || again.Message.ID != res.Message.ID {
		t.Fatalf("replay = %+v, %v", again, err)
	}

	if _, err := c.Escalate(ctx, is.ID); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if _, err := c.Escalate(ctx, is.ID); !HasCode(err, CodeAlreadyManual) {
		t.Fatalf("second escalate err = %v", err)
	}

	if _, err := c.RegisterAdmin(ctx, "900", "bob"); err != nil {
		t.Fatalf("RegisterAdmin: %v", err)
	}
	admins, err := c.ListAdmins(ctx)
	if err != nil || len(admins) != 1 || admins[0].ChatID != "900" {
		t.Fatalf("ListAdmins = %+v, %v", admins, err)
	}

	manual, err := c.ListManualIssues(ctx)
	if err != nil || len(manual) != 1 || manual[0].ID != is.ID {
		t.Fatalf("ListManualIssues = %+v, %v", manual, err)
	}

	if _, err := c.PostAdminMessage(ctx, is.ID, "on it"); err != nil {
		t.Fatalf("PostAdminMessage: %v", err)
	}
	msgs, err := c.ListMessages(ctx, is.ID)
	if err != nil || len(msgs) != 2 || msgs[1].Sender != "Admin" {
		t.Fatalf("ListMessages = %+v, %v", msgs, err)
	}

	got, err := c.GetIssue(ctx, is.ID)
	if err != nil || got.Status != "manual" {
		t.Fatalf("GetIssue = %+v, %v", got, err)
	}

	if _, err := c.CloseIssue(ctx, is.ID); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}
	_, err = c.PostUserMessage(ctx, is.ID, "bye", "")
	var ae *APIError
	if !HasCode(err, CodeIssueClosed) || !asAPIError(err, &ae) || ae.Status != http.StatusForbidden {
		t.Fatalf("post into closed err = %v", err)
	}
}

func asAPIError(err error, target **APIError) bool {
	ae, ok := err.(*APIError)
	if ok {
		*target = ae
	}
	return ok
}

func TestClient_SendsClientNameAndKey(t *testing.T) {
	var gotName, gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = r.Header.Get(HeaderClientName)
		gotKey = r.Header.Get(HeaderIdempotencyKey)
		gotType = r.Header.Get("Content-Type")
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"id": "m1"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "adminbot", WithHTTPClient(srv.Client()))
	if _, err := c.PostUserMessage(context.Background(), "i1", "x", "k-1"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if gotName != "adminbot" || gotKey != "k-1" || gotType != "application/json" {
		t.Fatalf("headers = %q %q %q", gotName, gotKey, gotType)
	}
}

func TestClient_RetriesSafeCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(srv.Client()), WithRetries(2, time.Millisecond))
	if _, err := c.ListAdmins(context.Background()); err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_RetryBudgetAndFinalError(t *testing.T) {
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "x", "message": "nope"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(srv.Client()), WithRetries(2, time.Millisecond))

	// an exhausted budget surfaces the last answer as a bare *APIError
	_, err := c.GetIssue(context.Background(), "i1")
	if ae, ok := err.(*APIError); !ok || ae.Status != http.StatusServiceUnavailable {
		t.Fatalf("err = %#v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}

	// a 404 stops at once and is not wrapped
	calls.Store(0)
	status.Store(http.StatusNotFound)
	_, err = c.GetIssue(context.Background(), "i1")
	if _, ok := err.(*APIError); !ok || !IsNotFound(err) || calls.Load() != 1 {
		t.Fatalf("err=%#v calls=%d", err, calls.Load())
	}
}

func TestClient_DoesNotRetryUnsafeOrFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		code := "internal_error"
		if r.Header.Get(HeaderIdempotencyKey) != "" {
			code = CodeResponderFailed
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": "boom", "request_id": "rid-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(srv.Client()), WithRetries(3, time.Millisecond))

	// POST without a key is not safe to repeat
	_, err := c.Escalate(context.Background(), "i1")
	if calls.Load() != 1 {
		t.Fatalf("unsafe call retried: %d", calls.Load())
	}
	var ae *APIError
	if !asAPIError(err, &ae) || ae.RequestID != "rid-1" || ae.Code != "internal_error" {
		t.Fatalf("err = %#v", err)
	}

	// responder failure is final even with a key
	calls.Store(0)
	_, err = c.PostUserMessage(context.Background(), "i1", "x", "k")
	if !HasCode(err, CodeResponderFailed) || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(srv.Client()), WithRetries(0, 0))
	_, err := c.GetIssue(context.Background(), "i1")
	var ae *APIError
	if !asAPIError(err, &ae) || ae.Status != http.StatusBadGateway || ae.Message != "bad gateway" {
		t.Fatalf("err = %#v", err)
	}
	if ae.Error() != "api: status 502" {
		t.Fatalf("Error() = %q", ae.Error())
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond), WithRetries(3, time.Millisecond))
	start := time.Now()
	if _, err := c.ListAdmins(context.Background()); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced across retries: %v", time.Since(start))
	}
}
