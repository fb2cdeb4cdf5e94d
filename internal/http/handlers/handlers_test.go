package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/http/middleware"
	"github.com/tbourn/go-support-desk/internal/repo"
	"github.com/tbourn/go-support-desk/internal/services"
)

// stubReplier answers like the AI responder: it stores a GPT message while
// the issue is open.
type stubReplier struct {
	db    *gorm.DB
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubReplier) Respond(ctx context.Context, is *domain.Issue, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrResponderUnavailable, s.err)
	}
	if !is.Status.AutoReplies() {
		return nil, nil
	}
	return repo.AppendMessage(ctx, s.db, is.ID, domain.SenderGPT, "auto: "+m.Text)
}

type testServer struct {
	r       *gin.Engine
	db      *gorm.DB
	replier *stubReplier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:handlers_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rep := &stubReplier{db: db}
	h := New(
		services.NewIssueService(db, rep, nil),
		&services.AdminService{DB: db},
		&services.FAQService{DB: db},
	)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	pub := r.Group("/public")
	pub.GET("/issues/:id", h.GetActiveIssue)
	pub.POST("/issues", h.CreateIssue)
	pub.POST("/issues/:id/messages", h.PostUserMessage)
	pub.PUT("/issues/:id/manual", h.EscalateIssue)
	pub.POST("/issues/:id/close", h.CloseIssue)

	priv := r.Group("/private")
	priv.GET("/admins", h.ListAdmins)
	priv.POST("/admins", h.RegisterAdmin)
	priv.GET("/issues", h.ListIssues)
	priv.GET("/issues/manual", h.ListManualIssues)
	priv.GET("/issues/:id", h.GetIssue)
	priv.GET("/issues/:id/messages", h.ListMessages)
	priv.POST("/issues/:id/messages", h.PostAdminMessage)
	priv.POST("/issues/:id/close", h.CloseIssue)
	priv.GET("/faq", h.ListFAQ)
	priv.POST("/faq", h.CreateFAQ)
	priv.GET("/faq/:id", h.GetFAQ)
	priv.PUT("/faq/:id", h.UpdateFAQ)
	priv.DELETE("/faq/:id", h.DeleteFAQ)

	return &testServer{r: r, db: db, replier: rep}
}

func (s *testServer) do(t *testing.T, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	if code != "" {
		if got := decode[ErrorResponse](t, w).Code; got != code {
			t.Fatalf("code = %q, want %q", got, code)
		}
	}
}

func (s *testServer) openIssue(t *testing.T, chatID string) domain.Issue {
	t.Helper()
	w := s.do(t, http.MethodPost, "/public/issues", CreateIssueRequest{ChatID: chatID, Username: "alice"})
	expect(t, w, http.StatusCreated, "")
	return decode[domain.Issue](t, w)
}

func TestPublic_CreateAndLookup(t *testing.T) {
	s := newTestServer(t)

	expect(t, s.do(t, http.MethodGet, "/public/issues/42", nil), http.StatusNotFound, ErrCodeNotFound)

	is := s.openIssue(t, "42")
	if is.Status != domain.StatusOpen || is.ChatID != "42" {
		t.Fatalf("issue = %+v", is)
	}

	w := s.do(t, http.MethodGet, "/public/issues/42", nil)
	expect(t, w, http.StatusOK, "")
	if got := decode[domain.Issue](t, w); got.ID != is.ID {
		t.Fatalf("active = %s, want %s", got.ID, is.ID)
	}

	expect(t, s.do(t, http.MethodPost, "/public/issues", CreateIssueRequest{ChatID: "42", Username: "alice"}),
		http.StatusBadRequest, ErrCodeIssueExists)
	expect(t, s.do(t, http.MethodPost, "/public/issues", CreateIssueRequest{ChatID: "43", Username: "gpt"}),
		http.StatusBadRequest, ErrCodeReservedName)
	expect(t, s.do(t, http.MethodPost, "/public/issues", map[string]string{"chat_id": "44"}),
		http.StatusBadRequest, ErrCodeBadRequest)
}

func TestPublic_MessageLifecycle(t *testing.T) {
	s := newTestServer(t)
	is := s.openIssue(t, "42")
	msgPath := "/public/issues/" + is.ID + "/messages"

	// open: the responder answers
	w := s.do(t, http.MethodPost, msgPath, PostMessageRequest{Message: "where is my order"})
	expect(t, w, http.StatusOK, "")
	res := decode[PostUserMessageResponse](t, w)
	if res.Message == nil || res.Message.Sender != "alice" || res.Reply == nil || res.Reply.Sender != domain.SenderGPT {
		t.Fatalf("open response = %s", w.Body.String())
	}

	// escalate, then escalate again
	w = s.do(t, http.MethodPut, "/public/issues/"+is.ID+"/manual", nil)
	expect(t, w, http.StatusOK, "")
	if decode[domain.Issue](t, w).Status != domain.StatusManual {
		t.Fatalf("escalate body = %s", w.Body.String())
	}
	expect(t, s.do(t, http.MethodPut, "/public/issues/"+is.ID+"/manual", nil), http.StatusBadRequest, ErrCodeAlreadyManual)

	// manual: no reply
	w = s.do(t, http.MethodPost, msgPath, PostMessageRequest{Message: "hello?"})
	expect(t, w, http.StatusOK, "")
	if res := decode[PostUserMessageResponse](t, w); res.Reply != nil {
		t.Fatalf("manual mode produced a reply: %s", w.Body.String())
	}

	// close, then every mutation fails
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+is.ID+"/close", nil), http.StatusOK, "")
	expect(t, s.do(t, http.MethodPost, msgPath, PostMessageRequest{Message: "x"}), http.StatusForbidden, ErrCodeIssueClosed)
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+is.ID+"/close", nil), http.StatusBadRequest, ErrCodeIssueClosed)
	expect(t, s.do(t, http.MethodPut, "/public/issues/"+is.ID+"/manual", nil), http.StatusBadRequest, ErrCodeIssueClosed)
	expect(t, s.do(t, http.MethodGet, "/public/issues/42", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestPublic_MessageErrors(t *testing.T) {
	s := newTestServer(t)
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+uuid.NewString()+"/messages", PostMessageRequest{Message: "x"}),
		http.StatusNotFound, ErrCodeNotFound)

	is := s.openIssue(t, "42")
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+is.ID+"/messages", PostMessageRequest{Message: "   "}),
		http.StatusBadRequest, ErrCodeBadRequest)

	s.replier.err = errors.New("model timeout")
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+is.ID+"/messages", PostMessageRequest{Message: "help"}),
		http.StatusInternalServerError, ErrCodeResponderFailed)

	// the user message survived the responder failure
	w := s.do(t, http.MethodGet, "/private/issues/"+is.ID+"/messages", nil)
	if msgs := decode[[]domain.Message](t, w); len(msgs) != 1 || msgs[0].Text != "help" {
		t.Fatalf("thread = %s", w.Body.String())
	}
}

func TestPublic_IdempotentReplay(t *testing.T) {
	s := newTestServer(t)
	is := s.openIssue(t, "42")
	path := "/public/issues/" + is.ID + "/messages"

	first := s.do(t, http.MethodPost, path, PostMessageRequest{Message: "hi"}, middleware.HeaderIdempotencyKey, "tg-42-1")
	expect(t, first, http.StatusOK, "")
	second := s.do(t, http.MethodPost, path, PostMessageRequest{Message: "hi"}, middleware.HeaderIdempotencyKey, "tg-42-1")
	expect(t, second, http.StatusOK, "")

	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay header missing")
	}
	a, b := decode[PostUserMessageResponse](t, first), decode[PostUserMessageResponse](t, second)
	if a.Message.ID != b.Message.ID || a.Reply == nil || b.Reply == nil || a.Reply.ID != b.Reply.ID {
		t.Fatalf("replay differs: %s vs %s", first.Body.String(), second.Body.String())
	}
	if s.replier.calls != 1 {
		t.Fatalf("responder calls = %d, want 1", s.replier.calls)
	}
}

func TestPrivate_AdminReplyForcesManual(t *testing.T) {
	s := newTestServer(t)
	is := s.openIssue(t, "42")

	w := s.do(t, http.MethodPost, "/private/issues/"+is.ID+"/messages", PostMessageRequest{Message: "on it"})
	expect(t, w, http.StatusCreated, "")
	if m := decode[domain.Message](t, w); m.Sender != domain.SenderAdmin {
		t.Fatalf("sender = %q", m.Sender)
	}

	w = s.do(t, http.MethodGet, "/private/issues/"+is.ID, nil)
	if decode[domain.Issue](t, w).Status != domain.StatusManual {
		t.Fatalf("issue = %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/private/issues/manual", nil)
	if items := decode[[]domain.Issue](t, w); len(items) != 1 || items[0].ID != is.ID {
		t.Fatalf("manual list = %s", w.Body.String())
	}

	expect(t, s.do(t, http.MethodPost, "/private/issues/"+is.ID+"/close", nil), http.StatusOK, "")
	expect(t, s.do(t, http.MethodPost, "/private/issues/"+is.ID+"/messages", PostMessageRequest{Message: "late"}),
		http.StatusBadRequest, ErrCodeIssueClosed)
	expect(t, s.do(t, http.MethodPost, "/private/issues/"+uuid.NewString()+"/messages", PostMessageRequest{Message: "x"}),
		http.StatusNotFound, ErrCodeNotFound)
}

func TestPrivate_ListIssuesFilter(t *testing.T) {
	s := newTestServer(t)
	s.openIssue(t, "1")
	b := s.openIssue(t, "2")
	expect(t, s.do(t, http.MethodPost, "/public/issues/"+b.ID+"/close", nil), http.StatusOK, "")

	w := s.do(t, http.MethodGet, "/private/issues", nil)
	if items := decode[[]domain.Issue](t, w); len(items) != 2 {
		t.Fatalf("all = %s", w.Body.String())
	}
	w = s.do(t, http.MethodGet, "/private/issues?status=closed", nil)
	if items := decode[[]domain.Issue](t, w); len(items) != 1 || items[0].ID != b.ID {
		t.Fatalf("closed = %s", w.Body.String())
	}
	w = s.do(t, http.MethodGet, "/private/issues/manual", nil)
	if w.Body.String() != "[]" {
		t.Fatalf("empty manual list = %q", w.Body.String())
	}
	expect(t, s.do(t, http.MethodGet, "/private/issues?status=pending", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expect(t, s.do(t, http.MethodGet, "/private/issues/"+uuid.NewString(), nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestPrivate_Admins(t *testing.T) {
	s := newTestServer(t)
	expect(t, s.do(t, http.MethodPost, "/private/admins", RegisterAdminRequest{ChatID: "900", Username: "bob"}), http.StatusCreated, "")
	expect(t, s.do(t, http.MethodPost, "/private/admins", RegisterAdminRequest{ChatID: "900", Username: "bob"}),
		http.StatusBadRequest, ErrCodeAdminExists)
	expect(t, s.do(t, http.MethodPost, "/private/admins", map[string]string{"username": "x"}), http.StatusBadRequest, ErrCodeBadRequest)

	w := s.do(t, http.MethodGet, "/private/admins", nil)
	if admins := decode[[]domain.Admin](t, w); len(admins) != 1 || admins[0].ChatID != "900" {
		t.Fatalf("admins = %s", w.Body.String())
	}
}

func TestPrivate_FAQCrud(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/private/faq", FAQRequest{Question: "Reset password?", Answer: "Use the link."})
	expect(t, w, http.StatusCreated, "")
	f := decode[FAQResponse](t, w)
	if f.Searchable {
		t.Fatal("entry without embedder should not be searchable")
	}

	w = s.do(t, http.MethodPut, "/private/faq/"+f.ID, FAQRequest{Question: "Reset password?", Answer: "Use the reset link."})
	expect(t, w, http.StatusOK, "")
	if decode[FAQResponse](t, w).Answer != "Use the reset link." {
		t.Fatalf("update = %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/private/faq", nil)
	if items := decode[[]FAQResponse](t, w); len(items) != 1 {
		t.Fatalf("list = %s", w.Body.String())
	}
	expect(t, s.do(t, http.MethodGet, "/private/faq/"+f.ID, nil), http.StatusOK, "")
	expect(t, s.do(t, http.MethodPost, "/private/faq", map[string]string{"question": "q"}), http.StatusBadRequest, ErrCodeBadRequest)
	expect(t, s.do(t, http.MethodDelete, "/private/faq/"+f.ID, nil), http.StatusNoContent, "")
	expect(t, s.do(t, http.MethodGet, "/private/faq/"+f.ID, nil), http.StatusNotFound, ErrCodeNotFound)
	expect(t, s.do(t, http.MethodDelete, "/private/faq/"+f.ID, nil), http.StatusNotFound, ErrCodeNotFound)
}
