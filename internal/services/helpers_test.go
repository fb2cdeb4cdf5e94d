package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/llm"
	"github.com/tbourn/go-support-desk/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeEmbedder maps known texts to fixed vectors; unknown texts get def.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	def   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return f.def, nil
}

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
	// hook runs before returning, e.g. to change issue state mid-flight
	hook func()
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// recordingFeed collects published changes.
type recordingFeed struct {
	mu      sync.Mutex
	changes []changefeed.Change
}

func (r *recordingFeed) Publish(_ context.Context, c changefeed.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recordingFeed) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Table+":"+string(c.Op))
	}
	return out
}

var errBoom = errors.New("boom")

type fixture struct {
	db        *gorm.DB
	feed      *recordingFeed
	embedder  *fakeEmbedder
	completer *fakeCompleter
	issues    *IssueService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	feed := &recordingFeed{}
	emb := &fakeEmbedder{def: []float32{1, 0, 0}}
	comp := &fakeCompleter{reply: "Hi! How can I help?"}
	resp := &Responder{
		DB:           db,
		Embeddings:   emb,
		Completion:   comp,
		Feed:         feed,
		SystemPrompt: "You are a helpful customer support assistant.",
	}
	return &fixture{
		db:        db,
		feed:      feed,
		embedder:  emb,
		completer: comp,
		issues:    NewIssueService(db, resp, feed),
	}
}
