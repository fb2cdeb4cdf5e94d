package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-support-desk/internal/domain"
)

func TestIdempotency_CreateGetDuplicate(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	if _, err := GetIdempotency(ctx, db, "public", "i1", "k1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	start := time.Now().UTC()
	rec, err := CreateIdempotency(ctx, db, "public", "i1", "k1", "m1", 200, 90*time.Minute)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ReplyID != nil || rec.MessageID != "m1" || !rec.ExpiresAt.After(start) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := CreateIdempotency(ctx, db, "public", "i1", "k1", "m2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := SetIdempotencyReply(ctx, db, rec.ID, "r1"); err != nil {
		t.Fatalf("SetIdempotencyReply: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "public", "i1", "k1", time.Now().UTC())
	if err != nil || got.ReplyID == nil || *got.ReplyID != "r1" {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}
}

func TestIdempotency_ExpiredKeyIsReusable(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID: "old", Scope: "public", IssueID: "i1", Key: "k1", MessageID: "m0", Status: 200,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "public", "i1", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must not be returned, got %v", err)
	}
	rec, err := CreateIdempotency(ctx, db, "public", "i1", "k1", "m1", 200, time.Hour)
	if err != nil || rec.MessageID != "m1" {
		t.Fatalf("expected reuse after expiry, got %+v, %v", rec, err)
	}
}

func TestIdempotency_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	_, err := CreateIdempotency(context.Background(), db, "public", "i", "k", "m", 200, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) || isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain errors are not unique violations")
	}
	if !isUniqueViolation(errors.New("UNIQUE constraint failed: admins.chat_id")) {
		t.Fatalf("sqlite text should be recognised")
	}
}
