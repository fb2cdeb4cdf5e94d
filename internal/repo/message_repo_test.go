package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-support-desk/internal/domain"
)

func TestAppendMessage_StrictlyIncreasingTimestamps(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	is, _ := CreateIssue(ctx, db, "u1", "@u1")

	// A row stamped in the future simulates clock skew between writers.
	future := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	if err := db.Create(&domain.Message{ID: "m0", IssueID: is.ID, Sender: "@u1", Text: "early", Timestamp: future}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	senders := []string{"@u1", domain.SenderGPT, domain.SenderAdmin, "@u1"}
	for i, s := range senders {
		m, err := AppendMessage(ctx, db, is.ID, s, "msg")
		if err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
		if !m.Timestamp.After(future) {
			t.Fatalf("message %d timestamp %v not after %v", i, m.Timestamp, future)
		}
	}

	got, err := ListMessages(ctx, db, is.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 5 || got[0].ID != "m0" {
		t.Fatalf("unexpected thread: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d: %v <= %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
		if got[i].Sender != senders[i-1] {
			t.Fatalf("order mismatch at %d: %q", i, got[i].Sender)
		}
	}
}

func TestAppendMessage_UnknownIssue(t *testing.T) {
	db := newRepoDB(t, true)
	if _, err := AppendMessage(context.Background(), db, "missing", "@u", "x"); err == nil {
		t.Fatalf("expected FK error for unknown issue")
	}
}

func TestListMessages_EmptyAndGet(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	is, _ := CreateIssue(ctx, db, "u1", "@u1")

	got, err := ListMessages(ctx, db, is.ID)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v, %v", got, err)
	}

	m, _ := AppendMessage(ctx, db, is.ID, "@u1", "hello")
	back, err := GetMessage(ctx, db, m.ID)
	if err != nil || back.Text != "hello" || back.IssueID != is.ID {
		t.Fatalf("GetMessage = %+v, %v", back, err)
	}
	if _, err := GetMessage(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
