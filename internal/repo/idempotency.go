// This file provides repository helpers for the Idempotency model used to
// replay retried user-message posts.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, issueID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(issueID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("scope = ? AND issue_id = ? AND key = ? AND expires_at > ?", scope, issueID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
// Expired rows for the same key are purged first so a key can be reused after its TTL.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope, issueID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Where("scope = ? AND issue_id = ? AND key = ? AND expires_at <= ?", scope, issueID, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return nil, err
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Scope:     scope,
		IssueID:   issueID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// SetIdempotencyReply records the generated reply for a stored request.
func SetIdempotencyReply(ctx context.Context, db *gorm.DB, id, replyID string) error {
	return db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("id = ?", id).
		Update("reply_id", replyID).Error
}
