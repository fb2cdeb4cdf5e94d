// This file provides repository functions for the Issue model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction opened by the service layer. They hold no
// business rules: legality of status transitions lives in domain.IssueStatus.
//
// Error semantics:
//   - missing rows yield ErrNotFound;
//   - a second non-closed issue for the same chat id yields ErrDuplicate;
//   - a conditional status update whose prior status no longer matches
//     yields ErrStale.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// CreateIssue inserts an open issue for chatID.
func CreateIssue(ctx context.Context, db *gorm.DB, chatID, username string) (*domain.Issue, error) {
	now := time.Now().UTC()
	is := &domain.Issue{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Username:  username,
		Status:    domain.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(is).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return is, nil
}

// GetIssue fetches an issue by id.
func GetIssue(ctx context.Context, db *gorm.DB, id string) (*domain.Issue, error) {
	var is domain.Issue
	if err := db.WithContext(ctx).Where("id = ?", id).First(&is).Error; err != nil {
		return nil, err
	}
	return &is, nil
}

// GetIssueForUpdate re-reads an issue inside a transaction, taking a row lock
// where the dialect supports one.
func GetIssueForUpdate(ctx context.Context, tx *gorm.DB, id string) (*domain.Issue, error) {
	q := tx.WithContext(ctx)
	if IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var is domain.Issue
	if err := q.Where("id = ?", id).First(&is).Error; err != nil {
		return nil, err
	}
	return &is, nil
}

// GetActiveIssueByChat returns the non-closed issue for chatID, if any.
func GetActiveIssueByChat(ctx context.Context, db *gorm.DB, chatID string) (*domain.Issue, error) {
	var is domain.Issue
	err := db.WithContext(ctx).
		Where("chat_id = ? AND status <> ?", chatID, domain.StatusClosed).
		Order("created_at DESC").
		First(&is).Error
	if err != nil {
		return nil, err
	}
	return &is, nil
}

// ListIssues returns all issues, newest first. A non-empty status filters.
func ListIssues(ctx context.Context, db *gorm.DB, status domain.IssueStatus) ([]domain.Issue, error) {
	out := []domain.Issue{}
	q := db.WithContext(ctx).Order("created_at DESC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdateIssueStatus moves issue id from status from to status to. The update
// is conditional on the prior status so concurrent transitions cannot both win.
func UpdateIssueStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.IssueStatus) (*domain.Issue, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Issue{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetIssue(ctx, db, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrStale
	}
	return GetIssue(ctx, db, id)
}
