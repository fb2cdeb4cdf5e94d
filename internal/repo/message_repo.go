// This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// tsStep is the smallest timestamp increment every supported store keeps.
const tsStep = time.Microsecond

// AppendMessage inserts a message into issueID's thread. Its timestamp is
// strictly greater than every existing timestamp in that thread, so reads
// ordered by timestamp reproduce insertion order even under clock skew.
// Call it inside the transaction that re-read the issue status.
func AppendMessage(ctx context.Context, db *gorm.DB, issueID, sender, text string) (*domain.Message, error) {
	ts := time.Now().UTC().Truncate(tsStep)

	var last []domain.Message
	err := db.WithContext(ctx).
		Select("timestamp").
		Where("issue_id = ?", issueID).
		Order("timestamp DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, err
	}
	if len(last) == 1 && !ts.After(last[0].Timestamp) {
		ts = last[0].Timestamp.UTC().Add(tsStep)
	}

	m := &domain.Message{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns an issue's thread ordered by (timestamp ASC, id ASC).
func ListMessages(ctx context.Context, db *gorm.DB, issueID string) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("issue_id = ?", issueID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
