package domain

import "time"

// Idempotency records the outcome of a user message post, keyed by
// (scope, issue_id, key). A retried request with the same key replays the
// stored message and reply instead of invoking the responder again.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Scope     string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_scope_issue_key,priority:1"`
	IssueID   string    `gorm:"type:char(36);not null;uniqueIndex:ux_scope_issue_key,priority:2"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_scope_issue_key,priority:3"`
	MessageID string    `gorm:"type:char(36);not null"`
	ReplyID   *string   `gorm:"type:char(36)"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
