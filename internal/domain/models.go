// Package domain defines the persistence models for support issues, their
// message threads, registered admins, and FAQ entries. These types are mapped
// with GORM and form the core data layer shared by the API and the bots.
package domain

import "time"

// Issue is a single support conversation tied to one requester.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ChatID: requester's chat id; at most one non-closed issue per ChatID is
//     enforced by a partial unique index created during migration.
//   - Username: requester's display name, also used as the message sender tag.
//   - Status: lifecycle status, mutated only through the state machine.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Issues are never physically deleted.
type Issue struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string      `json:"chat_id"    gorm:"type:varchar(64);not null;index:idx_issue_chat"`
	Username  string      `json:"username"   gorm:"type:varchar(255);not null"`
	Status    IssueStatus `json:"status"     gorm:"type:varchar(16);not null;default:'open';index:idx_issue_status;check:status IN ('open','manual','closed')"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Issue.
func (Issue) TableName() string { return "issues" }

// Message is one entry of an issue thread. Sender is a three-way tag:
// the requester's display name, SenderAdmin, or SenderGPT (see KindOf).
// Messages are append-only and totally ordered by Timestamp within an issue.
type Message struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	IssueID   string    `json:"issue_id"  gorm:"type:char(36);not null;index:idx_issue_msgs,priority:1"`
	Sender    string    `json:"sender"    gorm:"type:varchar(255);not null"`
	Text      string    `json:"text"      gorm:"type:text;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_issue_msgs,priority:2"`

	Issue Issue `json:"-" gorm:"foreignKey:IssueID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Admin is a registered support agent, addressed by chat id.
type Admin struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_admin_chat"`
	Username  string    `json:"username"   gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Admin.
func (Admin) TableName() string { return "admins" }

// FAQ is a question/answer pair consulted by the automatic responder.
// Embedding is recomputed whenever Question changes; an empty embedding
// means the entry is not searchable by similarity yet.
type FAQ struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Question  string    `json:"question"   gorm:"type:text;not null"`
	Answer    string    `json:"answer"     gorm:"type:text;not null"`
	Embedding []float32 `json:"-"          gorm:"type:text;serializer:json"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for FAQ.
func (FAQ) TableName() string { return "faqs" }

// Searchable reports whether the entry carries an embedding.
func (f FAQ) Searchable() bool { return len(f.Embedding) > 0 }
