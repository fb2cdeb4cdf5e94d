// Package changefeed carries row-level store mutations to interested
// processes. A Change is the JSON row image of an issue update or a message
// insert, produced either by Postgres NOTIFY triggers (PGListener) or by the
// service layer after commit (Broker, for single-process deployments).
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// Watched relations.
const (
	TableIssues   = "issues"
	TableMessages = "messages"
)

// Op is the kind of row mutation.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Change is a single row mutation.
type Change struct {
	Table     string          `json:"table"`
	Op        Op              `json:"op"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	// Truncated is set when the producer dropped the message text to fit
	// the transport; consumers must re-read the row.
	Truncated bool `json:"truncated,omitempty"`
}

// Source yields changes until ctx is cancelled, then closes the channel.
type Source interface {
	Changes(ctx context.Context) (<-chan Change, error)
}

// Publisher accepts changes produced after a successful commit.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Nop discards every change. It is the publisher used when the store emits
// its own notifications.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

// ErrMalformed wraps payloads that cannot be decoded into a Change.
var ErrMalformed = errors.New("malformed change")

// Decode parses a NOTIFY payload.
func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.Table == "" || c.Op == "" || len(c.Record) == 0 {
		return Change{}, fmt.Errorf("%w: missing table, op or record", ErrMalformed)
	}
	return c, nil
}

// MessageInserted builds the change for a newly persisted message.
func MessageInserted(m domain.Message) (Change, error) {
	rec, err := json.Marshal(m)
	if err != nil {
		return Change{}, err
	}
	return Change{Table: TableMessages, Op: OpInsert, Record: rec}, nil
}

// IssueUpdated builds the change for an issue row update.
func IssueUpdated(old, cur domain.Issue) (Change, error) {
	rec, err := json.Marshal(cur)
	if err != nil {
		return Change{}, err
	}
	prev, err := json.Marshal(old)
	if err != nil {
		return Change{}, err
	}
	return Change{Table: TableIssues, Op: OpUpdate, Record: rec, OldRecord: prev}, nil
}

// Message decodes Record as a message row.
func (c Change) Message() (domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal(c.Record, &m); err != nil {
		return m, fmt.Errorf("%w: message record: %v", ErrMalformed, err)
	}
	return m, nil
}

// Issue decodes Record as an issue row.
func (c Change) Issue() (domain.Issue, error) {
	var is domain.Issue
	if err := json.Unmarshal(c.Record, &is); err != nil {
		return is, fmt.Errorf("%w: issue record: %v", ErrMalformed, err)
	}
	return is, nil
}

// OldIssue decodes OldRecord as an issue row. ok is false when the producer
// sent no previous image.
func (c Change) OldIssue() (is domain.Issue, ok bool, err error) {
	if len(c.OldRecord) == 0 || string(c.OldRecord) == "null" {
		return is, false, nil
	}
	if err := json.Unmarshal(c.OldRecord, &is); err != nil {
		return is, false, fmt.Errorf("%w: old issue record: %v", ErrMalformed, err)
	}
	return is, true, nil
}

// Key identifies a change for de-duplication. Redelivery of the same row
// mutation yields the same key.
func (c Change) Key() string {
	var head struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(c.Record, &head)
	k := c.Table + ":" + string(c.Op) + ":" + head.ID
	if c.Table == TableIssues && c.Op == OpUpdate {
		var prev struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(c.OldRecord, &prev)
		k += ":" + prev.Status + "->" + head.Status
	}
	return k
}
