// Package services – IssueService
//
// IssueService drives the issue state machine. Every operation re-reads the
// issue inside its own transaction, validates the transition against
// domain.IssueStatus.Next, and only then writes. Committed mutations are
// handed to the change feed so the notification pipeline can react.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/repo"
)

// IdempotencyScope namespaces Idempotency-Key records of public user-message posts.
const IdempotencyScope = "public_message"

// Replier produces the automatic reply for a freshly persisted user message.
type Replier interface {
	Respond(ctx context.Context, issue *domain.Issue, msg *domain.Message) (*domain.Message, error)
}

// UserMessageResult is the outcome of posting a user message.
type UserMessageResult struct {
	Message  *domain.Message
	Reply    *domain.Message // nil when no automatic reply was produced
	Replayed bool            // true when served from an idempotency record
}

// IssueService coordinates issue lifecycle operations.
type IssueService struct {
	DB        *gorm.DB
	Responder Replier              // optional; nil disables automatic replies
	Feed      changefeed.Publisher // optional; nil when the store notifies on its own

	IdempotencyTTL  time.Duration
	MaxMessageRunes int
}

// NewIssueService returns a service with default limits.
func NewIssueService(db *gorm.DB, responder Replier, feed changefeed.Publisher) *IssueService {
	return &IssueService{
		DB:              db,
		Responder:       responder,
		Feed:            feed,
		IdempotencyTTL:  24 * time.Hour,
		MaxMessageRunes: DefaultMaxMessageRunes,
	}
}

func (s *IssueService) tracer() trace.Tracer { return otel.Tracer("services/IssueService") }

// Create opens a new issue for chatID. It fails with ErrIssueAlreadyOpen when
// the requester still has a non-closed issue.
func (s *IssueService) Create(ctx context.Context, chatID, username string) (*domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, "Create", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chatID = normalizeName(chatID)
	username = normalizeName(username)
	switch {
	case chatID == "":
		return nil, ErrInvalidChatID
	case username == "":
		return nil, ErrInvalidUsername
	case domain.ReservedSender(username):
		return nil, ErrReservedUsername
	}

	is, err := repo.CreateIssue(ctx, s.DB, chatID, username)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrIssueAlreadyOpen
	}
	return is, err
}

// ActiveByChat returns the requester's non-closed issue.
func (s *IssueService) ActiveByChat(ctx context.Context, chatID string) (*domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, "ActiveByChat", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	is, err := repo.GetActiveIssueByChat(ctx, s.DB, normalizeName(chatID))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIssueNotFound
	}
	return is, err
}

// Get returns one issue.
func (s *IssueService) Get(ctx context.Context, id string) (*domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(attribute.String("issue.id", id)))
	defer span.End()

	is, err := repo.GetIssue(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIssueNotFound
	}
	return is, err
}

// List returns all issues, or those in status when it is non-empty.
func (s *IssueService) List(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, "List", trace.WithAttributes(attribute.String("issue.status", string(status))))
	defer span.End()
	return repo.ListIssues(ctx, s.DB, status)
}

// Messages returns the issue's thread in timestamp order.
func (s *IssueService) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Messages", trace.WithAttributes(attribute.String("issue.id", id)))
	defer span.End()

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, id)
}

// Escalate moves an open issue to manual mode.
func (s *IssueService) Escalate(ctx context.Context, id string) (*domain.Issue, error) {
	return s.transition(ctx, "Escalate", id, domain.TriggerEscalate)
}

// Close closes an open or manual issue.
func (s *IssueService) Close(ctx context.Context, id string) (*domain.Issue, error) {
	return s.transition(ctx, "Close", id, domain.TriggerClose)
}

func (s *IssueService) transition(ctx context.Context, op, id string, t domain.Trigger) (*domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, op, trace.WithAttributes(attribute.String("issue.id", id)))
	defer span.End()

	var before, after *domain.Issue
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := cur.Status.Next(t)
		if err != nil {
			return err
		}
		updated, err := repo.UpdateIssueStatus(ctx, tx, id, cur.Status, next)
		if err != nil {
			return mapStale(err)
		}
		before, after = cur, updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishIssue(ctx, s.Feed, before, after)
	return after, nil
}

// PostUserMessage appends a requester message and, while the issue is in
// automatic mode, the responder's reply.
//
// With a non-empty idemKey a retried call returns the stored outcome
// (Replayed=true) instead of appending and replying again. When the
// responder fails the returned result still carries the persisted user
// message alongside an error wrapping ErrResponderUnavailable.
func (s *IssueService) PostUserMessage(ctx context.Context, id, text, idemKey string) (*UserMessageResult, error) {
	ctx, span := s.tracer().Start(ctx, "PostUserMessage",
		trace.WithAttributes(
			attribute.String("issue.id", id),
			attribute.Bool("idempotent", idemKey != ""),
		),
	)
	defer span.End()

	text, err := normalizeText(text, s.MaxMessageRunes)
	if err != nil {
		return nil, err
	}

	if idemKey != "" {
		if res, err := s.replay(ctx, id, idemKey); err == nil {
			return res, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	var (
		issue *domain.Issue
		msg   *domain.Message
		rec   *domain.Idempotency
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := cur.Status.Next(domain.TriggerUserMessage); err != nil {
			return err
		}
		m, err := repo.AppendMessage(ctx, tx, id, cur.Username, text)
		if err != nil {
			return err
		}
		if idemKey != "" {
			r, err := repo.CreateIdempotency(ctx, tx, IdempotencyScope, id, idemKey, m.ID, http.StatusOK, s.ttl())
			if err != nil {
				return err
			}
			rec = r
		}
		issue, msg = cur, m
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won; serve its outcome.
		return s.replay(ctx, id, idemKey)
	}
	if err != nil {
		return nil, err
	}
	publishMessage(ctx, s.Feed, msg)

	res := &UserMessageResult{Message: msg}
	if s.Responder == nil {
		return res, nil
	}
	reply, err := s.Responder.Respond(ctx, issue, msg)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	res.Reply = reply
	if reply != nil && rec != nil {
		if err := repo.SetIdempotencyReply(ctx, s.DB, rec.ID, reply.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *IssueService) replay(ctx context.Context, id, key string) (*UserMessageResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, IdempotencyScope, id, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, err
	}
	res := &UserMessageResult{Message: m, Replayed: true}
	if rec.ReplyID != nil {
		if r, err := repo.GetMessage(ctx, s.DB, *rec.ReplyID); err == nil {
			res.Reply = r
		}
	}
	return res, nil
}

// PostAdminMessage appends an admin message. An open issue is switched to
// manual mode in the same transaction.
func (s *IssueService) PostAdminMessage(ctx context.Context, id, text string) (*domain.Message, *domain.Issue, error) {
	ctx, span := s.tracer().Start(ctx, "PostAdminMessage", trace.WithAttributes(attribute.String("issue.id", id)))
	defer span.End()

	text, err := normalizeText(text, s.MaxMessageRunes)
	if err != nil {
		return nil, nil, err
	}

	var (
		before, after *domain.Issue
		msg           *domain.Message
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := cur.Status.Next(domain.TriggerAdminReply)
		if err != nil {
			return err
		}
		before, after = cur, cur
		if next != cur.Status {
			if after, err = repo.UpdateIssueStatus(ctx, tx, id, cur.Status, next); err != nil {
				return mapStale(err)
			}
		}
		msg, err = repo.AppendMessage(ctx, tx, id, domain.SenderAdmin, text)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	publishIssue(ctx, s.Feed, before, after)
	publishMessage(ctx, s.Feed, msg)
	return msg, after, nil
}

func (s *IssueService) lockIssue(ctx context.Context, tx *gorm.DB, id string) (*domain.Issue, error) {
	is, err := repo.GetIssueForUpdate(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIssueNotFound
	}
	return is, err
}

func (s *IssueService) ttl() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func mapStale(err error) error {
	if errors.Is(err, repo.ErrStale) {
		return ErrConcurrentUpdate
	}
	return err
}
