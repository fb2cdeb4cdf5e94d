package handlers

import (
	"context"

	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/services"
)

// IssueService is the issue lifecycle used by both namespaces.
type IssueService interface {
	Create(ctx context.Context, chatID, username string) (*domain.Issue, error)
	ActiveByChat(ctx context.Context, chatID string) (*domain.Issue, error)
	Get(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
	Escalate(ctx context.Context, id string) (*domain.Issue, error)
	Close(ctx context.Context, id string) (*domain.Issue, error)
	PostUserMessage(ctx context.Context, id, text, idemKey string) (*services.UserMessageResult, error)
	PostAdminMessage(ctx context.Context, id, text string) (*domain.Message, *domain.Issue, error)
}

// AdminService manages the admin allow-list.
type AdminService interface {
	Register(ctx context.Context, chatID, username string) (*domain.Admin, error)
	List(ctx context.Context) ([]domain.Admin, error)
}

// FAQService manages the FAQ knowledge base.
type FAQService interface {
	List(ctx context.Context) ([]domain.FAQ, error)
	Get(ctx context.Context, id string) (*domain.FAQ, error)
	Create(ctx context.Context, question, answer string) (*domain.FAQ, error)
	Update(ctx context.Context, id, question, answer string) (*domain.FAQ, error)
	Delete(ctx context.Context, id string) error
}

// Handlers groups the public and private endpoints.
type Handlers struct {
	issues IssueService
	admins AdminService
	faqs   FAQService
}

// New binds handlers to their services. faqs may be nil when FAQ management
// is not mounted.
func New(issues IssueService, admins AdminService, faqs FAQService) *Handlers {
	return &Handlers{issues: issues, admins: admins, faqs: faqs}
}
