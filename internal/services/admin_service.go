package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/repo"
)

// AdminService manages the registered-admin allow-list.
type AdminService struct {
	DB *gorm.DB
}

// Register adds chatID to the allow-list. Registering twice fails with
// ErrAdminExists and leaves exactly one row.
func (s *AdminService) Register(ctx context.Context, chatID, username string) (*domain.Admin, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Register",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chatID = normalizeName(chatID)
	username = normalizeName(username)
	if chatID == "" {
		return nil, ErrInvalidChatID
	}
	if username == "" {
		return nil, ErrInvalidUsername
	}
	a, err := repo.CreateAdmin(ctx, s.DB, chatID, username)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAdminExists
	}
	return a, err
}

// List returns every registered admin.
func (s *AdminService) List(ctx context.Context) ([]domain.Admin, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "List")
	defer span.End()
	return repo.ListAdmins(ctx, s.DB)
}
