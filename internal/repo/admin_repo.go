package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// CreateAdmin registers chatID. A second registration returns ErrDuplicate
// and leaves the existing row untouched.
func CreateAdmin(ctx context.Context, db *gorm.DB, chatID, username string) (*domain.Admin, error) {
	a := &domain.Admin{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// ListAdmins returns every registered admin in registration order.
func ListAdmins(ctx context.Context, db *gorm.DB) ([]domain.Admin, error) {
	out := []domain.Admin{}
	err := db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// GetAdminByChat looks an admin up by chat id.
func GetAdminByChat(ctx context.Context, db *gorm.DB, chatID string) (*domain.Admin, error) {
	var a domain.Admin
	if err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
