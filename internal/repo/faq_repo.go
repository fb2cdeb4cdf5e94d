package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// CreateFAQ inserts an FAQ entry. embedding may be nil.
func CreateFAQ(ctx context.Context, db *gorm.DB, question, answer string, embedding []float32) (*domain.FAQ, error) {
	now := time.Now().UTC()
	f := &domain.FAQ{
		ID:        uuid.NewString(),
		Question:  question,
		Answer:    answer,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// GetFAQ fetches one entry.
func GetFAQ(ctx context.Context, db *gorm.DB, id string) (*domain.FAQ, error) {
	var f domain.FAQ
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFAQs returns all entries ordered by creation.
func ListFAQs(ctx context.Context, db *gorm.DB) ([]domain.FAQ, error) {
	out := []domain.FAQ{}
	err := db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListSearchableFAQs returns the entries that carry an embedding.
func ListSearchableFAQs(ctx context.Context, db *gorm.DB) ([]domain.FAQ, error) {
	all, err := ListFAQs(ctx, db)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if f.Searchable() {
			out = append(out, f)
		}
	}
	return out, nil
}

// SaveFAQ persists every column of f.
func SaveFAQ(ctx context.Context, db *gorm.DB, f *domain.FAQ) error {
	f.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.FAQ{}).
		Where("id = ?", f.ID).
		Select("question", "answer", "embedding", "updated_at").
		Updates(f)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFAQ removes an entry.
func DeleteFAQ(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.FAQ{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
