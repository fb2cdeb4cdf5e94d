package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/repo"
)

// FAQService manages FAQ entries and keeps their embeddings in step with the
// question text. An entry whose embedding cannot be computed is stored
// without one and is skipped by similarity search until reindexed.
type FAQService struct {
	DB         *gorm.DB
	Embeddings EmbeddingService // optional
}

func (s *FAQService) tracer() trace.Tracer { return otel.Tracer("services/FAQService") }

// List returns all entries.
func (s *FAQService) List(ctx context.Context) ([]domain.FAQ, error) {
	ctx, span := s.tracer().Start(ctx, "List")
	defer span.End()
	return repo.ListFAQs(ctx, s.DB)
}

// Get returns one entry.
func (s *FAQService) Get(ctx context.Context, id string) (*domain.FAQ, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(attribute.String("faq.id", id)))
	defer span.End()

	f, err := repo.GetFAQ(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFAQNotFound
	}
	return f, err
}

// Create stores a new entry and embeds its question.
func (s *FAQService) Create(ctx context.Context, question, answer string) (*domain.FAQ, error) {
	ctx, span := s.tracer().Start(ctx, "Create")
	defer span.End()

	question, answer = normalizeName(question), normalizeName(answer)
	if question == "" || answer == "" {
		return nil, ErrEmptyFAQ
	}
	return repo.CreateFAQ(ctx, s.DB, question, answer, s.embed(ctx, question))
}

// Update replaces question and answer. The embedding is recomputed only when
// the question text changes.
func (s *FAQService) Update(ctx context.Context, id, question, answer string) (*domain.FAQ, error) {
	ctx, span := s.tracer().Start(ctx, "Update", trace.WithAttributes(attribute.String("faq.id", id)))
	defer span.End()

	question, answer = normalizeName(question), normalizeName(answer)
	if question == "" || answer == "" {
		return nil, ErrEmptyFAQ
	}
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Question != question {
		f.Question = question
		f.Embedding = s.embed(ctx, question)
	}
	f.Answer = answer
	if err := repo.SaveFAQ(ctx, s.DB, f); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFAQNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes an entry.
func (s *FAQService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer().Start(ctx, "Delete", trace.WithAttributes(attribute.String("faq.id", id)))
	defer span.End()

	err := repo.DeleteFAQ(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrFAQNotFound
	}
	return err
}

// Reindex embeds every entry that has no embedding yet and reports how many
// were updated. Failures for individual entries are collected, not fatal.
func (s *FAQService) Reindex(ctx context.Context) (int, error) {
	ctx, span := s.tracer().Start(ctx, "Reindex")
	defer span.End()

	if s.Embeddings == nil {
		return 0, errors.New("reindex: no embedding service configured")
	}
	all, err := repo.ListFAQs(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for i := range all {
		f := &all[i]
		if f.Searchable() {
			continue
		}
		vec, err := s.Embeddings.Embed(ctx, f.Question)
		if err != nil {
			errs = append(errs, fmt.Errorf("faq %s: %w", f.ID, err))
			continue
		}
		f.Embedding = vec
		if err := repo.SaveFAQ(ctx, s.DB, f); err != nil {
			errs = append(errs, fmt.Errorf("faq %s: %w", f.ID, err))
			continue
		}
		n++
	}
	span.SetAttributes(attribute.Int("faq.reindexed", n))
	return n, errors.Join(errs...)
}

func (s *FAQService) embed(ctx context.Context, question string) []float32 {
	if s.Embeddings == nil {
		return nil
	}
	vec, err := s.Embeddings.Embed(ctx, question)
	if err != nil {
		log.Warn().Err(err).Msg("faq embedding failed; entry stored without embedding")
		return nil
	}
	return vec
}
