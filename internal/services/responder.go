// Package services – Responder
//
// Responder is the automatic reply policy. For a user message in an open
// issue it embeds the text, grounds the prompt in the most similar FAQ
// entries, replays the thread to the completion model, and appends the
// answer as a "GPT" message. Issues in manual or closed mode get no reply.
package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-desk/internal/changefeed"
	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/llm"
	"github.com/tbourn/go-support-desk/internal/repo"
)

// EmbeddingService turns text into a semantic vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionService generates the next assistant turn.
type CompletionService interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Responder defaults.
const (
	DefaultThreshold   = 0.7
	DefaultTopK        = 5
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// Responder implements the automatic reply policy.
type Responder struct {
	DB         *gorm.DB
	Embeddings EmbeddingService
	Completion CompletionService
	Feed       changefeed.Publisher

	SystemPrompt string
	Threshold    float64 // zero means DefaultThreshold
	TopK         int
	MaxTokens    int
	Temperature  float64
}

// Respond produces and persists a reply to msg, or returns (nil, nil) when
// the issue is not in automatic mode. Embedding or completion failures are
// wrapped in ErrResponderUnavailable and leave no reply behind.
func (r *Responder) Respond(ctx context.Context, issue *domain.Issue, msg *domain.Message) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/Responder").Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("issue.id", issue.ID),
			attribute.String("issue.status", string(issue.Status)),
		),
	)
	defer span.End()

	if !issue.Status.AutoReplies() {
		return nil, nil
	}

	vec, err := r.Embeddings.Embed(ctx, msg.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrResponderUnavailable, err)
	}
	faqs, err := repo.ListSearchableFAQs(ctx, r.DB)
	if err != nil {
		return nil, err
	}
	matches := topMatches(vec, faqs, r.threshold(), r.topK())
	span.SetAttributes(attribute.Int("faq.matches", len(matches)))

	history, err := repo.ListMessages(ctx, r.DB, issue.ID)
	if err != nil {
		return nil, err
	}

	text, err := r.Completion.Complete(ctx, r.BuildRequest(matches, history))
	if err != nil {
		return nil, fmt.Errorf("%w: complete: %v", ErrResponderUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrResponderUnavailable)
	}

	var reply *domain.Message
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetIssueForUpdate(ctx, tx, issue.ID)
		if err != nil {
			return err
		}
		// An admin took over or the issue closed while the model was working.
		if !cur.Status.AutoReplies() {
			return nil
		}
		reply, err = repo.AppendMessage(ctx, tx, issue.ID, domain.SenderGPT, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		span.SetAttributes(attribute.Bool("reply.dropped", true))
		return nil, nil
	}
	publishMessage(ctx, r.Feed, reply)
	return reply, nil
}

// BuildRequest assembles the completion prompt: the system instruction with
// matched FAQ pairs appended, followed by the whole thread in order.
// "GPT" messages become assistant turns; everything else is a user turn.
func (r *Responder) BuildRequest(matches []FAQMatch, history []domain.Message) llm.Request {
	var sys strings.Builder
	sys.WriteString(r.SystemPrompt)
	if len(matches) > 0 {
		sys.WriteString("\n\nUse these FAQ entries when they answer the question:\n")
		for _, m := range matches {
			fmt.Fprintf(&sys, "\nQ: %s\nA: %s\n", m.FAQ.Question, m.FAQ.Answer)
		}
	}

	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if domain.KindOf(m.Sender) == domain.SenderKindAI {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Text})
	}

	return llm.Request{
		System:      strings.TrimSpace(sys.String()),
		History:     turns,
		MaxTokens:   r.maxTokens(),
		Temperature: r.temperature(),
	}
}

func (r *Responder) threshold() float64 {
	if r.Threshold <= 0 {
		return DefaultThreshold
	}
	return r.Threshold
}

func (r *Responder) topK() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}
	return r.TopK
}

func (r *Responder) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

func (r *Responder) temperature() float64 {
	if r.Temperature <= 0 {
		return DefaultTemperature
	}
	return r.Temperature
}
