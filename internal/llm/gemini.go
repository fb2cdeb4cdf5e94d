package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Gemini implements embedding and completion on Google's Generative AI API.
type Gemini struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	timeout        time.Duration
}

// NewGemini creates a client. Close it when done.
func NewGemini(ctx context.Context, apiKey, chatModel, embeddingModel string, timeout time.Duration) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Gemini{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		timeout:        timeout,
	}, nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Embed returns the embedding vector for text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	res, err := g.client.EmbeddingModel(g.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: embed: %w", ErrEmptyResponse)
	}
	return res.Embedding.Values, nil
}

// Complete answers the last turn of req.History.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.History) == 0 {
		return "", errors.New("gemini: completion needs at least one turn")
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()

	model := g.client.GenerativeModel(g.chatModel)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	temp := float32(req.Temperature)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}

	history, last := toContents(req.History)
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return "", fmt.Errorf("gemini: complete: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini: complete: %w", ErrEmptyResponse)
	}
	return text, nil
}

// toContents maps turns to genai history plus the parts of the final turn.
// Consecutive turns with the same role are merged because the API expects
// alternating roles.
func toContents(turns []Turn) ([]*genai.Content, []genai.Part) {
	var contents []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(t.Text))
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}
	last := contents[len(contents)-1]
	return contents[:len(contents)-1], last.Parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(b.String())
}
