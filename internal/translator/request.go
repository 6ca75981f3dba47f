package translator

import (
	"context"

	"github.com/google/uuid"

	"chatbridge/internal/catalog"
	"chatbridge/internal/models"
	"chatbridge/internal/session"
)

// Sampling defaults substituted when the downstream request omits a value.
const (
	defaultMaxTokens        = 4000
	defaultTemperature      = 0.7
	defaultTopP             = 0.7
	defaultFrequencyPenalty = 0
	fixedTopK               = 50
)

// ChatRequest models the downstream /v1/chat/completions payload. Message
// content, roles, and numeric ranges are passed through unvalidated.
type ChatRequest struct {
	Model            string           `json:"model"`
	Messages         []models.Message `json:"messages"`
	Stream           bool             `json:"stream"`
	MaxTokens        *int             `json:"max_tokens"`
	Temperature      *float64         `json:"temperature"`
	TopP             *float64         `json:"top_p"`
	FrequencyPenalty *float64         `json:"frequency_penalty"`
}

// Translator converts downstream chat requests into the upstream shape.
type Translator struct {
	table    *catalog.Table
	sessions *session.Resolver
}

// New constructs a request translator.
func New(table *catalog.Table, sessions *session.Resolver) *Translator {
	return &Translator{table: table, sessions: sessions}
}

// TranslateRequest builds the upstream request for one downstream call. A
// fresh chat id is generated per call; the conversation id is resolved (and
// created on first use) from the credential. Unknown models fall back to the
// default descriptor rather than failing.
func (t *Translator) TranslateRequest(ctx context.Context, credential string, req ChatRequest) (models.UpstreamRequest, error) {
	conversationID, err := t.sessions.GetOrCreate(ctx, credential, firstUserContent(req.Messages))
	if err != nil {
		return models.UpstreamRequest{}, err
	}

	desc := t.table.Resolve(req.Model)

	messages := make([]models.UpstreamMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, models.UpstreamMessage{
			Role:    m.Role,
			Message: m.Content,
		})
	}

	return models.UpstreamRequest{
		ChatID:           uuid.NewString(),
		ConversationID:   conversationID,
		KnowledgeBaseID:  nil,
		Messages:         messages,
		ModelID:          desc.UpstreamID,
		Model:            desc.Name,
		ModelProvider:    desc.Provider,
		MaxTokens:        intOr(req.MaxTokens, defaultMaxTokens),
		Temperature:      floatOr(req.Temperature, defaultTemperature),
		TopP:             floatOr(req.TopP, defaultTopP),
		FrequencyPenalty: floatOr(req.FrequencyPenalty, defaultFrequencyPenalty),
		TopK:             fixedTopK,
		Stream:           req.Stream,
	}, nil
}

func firstUserContent(messages []models.Message) string {
	for _, m := range messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
