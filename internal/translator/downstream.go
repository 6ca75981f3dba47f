package translator

import (
	"time"

	"github.com/google/uuid"

	"chatbridge/internal/models"
)

const (
	chunkObject    = "chat.completion.chunk"
	responseObject = "chat.completion"

	// Terminator is the literal line ending every downstream event stream.
	Terminator = "data: [DONE]\n\n"

	// FinishReasonStop marks graceful completion, FinishReasonError a
	// degraded stream surfaced to the client as content.
	FinishReasonStop  = "stop"
	FinishReasonError = "error"
)

// StreamChunk is one downstream server-sent event. Within one response
// stream every chunk carries the same ID and Created values.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   Usage         `json:"usage"`
}

// ChunkChoice holds the incremental delta for choice index zero.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta carries the incremental message fields of one chunk.
type Delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// Usage is the per-chunk token estimate. The upstream never reports prompt
// tokens for streaming, so a fixed placeholder stands in.
type Usage struct {
	PromptTokens            int                     `json:"prompt_tokens"`
	CompletionTokens        int                     `json:"completion_tokens"`
	TotalTokens             int                     `json:"total_tokens"`
	CompletionTokensDetails CompletionTokensDetails `json:"completion_tokens_details"`
}

// CompletionTokensDetails flags reasoning output. ReasoningTokens is a
// coarse presence indicator (0 or 1), not a real count.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// ChatCompletionResponse models the downstream non-streaming response.
type ChatCompletionResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []ResponseChoice `json:"choices"`
	Usage   Usage            `json:"usage"`
}

// ResponseChoice is the single full message of a non-streaming response.
type ResponseChoice struct {
	Index        int            `json:"index"`
	Message      models.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// NewStreamID generates the identifier shared by all chunks of one stream.
func NewStreamID() string {
	return "chatcmpl-" + uuid.NewString()
}

// TranslateResponse reshapes the upstream non-streaming JSON body into one
// downstream response. Token usage is reported as zeros: the upstream
// counts are not trustworthy enough to forward.
func TranslateResponse(body []byte, model string) (ChatCompletionResponse, error) {
	payload, err := decodePayload(body)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	return ChatCompletionResponse{
		ID:      NewStreamID(),
		Object:  responseObject,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ResponseChoice{
			{
				Index: 0,
				Message: models.Message{
					Role:    "assistant",
					Content: payload.Message,
				},
				FinishReason: FinishReasonStop,
			},
		},
	}, nil
}
