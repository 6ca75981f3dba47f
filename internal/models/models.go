package models

// Message represents a single conversational message in the downstream schema.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelDescriptor identifies an upstream model with provider metadata.
type ModelDescriptor struct {
	UpstreamID string
	Name       string
	Provider   string
}

// UpstreamMessage mirrors Message using the upstream per-message field name.
type UpstreamMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// UpstreamRequest is the body sent to the upstream chat-completion endpoint.
type UpstreamRequest struct {
	ChatID           string            `json:"chatId"`
	ConversationID   string            `json:"conversationId"`
	KnowledgeBaseID  *string           `json:"knowledgeBaseId"`
	Messages         []UpstreamMessage `json:"messages"`
	ModelID          string            `json:"modelId"`
	Model            string            `json:"model"`
	ModelProvider    string            `json:"modelProvider"`
	MaxTokens        int               `json:"maxTokens"`
	Temperature      float64           `json:"temperature"`
	TopP             float64           `json:"topP"`
	FrequencyPenalty float64           `json:"frequencyPenalty"`
	TopK             int               `json:"topK"`
	Stream           bool              `json:"stream"`
}
