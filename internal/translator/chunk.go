package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatbridge/internal/metrics"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"

	// upstreamErrorPrefix marks an error-text event in the upstream stream.
	upstreamErrorPrefix = "ERROR:"

	// placeholderPromptTokens stands in for the prompt token count the
	// upstream never reports during streaming.
	placeholderPromptTokens = 6

	// diagnosticTextLimit caps how much offending upstream text a
	// diagnostic event may embed.
	diagnosticTextLimit = 200
)

type eventKind int

const (
	eventData eventKind = iota
	eventTerminator
	eventErrorText
	eventUnparseable
)

// upstreamEvent is one decoded unit of the upstream stream: a terminator, an
// error-text marker, a structured data payload, or an unparseable fallback.
type upstreamEvent struct {
	kind     eventKind
	payload  upstreamPayload
	raw      string
	parseErr error
}

// upstreamPayload is the structured upstream event shape.
type upstreamPayload struct {
	Message   string `json:"message"`
	Reasoning string `json:"reasoning"`
	Done      bool   `json:"done"`
	UsedToken int    `json:"usedToken"`
}

func classify(text string) upstreamEvent {
	if text == doneMarker {
		return upstreamEvent{kind: eventTerminator, raw: text}
	}
	if strings.HasPrefix(text, upstreamErrorPrefix) {
		return upstreamEvent{kind: eventErrorText, raw: text}
	}

	var payload upstreamPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return upstreamEvent{kind: eventUnparseable, raw: text, parseErr: err}
	}
	return upstreamEvent{kind: eventData, payload: payload, raw: text}
}

func decodePayload(body []byte) (upstreamPayload, error) {
	var payload upstreamPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return upstreamPayload{}, fmt.Errorf("decode upstream completion body: %w", err)
	}
	return payload, nil
}

// TranslateChunk converts one reframed upstream event into downstream event
// text. An empty result means the event produced nothing. It never fails
// outward: every failure path degrades into a diagnostic content event so an
// internal translation fault can never abort the stream.
func TranslateChunk(raw, streamID string, created int64, model string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(strings.TrimPrefix(text, dataPrefix))
	if text == "" {
		return ""
	}

	ev := classify(text)
	switch ev.kind {
	case eventTerminator:
		return Terminator

	case eventErrorText:
		return encodeChunk(errorChunk(ev.raw, streamID, created, model))

	case eventUnparseable:
		metrics.TranslationFaultsTotal.Inc()
		content := fmt.Sprintf("failed to parse upstream event: %v; text: %s", ev.parseErr, truncate(ev.raw, diagnosticTextLimit))
		return encodeChunk(diagnosticChunk(content, streamID, created, model))

	default:
		return encodeChunk(dataChunk(ev.payload, streamID, created, model))
	}
}

// FaultChunk reports a transport-level fault to the client as a final
// content event with the error finish reason.
func FaultChunk(err error, streamID string, created int64, model string) string {
	metrics.TranslationFaultsTotal.Inc()
	content := fmt.Sprintf("upstream stream failed: %v", err)
	return encodeChunk(errorChunk(content, streamID, created, model))
}

func dataChunk(payload upstreamPayload, streamID string, created int64, model string) StreamChunk {
	var finish *string
	if payload.Done {
		reason := FinishReasonStop
		finish = &reason
	}

	reasoningTokens := 0
	if payload.Reasoning != "" {
		reasoningTokens = 1
	}

	return StreamChunk{
		ID:      streamID,
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{
			{
				Index: 0,
				Delta: Delta{
					Role:             "assistant",
					Content:          payload.Message,
					ReasoningContent: payload.Reasoning,
				},
				FinishReason: finish,
			},
		},
		Usage: Usage{
			PromptTokens:     placeholderPromptTokens,
			CompletionTokens: payload.UsedToken,
			TotalTokens:      payload.UsedToken + placeholderPromptTokens,
			CompletionTokensDetails: CompletionTokensDetails{
				ReasoningTokens: reasoningTokens,
			},
		},
	}
}

func errorChunk(content, streamID string, created int64, model string) StreamChunk {
	reason := FinishReasonError
	return StreamChunk{
		ID:      streamID,
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{
			{
				Index:        0,
				Delta:        Delta{Role: "assistant", Content: content},
				FinishReason: &reason,
			},
		},
		Usage: Usage{
			PromptTokens:     placeholderPromptTokens,
			CompletionTokens: 0,
			TotalTokens:      placeholderPromptTokens,
		},
	}
}

func diagnosticChunk(content, streamID string, created int64, model string) StreamChunk {
	chunk := errorChunk(content, streamID, created, model)
	chunk.Choices[0].FinishReason = nil
	return chunk
}

func encodeChunk(chunk StreamChunk) string {
	data, err := json.Marshal(chunk)
	if err != nil {
		// Should be unreachable for these types; still, the stream must
		// receive a well-formed event rather than a fault.
		return fmt.Sprintf("data: {\"id\":%q,\"object\":%q,\"created\":%d,\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n",
			chunk.ID, chunkObject, chunk.Created, chunk.Model, fmt.Sprintf("failed to encode downstream event: %v", err))
	}
	return "data: " + string(data) + "\n\n"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
