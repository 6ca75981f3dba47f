package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"chatbridge/internal/config"
	"chatbridge/internal/models"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"

	conversationPath = "/api/v1/conversations"
	completionPath   = "/api/v1/chat/completions"

	conversationType = "chat"
	successCode      = 0

	maxErrorBodyBytes = 64 * 1024
)

// Client speaks to the single upstream chat service: conversation creation
// and chat completion. The caller's credential is passed through verbatim on
// every request together with the browser-impersonation headers the
// upstream requires.
type Client struct {
	cfg             config.UpstreamConfig
	client          *http.Client
	conversationURL string
	completionURL   string
}

// New constructs an upstream client. The HTTP client must not carry an
// overall timeout: streaming responses outlive any sane fixed deadline, so
// bounded calls apply their own context timeouts instead.
func New(cfg config.UpstreamConfig, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("upstream base url must not be empty")
	}

	return &Client{
		cfg:             cfg,
		client:          client,
		conversationURL: baseURL + conversationPath,
		completionURL:   baseURL + completionPath,
	}, nil
}

type conversationRequest struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

type conversationResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		ConversationID string `json:"conversationId"`
	} `json:"result"`
}

// CreateConversation registers a new upstream conversation and returns its
// id. Both a non-2xx HTTP status and a non-success code embedded in the
// response body fail the call; it is never retried.
func (c *Client) CreateConversation(ctx context.Context, credential, title string) (string, error) {
	if c.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout())
		defer cancel()
	}

	payload := conversationRequest{Type: conversationType, Title: title}
	req, err := c.newRequest(ctx, credential, c.conversationURL, payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream conversation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", NewStatusError(resp)
	}

	var parsed conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upstream conversation response: %w", err)
	}
	if parsed.Code != successCode {
		return "", fmt.Errorf("upstream conversation creation rejected: code %d: %s", parsed.Code, parsed.Message)
	}
	if parsed.Result.ConversationID == "" {
		return "", errors.New("upstream conversation response missing conversation id")
	}
	return parsed.Result.ConversationID, nil
}

// ChatCompletion posts the translated request and returns the raw upstream
// response. The caller owns the body and must check the status code; the
// body is the SSE stream when req.Stream is set.
func (c *Client) ChatCompletion(ctx context.Context, credential string, req models.UpstreamRequest) (*http.Response, error) {
	httpReq, err := c.newRequest(ctx, credential, c.completionURL, req)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		httpReq.Header.Set("Accept", contentTypeSSE)
	} else {
		httpReq.Header.Set("Accept", contentTypeJSON)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream completion request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, credential, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct upstream request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Authorization", credential)
	req.Header.Set("Origin", c.cfg.Origin)
	req.Header.Set("Referer", c.cfg.Referer)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	return req, nil
}

// StatusError reports a non-success upstream HTTP response so handlers can
// propagate the upstream status to the client.
type StatusError struct {
	Status     int
	StatusText string
	Message    string
	Details    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s: %s", e.Status, e.StatusText, e.Message)
}

// NewStatusError drains up to 64 KiB of the response body and extracts the
// most descriptive error message it can find. Upstream error bodies are
// loosely shaped, so fields are probed rather than decoded strictly.
func NewStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Message:    "upstream request failed",
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(body) == 0 {
		return statusErr
	}
	statusErr.Details = strings.TrimSpace(string(body))

	for _, path := range []string{"error.message", "message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			statusErr.Message = v.Str
			break
		}
	}
	return statusErr
}
