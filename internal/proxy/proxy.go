package proxy

import (
	"context"
	"net/http"

	"chatbridge/internal/translator"
	"chatbridge/internal/upstream"
)

// Proxy orchestrates one downstream request: translation into the upstream
// shape, then the upstream chat-completion call.
type Proxy struct {
	translator *translator.Translator
	client     *upstream.Client
}

// New constructs a proxy from a request translator and an upstream client.
func New(tr *translator.Translator, client *upstream.Client) *Proxy {
	return &Proxy{translator: tr, client: client}
}

// Chat translates the request and opens the upstream call. The caller owns
// the returned response body; for streaming requests it is the raw SSE
// stream. A non-2xx upstream status is surfaced as *upstream.StatusError.
func (p *Proxy) Chat(ctx context.Context, credential string, req translator.ChatRequest) (*http.Response, error) {
	upstreamReq, err := p.translator.TranslateRequest(ctx, credential, req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.ChatCompletion(ctx, credential, upstreamReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := upstream.NewStatusError(resp)
		resp.Body.Close()
		return nil, statusErr
	}
	return resp, nil
}
