package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gemini-relay/internal/config"
	"gemini-relay/internal/models"
	"gemini-relay/internal/observability"
	"gemini-relay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "gemini-relay/0.1"
	generateAction  = "generateContent"
)

// Provider performs the upstream Gemini call and hands the completed
// response (or live body handle) to the adapter. It does not retry; fallback
// across credentials belongs to the surrounding system.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	headers map[string]string
	client  *http.Client
	models  []models.Model
	adapter *Adapter
	counter PromptCounter
}

// New constructs a Gemini provider instance.
func New(name string, cfg config.ProviderConfig, client *http.Client, adapter *Adapter, counter PromptCounter) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if adapter == nil {
		return nil, errors.New("adapter must not be nil")
	}
	if counter == nil {
		return nil, errors.New("token counter must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	modelsList := make([]models.Model, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		if model.APIStyle != "gemini" {
			return nil, fmt.Errorf("gemini provider %q received model %q with unsupported api_style %q", name, model.ID, model.APIStyle)
		}
		modelsList = append(modelsList, models.Model{
			ID:       model.ID,
			Provider: name,
			APIStyle: model.APIStyle,
		})
	}

	return &Provider{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		headers: cfg.Headers,
		client:  client,
		models:  modelsList,
		adapter: adapter,
		counter: counter,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) ListModels(ctx context.Context) ([]models.Model, error) {
	result := make([]models.Model, len(p.models))
	copy(result, p.models)
	return result, nil
}

// Chat performs a buffered chat completion: translate out, call upstream once,
// translate back with usage accounting.
func (p *Provider) Chat(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
	httpResp, err := p.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	// The adapter owns the first close; this outer close is the tolerated
	// idempotent second release.
	guard := newCloseGuard(httpResp.Body)
	defer guard.Close()

	promptTokens := p.counter.CountMessages(req.Model, req.Messages)

	resp, relayErr := p.adapter.RelayResponse(guard, httpResp.StatusCode, req.Model, promptTokens)
	if relayErr != nil {
		return nil, relayErr
	}

	observability.RelayTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	observability.RelayTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return resp, nil
}

// ChatStream performs the same single upstream call and emulates incremental
// delivery of the buffered result. The upstream status is not inspected here:
// streaming tolerates empty or undecodable bodies by ending the stream with
// its terminal frame only.
func (p *Provider) ChatStream(ctx context.Context, req models.UnifiedChatRequest, w provider.FrameWriter) error {
	httpResp, err := p.generate(ctx, req)
	if err != nil {
		return err
	}

	guard := newCloseGuard(httpResp.Body)
	defer guard.Close()

	text, relayErr := p.adapter.RelayStream(ctx, guard, w)
	if relayErr != nil {
		return relayErr
	}

	completionTokens := p.counter.CountText(text, req.Model)
	observability.RelayTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(completionTokens))

	return nil
}

func (p *Provider) generate(ctx context.Context, req models.UnifiedChatRequest) (*http.Response, error) {
	payload := p.adapter.TranslateRequest(req)

	httpReq, err := p.newRequest(ctx, req.Model, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini chat request failed: %w", err)
	}
	return httpResp, nil
}

func (p *Provider) newRequest(ctx context.Context, model string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, model, generateAction)
	if p.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}
