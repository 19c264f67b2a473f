package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-relay/internal/config"
	"gemini-relay/internal/models"
	"gemini-relay/internal/translator"
)

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Models: []config.ModelConfig{
			{ID: "gemini-pro", APIStyle: "gemini"},
		},
	}
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New("gemini", testProviderConfig(baseURL), http.DefaultClient, newTestAdapter(), stubCounter{})
	if err != nil {
		t.Fatalf("constructing provider: %v", err)
	}
	return p
}

func chatRequestFixture() models.UnifiedChatRequest {
	return models.UnifiedChatRequest{
		Model: "gemini-pro",
		Messages: []models.Message{
			{Role: "user", Content: "hi"},
		},
		Options: map[string]any{"max_tokens": 16},
	}
}

func TestProviderChatOutboundRequestShape(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var gotBody chatRequest

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding outbound body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}],"role":"model"}}]}`))
	}))
	defer upstream.Close()

	p := newTestProvider(t, upstream.URL)

	if _, err := p.Chat(context.Background(), chatRequestFixture()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1beta/models/gemini-pro:generateContent" {
		t.Errorf("unexpected upstream path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected api key in query, got %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts.Text != "hi" {
		t.Errorf("unexpected outbound contents: %+v", gotBody.Contents)
	}
	if len(gotBody.SafetySettings) != 4 {
		t.Errorf("expected 4 safety settings, got %d", len(gotBody.SafetySettings))
	}
	if gotBody.GenerationConfig.TopK != 16 || gotBody.GenerationConfig.MaxOutputTokens != 16 {
		t.Errorf("unexpected generation config: %+v", gotBody.GenerationConfig)
	}
}

func TestProviderChatReturnsUnifiedResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}],"role":"model"},"finishReason":"STOP"}]}`))
	}))
	defer upstream.Close()

	p := newTestProvider(t, upstream.URL)
	req := chatRequestFixture()

	resp, err := p.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.Status)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hello" {
		t.Errorf("unexpected choices: %+v", resp.Choices)
	}
	wantPrompt := stubCounter{}.CountMessages(req.Model, req.Messages)
	if resp.Usage.PromptTokens != wantPrompt {
		t.Errorf("expected prompt tokens %d, got %d", wantPrompt, resp.Usage.PromptTokens)
	}
}

func TestProviderChatEmptyCandidatesForwardsUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer upstream.Close()

	p := newTestProvider(t, upstream.URL)

	_, err := p.Chat(context.Background(), chatRequestFixture())
	if err == nil {
		t.Fatal("expected an error for zero candidates")
	}
	relayErr, ok := err.(*translator.ErrorWithStatus)
	if !ok {
		t.Fatalf("expected *translator.ErrorWithStatus, got %T", err)
	}
	if relayErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected upstream status 503, got %d", relayErr.StatusCode)
	}
	if relayErr.Message != "No candidates returned" {
		t.Errorf("unexpected message %q", relayErr.Message)
	}
}

func TestProviderChatStreamWritesFrames(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"streamed"}],"role":"model"}}]}`))
	}))
	defer upstream.Close()

	p := newTestProvider(t, upstream.URL)
	w := newRecordingWriter()

	if err := p.ChatStream(context.Background(), chatRequestFixture(), w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(w.frames), w.frames)
	}
	var chunk translator.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(w.frames[0]), &chunk); err != nil {
		t.Fatalf("content frame is not valid JSON: %v", err)
	}
	if chunk.Choices[0].Delta.Content != "streamed" {
		t.Errorf("expected delta content %q, got %q", "streamed", chunk.Choices[0].Delta.Content)
	}
	if w.frames[1] != "[DONE]" {
		t.Errorf("expected terminal [DONE] frame, got %q", w.frames[1])
	}
}

func TestNewRejectsForeignAPIStyle(t *testing.T) {
	cfg := testProviderConfig("https://example.com")
	cfg.Models = []config.ModelConfig{{ID: "gpt-4", APIStyle: "openai"}}

	if _, err := New("gemini", cfg, http.DefaultClient, newTestAdapter(), stubCounter{}); err == nil {
		t.Fatal("expected an error for unsupported api_style")
	}
}

func TestListModelsReturnsCopy(t *testing.T) {
	p := newTestProvider(t, "https://example.com")

	first, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first[0].ID = "mutated"

	second, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[0].ID != "gemini-pro" {
		t.Errorf("ListModels leaked internal state: %+v", second)
	}
}
