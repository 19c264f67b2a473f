// Package gemini adapts the neutral chat completion contract to the Gemini
// native chat contract: outbound request translation, buffered response
// translation with usage accounting, and event-stream emulation for an
// upstream that only returns finished responses.
package gemini

import (
	"gemini-relay/internal/models"
)

// Default safety settings sent with every upstream request. The list is fixed
// per request; it can only be replaced at construction.
var defaultSafetySettings = []SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

const (
	// defaultFinishReason is reported for every choice; the upstream finish
	// vocabulary is not mapped 1:1.
	defaultFinishReason = "stop"

	// defaultStreamModel is the model name stamped on emulated stream chunks.
	// It identifies the adapter rather than echoing the caller's model.
	defaultStreamModel = "gemini"
)

// TokenCounter counts completion tokens for a model. Satisfied by
// tokenizer.Estimator.
type TokenCounter interface {
	CountText(text, model string) int
}

// PromptCounter additionally counts prompt tokens over a message list.
// The adapter core never computes prompt tokens itself; the provider harness
// uses this to supply them.
type PromptCounter interface {
	TokenCounter
	CountMessages(model string, msgs []models.Message) int
}

// Options configures an Adapter. Zero values fall back to the fixed defaults
// above, so tests can override them without touching production behaviour.
type Options struct {
	SafetySettings []SafetySetting
	FinishReason   string
	StreamModel    string
	Counter        TokenCounter
}

// Adapter holds the immutable per-construction configuration of the protocol
// adapter. It keeps no per-call state and is safe for concurrent use.
type Adapter struct {
	safety       []SafetySetting
	finishReason string
	streamModel  string
	counter      TokenCounter
}

// NewAdapter constructs an Adapter, applying defaults for unset options.
// Counter must be provided; there is no usable default tokenizer.
func NewAdapter(opts Options) *Adapter {
	a := &Adapter{
		safety:       opts.SafetySettings,
		finishReason: opts.FinishReason,
		streamModel:  opts.StreamModel,
		counter:      opts.Counter,
	}
	if len(a.safety) == 0 {
		a.safety = defaultSafetySettings
	}
	if a.finishReason == "" {
		a.finishReason = defaultFinishReason
	}
	if a.streamModel == "" {
		a.streamModel = defaultStreamModel
	}
	return a
}
