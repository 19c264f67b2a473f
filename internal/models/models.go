package models

// Message represents a single conversational message in the unified schema.
// Content is always a flattened plain string; multi-part inbound content is
// collapsed by the translator before it reaches this type.
type Message struct {
	Role    string
	Content string
	Name    string
}

// UnifiedChatRequest is the canonical representation of a chat completion
// request, independent of any wire format.
type UnifiedChatRequest struct {
	Model    string
	Messages []Message
	Stream   bool
	Options  map[string]any
}

// UnifiedChatResponse captures a provider response in the unified schema.
// Status carries the upstream HTTP status code so the transport layer can
// pass it through verbatim.
type UnifiedChatResponse struct {
	ID      string
	Created int64
	Model   string
	Choices []UnifiedChoice
	Usage   Usage
	Status  int
}

// UnifiedChoice is one completion option within a unified response,
// index-aligned with the upstream candidate that produced it.
type UnifiedChoice struct {
	Index        int
	Message      Message
	FinishReason string
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Model identifies a known model with provider metadata.
type Model struct {
	ID       string
	Provider string
	APIStyle string
}
