// Package tokenizer provides model-aware token counting for usage accounting.
package tokenizer

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"gemini-relay/internal/models"
)

const fallbackEncoding = "cl100k_base"

// Message overhead constants for the chat format: every message carries a
// fixed framing cost, and every reply is primed with an assistant header.
const (
	tokensPerMessage = 3
	tokensPerName    = 1
	tokensReplyPrime = 3
)

// Estimator counts tokens for a given model. Encoders are cached per model
// and the estimator is safe for concurrent use.
//
// Models without a registered encoding fall back to the cl100k_base encoding.
// If no encoder can be loaded at all (for example in an offline environment),
// counting degrades to a rune-based approximation rather than failing, so
// usage accounting stays deterministic and non-negative.
type Estimator struct {
	mu       sync.RWMutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewEstimator constructs an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// CountText returns the number of completion tokens in text for the model.
// The result is deterministic for the same text and model, and never negative.
func (e *Estimator) CountText(text, model string) int {
	if text == "" {
		return 0
	}

	enc := e.encoderFor(model)
	if enc == nil {
		return approximateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages returns the prompt-token count for a message list, including
// the per-message framing overhead and the reply primer.
func (e *Estimator) CountMessages(model string, msgs []models.Message) int {
	total := 0
	for _, msg := range msgs {
		total += tokensPerMessage
		total += e.CountText(msg.Content, model)
		total += e.CountText(msg.Role, model)
		if msg.Name != "" {
			total += tokensPerName + e.CountText(msg.Name, model)
		}
	}
	return total + tokensReplyPrime
}

func (e *Estimator) encoderFor(model string) *tiktoken.Tiktoken {
	e.mu.RLock()
	enc, ok := e.encoders[model]
	e.mu.RUnlock()
	if ok {
		return enc
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			slog.Warn("no tokenizer encoding available, approximating token counts",
				"model", model,
				"error", err,
			)
			enc = nil
		}
	}

	// A nil entry is cached too so the lookup is not retried per call.
	e.encoders[model] = enc
	return enc
}

// approximateTokens estimates roughly four characters per token, with a floor
// of one token for non-empty text.
func approximateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
