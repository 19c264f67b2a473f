package tokenizer

import (
	"strings"
	"testing"

	"gemini-relay/internal/models"
)

func TestCountTextEmptyIsZero(t *testing.T) {
	e := NewEstimator()
	if got := e.CountText("", "gemini-pro"); got != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestCountTextNonEmptyIsPositive(t *testing.T) {
	e := NewEstimator()
	for _, text := range []string{"a", "hello", "hello world", strings.Repeat("word ", 50)} {
		if got := e.CountText(text, "gemini-pro"); got < 1 {
			t.Errorf("expected at least 1 token for %q, got %d", text, got)
		}
	}
}

func TestCountTextIsDeterministic(t *testing.T) {
	e := NewEstimator()
	text := "the quick brown fox jumps over the lazy dog"

	first := e.CountText(text, "gemini-pro")
	for i := 0; i < 5; i++ {
		if got := e.CountText(text, "gemini-pro"); got != first {
			t.Fatalf("count changed between calls: %d then %d", first, got)
		}
	}
}

func TestCountTextLongerTextCostsMore(t *testing.T) {
	e := NewEstimator()
	short := e.CountText("hello", "gemini-pro")
	long := e.CountText(strings.Repeat("hello world, this is a longer passage. ", 20), "gemini-pro")
	if long <= short {
		t.Errorf("expected longer text to cost more tokens: short=%d long=%d", short, long)
	}
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	e := NewEstimator()
	msgs := []models.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}

	contentOnly := 0
	for _, m := range msgs {
		contentOnly += e.CountText(m.Content, "gemini-pro")
	}

	total := e.CountMessages("gemini-pro", msgs)
	if total <= contentOnly {
		t.Errorf("expected message framing overhead: content-only=%d total=%d", contentOnly, total)
	}
}

func TestCountMessagesNameAddsTokens(t *testing.T) {
	e := NewEstimator()
	base := []models.Message{{Role: "user", Content: "hi"}}
	named := []models.Message{{Role: "user", Content: "hi", Name: "alice"}}

	if e.CountMessages("gemini-pro", named) <= e.CountMessages("gemini-pro", base) {
		t.Error("expected a named message to cost more tokens")
	}
}

func TestCountMessagesEmptyListIsReplyPrimerOnly(t *testing.T) {
	e := NewEstimator()
	if got := e.CountMessages("gemini-pro", nil); got != tokensReplyPrime {
		t.Errorf("expected %d tokens for empty message list, got %d", tokensReplyPrime, got)
	}
}

func TestApproximateTokensFloor(t *testing.T) {
	if got := approximateTokens("ab"); got != 1 {
		t.Errorf("expected floor of 1 token, got %d", got)
	}
	if got := approximateTokens(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("expected 10 tokens for 40 runes, got %d", got)
	}
}

func TestConcurrentCountsAreSafe(t *testing.T) {
	e := NewEstimator()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				e.CountText("concurrent access", "gemini-pro")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
