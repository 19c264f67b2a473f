package gemini

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"gemini-relay/internal/models"
	"gemini-relay/internal/translator"
)

// TranslateRequest converts a unified chat request into the Gemini request
// shape. Message order and roles are preserved end-to-end. topK is populated
// from max_tokens, matching the contract consumers already depend on.
func (a *Adapter) TranslateRequest(req models.UnifiedChatRequest) chatRequest {
	temperature, _ := extractFloat(req.Options, "temperature")
	topP, _ := extractFloat(req.Options, "top_p")
	maxTokens, _ := extractInt(req.Options, "max_tokens")

	out := chatRequest{
		Contents:       make([]chatContent, 0, len(req.Messages)),
		SafetySettings: a.safety,
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			TopP:            topP,
			TopK:            maxTokens,
			MaxOutputTokens: maxTokens,
		},
	}

	for _, message := range req.Messages {
		out.Contents = append(out.Contents, chatContent{
			Role:  message.Role,
			Parts: chatParts{Text: message.Content},
		})
	}

	return out
}

// RelayResponse consumes a buffered upstream response body and produces the
// unified chat response, including usage accounting. The body is closed here,
// exactly once through the surrounding close guard; callers may close again
// harmlessly.
//
// An upstream response with zero candidates is a semantic failure carrying
// the upstream's status, never an empty success.
func (a *Adapter) RelayResponse(body io.ReadCloser, upstreamStatus int, model string, promptTokens int) (*models.UnifiedChatResponse, *translator.ErrorWithStatus) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, wrapError(err, codeReadBody)
	}
	if err := body.Close(); err != nil {
		return nil, wrapError(err, codeCloseBody)
	}

	var upstream chatResponse
	if err := json.Unmarshal(raw, &upstream); err != nil {
		return nil, wrapError(err, codeDecodeBody)
	}

	if len(upstream.Candidates) == 0 {
		return nil, emptyResultError(upstreamStatus)
	}

	resp := a.translateResponse(&upstream, model)
	resp.Status = upstreamStatus

	completionTokens := a.counter.CountText(upstream.firstCandidateText(), model)
	resp.Usage = models.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}

	return resp, nil
}

// translateResponse builds one choice per candidate, index-aligned. Only the
// first content part of each candidate is read; additional parts are ignored.
func (a *Adapter) translateResponse(upstream *chatResponse, model string) *models.UnifiedChatResponse {
	choices := make([]models.UnifiedChoice, 0, len(upstream.Candidates))
	for i, cand := range upstream.Candidates {
		var content string
		if len(cand.Content.Parts) > 0 {
			content = cand.Content.Parts[0].Text
		}
		choices = append(choices, models.UnifiedChoice{
			Index: i,
			Message: models.Message{
				Role:    "assistant",
				Content: content,
			},
			FinishReason: a.finishReason,
		})
	}

	return &models.UnifiedChatResponse{
		ID:      responseID(),
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
	}
}

func responseID() string {
	return "chatcmpl-" + uuid.NewString()
}
