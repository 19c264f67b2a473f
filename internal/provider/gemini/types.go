package gemini

// Wire shapes for the Gemini chat contract. Field names are normative; note
// that the request side carries a single parts object while the response side
// carries a parts list.

type chatRequest struct {
	Contents         []chatContent    `json:"contents"`
	SafetySettings   []SafetySetting  `json:"safety_settings"`
	GenerationConfig generationConfig `json:"generation_config"`
}

type chatContent struct {
	Role  string    `json:"role"`
	Parts chatParts `json:"parts"`
}

type chatParts struct {
	Text string `json:"text"`
}

// SafetySetting is one category/threshold pair sent to the upstream to
// constrain content filtering.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type chatResponse struct {
	Candidates     []candidate    `json:"candidates"`
	PromptFeedback promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content       candidateContent `json:"content"`
	FinishReason  string           `json:"finishReason"`
	Index         int64            `json:"index"`
	SafetyRatings []safetyRating   `json:"safetyRatings"`
}

type candidateContent struct {
	Parts []candidatePart `json:"parts"`
	Role  string          `json:"role"`
}

type candidatePart struct {
	Text string `json:"text"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type promptFeedback struct {
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

// firstCandidateText extracts the text the relay accounts and streams: the
// first part of the first candidate. Responses without candidates or parts
// yield an empty string.
func (r *chatResponse) firstCandidateText() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}
