package team

import (
	"encoding/json"
	"strings"
)

type rawSuggestion struct {
	File       string `json:"file"`
	Line       *int   `json:"line"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

type rawReview struct {
	Verdict     string          `json:"verdict"`
	Suggestions []rawSuggestion `json:"suggestions"`
}

// ParseReviewResponse extracts a ReviewResult from a reviewer's free-form
// response by slicing from the first '{' to the last '}' and parsing that
// as JSON. Unrecognized verdict strings map to Failed. A suggestion entry
// missing file/issue/suggestion text is dropped rather than failing the
// whole parse. Returns false if no JSON object can be found or parsed.
func ParseReviewResponse(response string) (ReviewResult, bool) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return ReviewResult{}, false
	}

	var raw rawReview
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return ReviewResult{}, false
	}

	verdict := Failed
	switch raw.Verdict {
	case "approved":
		verdict = Approved
	case "needs_changes":
		verdict = NeedsChanges
	}

	var suggestions []Suggestion
	for _, s := range raw.Suggestions {
		if s.File == "" || s.Issue == "" || s.Suggestion == "" {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			File:       s.File,
			Line:       s.Line,
			Issue:      s.Issue,
			Suggestion: s.Suggestion,
		})
	}

	return ReviewResult{Verdict: verdict, Suggestions: suggestions}, true
}
