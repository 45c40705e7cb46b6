package team

import "testing"

func TestParseReviewResponse_Approved(t *testing.T) {
	response := `Looks good. {"verdict": "approved", "suggestions": []}`
	result, ok := ParseReviewResponse(response)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if result.Verdict != Approved {
		t.Fatalf("expected Approved, got %s", result.Verdict)
	}
	if len(result.Suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(result.Suggestions))
	}
}

func TestParseReviewResponse_NeedsChangesWithSuggestions(t *testing.T) {
	response := `{
		"verdict": "needs_changes",
		"suggestions": [
			{"file": "main.go", "line": 42, "issue": "missing error check", "suggestion": "check the error"},
			{"file": "util.go", "issue": "unused import", "suggestion": "remove it"}
		]
	}`
	result, ok := ParseReviewResponse(response)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if result.Verdict != NeedsChanges {
		t.Fatalf("expected NeedsChanges, got %s", result.Verdict)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(result.Suggestions))
	}
	if result.Suggestions[0].Line == nil || *result.Suggestions[0].Line != 42 {
		t.Fatalf("expected line 42, got %v", result.Suggestions[0].Line)
	}
	if result.Suggestions[1].Line != nil {
		t.Fatalf("expected nil line for second suggestion, got %v", result.Suggestions[1].Line)
	}
}

func TestParseReviewResponse_UnknownVerdictMapsToFailed(t *testing.T) {
	response := `{"verdict": "rejected", "suggestions": []}`
	result, ok := ParseReviewResponse(response)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if result.Verdict != Failed {
		t.Fatalf("expected Failed for unrecognized verdict, got %s", result.Verdict)
	}
}

func TestParseReviewResponse_DropsIncompleteSuggestions(t *testing.T) {
	response := `{"verdict": "needs_changes", "suggestions": [{"file": "", "issue": "x", "suggestion": "y"}]}`
	result, ok := ParseReviewResponse(response)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if len(result.Suggestions) != 0 {
		t.Fatalf("expected incomplete suggestion to be dropped, got %d", len(result.Suggestions))
	}
}

func TestParseReviewResponse_NoJSONObjectReturnsFalse(t *testing.T) {
	if _, ok := ParseReviewResponse("just plain text, no object here"); ok {
		t.Fatal("expected parse failure for text with no JSON object")
	}
}

func TestParseReviewResponse_MalformedJSONReturnsFalse(t *testing.T) {
	if _, ok := ParseReviewResponse(`{"verdict": "approved", "suggestions": [}`); ok {
		t.Fatal("expected parse failure for malformed JSON")
	}
}

func TestParseReviewResponse_ExtractsFirstToLastBrace(t *testing.T) {
	response := "Here is my review:\n```json\n{\"verdict\": \"approved\", \"suggestions\": []}\n```\nThanks."
	result, ok := ParseReviewResponse(response)
	if !ok {
		t.Fatal("expected successful parse from fenced code block")
	}
	if result.Verdict != Approved {
		t.Fatalf("expected Approved, got %s", result.Verdict)
	}
}
