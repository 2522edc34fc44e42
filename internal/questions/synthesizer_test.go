package questions

import (
	"testing"
)

// TestParseQuestionArray_Clean verifies plain JSON arrays parse directly.
func TestParseQuestionArray_Clean(t *testing.T) {
	qs, err := ParseQuestionArray(`["what is X?", "how does Y work?"]`)
	if err != nil {
		t.Fatalf("ParseQuestionArray failed: %v", err)
	}
	if len(qs) != 2 || qs[0] != "what is X?" {
		t.Errorf("unexpected questions: %v", qs)
	}
}

// TestParseQuestionArray_CodeFence verifies fenced output is tolerated.
func TestParseQuestionArray_CodeFence(t *testing.T) {
	raw := "```json\n[\"q1\", \"q2\", \"q3\"]\n```"
	qs, err := ParseQuestionArray(raw)
	if err != nil {
		t.Fatalf("ParseQuestionArray failed: %v", err)
	}
	if len(qs) != 3 {
		t.Errorf("expected 3 questions, got %v", qs)
	}
}

// TestParseQuestionArray_LeadInProse verifies surrounding prose is tolerated.
func TestParseQuestionArray_LeadInProse(t *testing.T) {
	raw := `Here are the questions: ["only one"] Hope that helps!`
	qs, err := ParseQuestionArray(raw)
	if err != nil {
		t.Fatalf("ParseQuestionArray failed: %v", err)
	}
	if len(qs) != 1 || qs[0] != "only one" {
		t.Errorf("unexpected questions: %v", qs)
	}
}

// TestParseQuestionArray_CapsAtMax verifies the output is capped.
func TestParseQuestionArray_CapsAtMax(t *testing.T) {
	qs, err := ParseQuestionArray(`["a", "b", "c", "d", "e"]`)
	if err != nil {
		t.Fatalf("ParseQuestionArray failed: %v", err)
	}
	if len(qs) != MaxQuestions {
		t.Errorf("expected %d questions, got %d", MaxQuestions, len(qs))
	}
}

// TestParseQuestionArray_Garbage verifies non-array output errors so the
// caller can degrade to an empty set.
func TestParseQuestionArray_Garbage(t *testing.T) {
	for _, raw := range []string{
		"I cannot produce questions for this.",
		`{"questions": "not an array"`,
		"[not, valid, json]",
	} {
		if _, err := ParseQuestionArray(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

// TestParseQuestionArray_Empty verifies empty output is an empty set, not
// an error.
func TestParseQuestionArray_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "[]"} {
		qs, err := ParseQuestionArray(raw)
		if err != nil {
			t.Errorf("unexpected error for %q: %v", raw, err)
		}
		if len(qs) != 0 {
			t.Errorf("expected no questions for %q, got %v", raw, qs)
		}
	}
}
