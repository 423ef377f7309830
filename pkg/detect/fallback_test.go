package detect

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseReasoningSuccess(t *testing.T) {
	raw := `Here is my analysis:
{"summary_reasoning": "Widespread impact, escalate.", "full_reasoning": "• User Impact: severe", "decision": true}`

	out, err := parseReasoning(raw)
	if err != nil {
		t.Fatalf("parseReasoning: %v", err)
	}
	if out.Decision == nil || !*out.Decision {
		t.Error("decision should parse as true")
	}
	if out.SummaryReasoning != "Widespread impact, escalate." {
		t.Errorf("summary = %q", out.SummaryReasoning)
	}
}

func TestParseReasoningFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"free text", "This looks like a serious outage, escalate."},
		{"missing decision", `{"summary_reasoning": "s", "full_reasoning": "f"}`},
		{"missing reasoning", `{"decision": true}`},
		{"broken json", `{"decision": tru`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseReasoning(tt.raw); err == nil {
				t.Errorf("parseReasoning(%q) should fail", tt.raw)
			}
		})
	}
}

func TestExtractJSONStripsFences(t *testing.T) {
	raw := "```json\n{\"decision\": true}\n```"
	if got := extractJSON(raw); got != `{"decision": true}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestFallbackDecisionExplicitPhrases(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"explicit yes", "This should be classified as a Major Incident due to impact.", true},
		{"explicit is", "Given the evidence, this is a major incident.", true},
		{"explicit no", "This should not be classified as a major incident.", false},
		{"explicit is not", "On balance this is not a major incident.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackDecision(tt.text); got != tt.want {
				t.Errorf("fallbackDecision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFallbackDecisionIndicatorCounts(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"one positive zero negative", "We should escalate this quickly.", true},
		{"tie resolves minor", "This is critical but looks routine.", false},
		{"negatives win", "Routine, isolated, minor issue despite being urgent.", false},
		{"no indicators", "Nothing noteworthy to report here.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackDecision(tt.text); got != tt.want {
				t.Errorf("fallbackDecision(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFallbackSummaryFirstSentence(t *testing.T) {
	got := fallbackSummary("Short verdict. Much longer elaboration follows here.")
	if got != "Short verdict." {
		t.Errorf("summary = %q, want first sentence", got)
	}
}

func TestFallbackSummaryNoTerminator(t *testing.T) {
	got := fallbackSummary("no terminator at all")
	if got != "no terminator at all." {
		t.Errorf("summary = %q, want text with appended period", got)
	}
}

func TestFallbackSummaryTruncation(t *testing.T) {
	long := strings.Repeat("x", 200) + ". tail"
	got := fallbackSummary(long)
	if utf8.RuneCountInString(got) != 120 {
		t.Errorf("summary length = %d, want exactly 120", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("summary %q should end with ellipsis", got)
	}
}

func TestFallbackReasoningSynthesizesBullets(t *testing.T) {
	raw := "The model rambled without structure."
	got := fallbackReasoning(raw)

	for _, label := range []string{"User Impact", "Resolution Time", "Reassignment Count", "Change Volume", "Service Health"} {
		if !strings.Contains(got, "• "+label+":") {
			t.Errorf("missing bullet for %s in %q", label, got)
		}
	}
	if !strings.Contains(got, "• Overall Assessment: "+raw) {
		t.Errorf("raw text should survive verbatim in overall assessment: %q", got)
	}
}

func TestFallbackReasoningKeepsBulletedText(t *testing.T) {
	raw := "• User Impact: already structured\n• Overall Assessment: fine"
	if got := fallbackReasoning(raw); got != raw {
		t.Errorf("bulleted text should pass through unmodified, got %q", got)
	}
}
