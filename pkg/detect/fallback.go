package detect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsvigil/vigil/pkg/config"
)

// reasoningOutput is the structured schema the reasoning service is asked
// to return. Decision is a pointer so an absent field counts as a parse
// failure rather than defaulting to false.
type reasoningOutput struct {
	SummaryReasoning string `json:"summary_reasoning"`
	FullReasoning    string `json:"full_reasoning"`
	Decision         *bool  `json:"decision"`
}

// positiveIndicators and negativeIndicators are the fixed vocabularies the
// fallback decision counts when the response carries no explicit verdict.
var positiveIndicators = []string{
	"major incident", "critical", "high impact", "significant",
	"widespread", "urgent", "escalate", "serious",
}

var negativeIndicators = []string{
	"routine", "regular incident", "low impact", "isolated",
	"minor", "standard", "normal",
}

// extractJSON trims surrounding prose or markdown fences down to the
// outermost JSON object.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}

// parseReasoning decodes the raw response against the structured schema.
// A response that decodes but lacks a decision or any reasoning text is
// treated as unparsable.
func parseReasoning(raw string) (reasoningOutput, error) {
	var out reasoningOutput
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return reasoningOutput{}, fmt.Errorf("decode reasoning response: %w", err)
	}
	if out.Decision == nil {
		return reasoningOutput{}, fmt.Errorf("reasoning response missing decision")
	}
	if out.FullReasoning == "" {
		return reasoningOutput{}, fmt.Errorf("reasoning response missing full_reasoning")
	}
	return out, nil
}

// fallbackDecision extracts a verdict from free-form reasoning text. Explicit
// classification phrases win; otherwise indicator substring counts decide,
// with ties resolving to minor.
func fallbackDecision(reasoning string) bool {
	lower := strings.ToLower(reasoning)

	if strings.Contains(lower, "should be classified as a major incident") ||
		strings.Contains(lower, "is a major incident") {
		return true
	}
	if strings.Contains(lower, "should not be classified as a major incident") ||
		strings.Contains(lower, "is not a major incident") {
		return false
	}

	positive := 0
	for _, ind := range positiveIndicators {
		positive += strings.Count(lower, ind)
	}
	negative := 0
	for _, ind := range negativeIndicators {
		negative += strings.Count(lower, ind)
	}
	return positive > negative
}

// fallbackSummary takes the text up to and including the first sentence
// terminator, truncated to 120 characters with an ellipsis when longer.
func fallbackSummary(reasoning string) string {
	summary := reasoning
	if idx := strings.Index(reasoning, "."); idx != -1 {
		summary = reasoning[:idx]
	}
	summary += "."
	if runes := []rune(summary); len(runes) > 120 {
		summary = string(runes[:117]) + "..."
	}
	return summary
}

// fallbackReasoning synthesizes bulleted per-signal reasoning when the raw
// text is not already in bullet form; the raw text survives verbatim in the
// overall assessment.
func fallbackReasoning(reasoning string) string {
	trimmed := strings.TrimSpace(reasoning)
	if strings.HasPrefix(trimmed, "•") {
		return reasoning
	}

	var b strings.Builder
	for _, name := range signalOrder {
		fmt.Fprintf(&b, "• %s: Analysis of %s score not provided by model.\n", signalLabels[name], fallbackPhrases[name])
	}
	fmt.Fprintf(&b, "• Overall Assessment: %s", trimmed)
	return b.String()
}

// fallbackPhrases names each signal inside its placeholder bullet.
var fallbackPhrases = map[string]string{
	config.SignalUserImpact:        "user impact",
	config.SignalResolutionTime:    "resolution time",
	config.SignalReassignmentCount: "reassignment",
	config.SignalChangeVolume:      "change volume",
	config.SignalServiceHealth:     "service health",
}
