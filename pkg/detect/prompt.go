package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/model"
)

// signalOrder fixes the rendering order of signals in prompts and fallback
// reasoning so identical inputs produce identical text.
var signalOrder = []string{
	config.SignalUserImpact,
	config.SignalResolutionTime,
	config.SignalReassignmentCount,
	config.SignalChangeVolume,
	config.SignalServiceHealth,
}

// signalLabels maps signal names to their human-readable bullet labels.
var signalLabels = map[string]string{
	config.SignalUserImpact:        "User Impact",
	config.SignalResolutionTime:    "Resolution Time",
	config.SignalReassignmentCount: "Reassignment Count",
	config.SignalChangeVolume:      "Change Volume",
	config.SignalServiceHealth:     "Service Health",
}

// fewShotExample is one curated exemplar embedded in every reasoning prompt.
type fewShotExample struct {
	summary   string
	scores    []scoredSignal
	weighted  float64
	reasoning string
	decision  string
}

type scoredSignal struct {
	name  string
	score float64
}

// fewShotExamples anchors the reasoning service with one clearly major and
// one clearly minor case.
var fewShotExamples = []fewShotExample{
	{
		summary: "Multiple users unable to access CRM system",
		scores: []scoredSignal{
			{config.SignalUserImpact, 0.85},
			{config.SignalResolutionTime, 0.75},
			{config.SignalChangeVolume, 0.8},
			{config.SignalServiceHealth, 0.7},
		},
		weighted:  0.76,
		reasoning: "High user impact affecting 85% of users including VIPs. Recent deployment showed service health declining. Multiple teams involved in resolution.",
		decision:  "YES - Major Incident",
	},
	{
		summary: "Single user experiencing slow CRM performance",
		scores: []scoredSignal{
			{config.SignalUserImpact, 0.05},
			{config.SignalResolutionTime, 0.3},
			{config.SignalReassignmentCount, 0.2},
			{config.SignalChangeVolume, 0.1},
			{config.SignalServiceHealth, 0.2},
		},
		weighted:  0.17,
		reasoning: "Only one user affected, no recent changes, service health stable, expected quick resolution.",
		decision:  "NO - Regular Incident",
	},
}

const formatInstructions = `Return a single JSON object with exactly these fields:
{"summary_reasoning": "<one-line summary>", "full_reasoning": "<bulleted analysis>", "decision": true|false}`

// BuildPrompt renders the reasoning prompt: incident facts, the signal
// scores and their detail maps, the weighted score against the threshold,
// and the few-shot exemplars. Output is deterministic for identical inputs.
func BuildPrompt(incident model.Incident, scores map[string]float64, details map[string]model.FeatureDetails, weightedScore, threshold float64) string {
	var b strings.Builder

	b.WriteString("You are an ITSM expert specializing in Major Incident detection. Analyze whether the following incident should be classified as a Major Incident.\n\n")

	fmt.Fprintf(&b, "INCIDENT DETAILS:\nID: %s\nSummary: %s\nDescription: %s\nService: %s\nPriority: %d\nStatus: %s\n\n",
		incident.IncidentID, incident.Summary, incident.Description, incident.ServiceCIName, incident.Priority, incident.Status)

	b.WriteString("PREDICTOR SCORES:\n")
	for _, name := range signalOrder {
		fmt.Fprintf(&b, "- %s: %.2f\n", signalLabels[name], scores[name])
	}
	b.WriteString("\n")

	b.WriteString("DETAILED ANALYSIS:\n")
	for _, name := range signalOrder {
		detail, ok := details[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", name)
		keys := make([]string, 0, len(detail))
		for k := range detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, detail[k])
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "WEIGHTED SCORE: %.2f (Threshold: %.2f)\n\n", weightedScore, threshold)

	b.WriteString("PREVIOUS EXAMPLES:\n")
	for i, ex := range fewShotExamples {
		fmt.Fprintf(&b, "\nEXAMPLE %d:\nIncident: %s\nPredictor Scores:\n", i+1, ex.summary)
		for _, s := range ex.scores {
			fmt.Fprintf(&b, "- %s: %.2f\n", s.name, s.score)
		}
		fmt.Fprintf(&b, "Weighted Score: %.2f\nReasoning: %s\nDecision: %s\n", ex.weighted, ex.reasoning, ex.decision)
	}
	b.WriteString("\n")

	b.WriteString("Based on this data, analyze whether this incident should be classified as a Major Incident.\n")
	b.WriteString("Consider the predictor scores, their implications, and any edge cases not fully captured by the metrics.\n\n")

	b.WriteString("Your response should follow this format:\n")
	b.WriteString(formatInstructions)
	b.WriteString("\n\nIn your response:\n")
	b.WriteString("1. The summary_reasoning should be a concise one-line summary similar to the example reasonings.\n")
	b.WriteString("2. The full_reasoning should be formatted as bullet points for each predictor score, with your analysis of that specific predictor:\n")
	for _, name := range signalOrder {
		fmt.Fprintf(&b, "   • %s: [Your analysis of this score and its implications]\n", signalLabels[name])
	}
	b.WriteString("   • Overall Assessment: [Your final assessment based on all factors]\n")
	b.WriteString("3. The decision should be a boolean (true for Major Incident, false for Regular Incident).\n\n")
	b.WriteString("ANALYSIS:\n")

	return b.String()
}
