package similarity

import (
	"context"
	"sort"
	"strings"

	"github.com/opsvigil/vigil/pkg/model"
)

// minKeywordSimilarity filters out incidents with only incidental word
// overlap.
const minKeywordSimilarity = 0.1

// KeywordSearcher ranks historical incidents by Jaccard overlap of the
// token sets of summary+description. It needs no embedding service and is
// the default backend.
type KeywordSearcher struct {
	source IncidentSource
}

// NewKeywordSearcher creates a searcher over the given incident source.
func NewKeywordSearcher(source IncidentSource) *KeywordSearcher {
	return &KeywordSearcher{source: source}
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(text) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union < 1 {
		union = 1
	}
	return float64(intersection) / float64(union)
}

// FindSimilar returns up to topN historical incidents whose token overlap
// with the query exceeds the similarity floor, most similar first. Ties keep
// dataset order.
func (k *KeywordSearcher) FindSimilar(ctx context.Context, incident model.Incident, topN int) ([]model.HistoricalIncident, error) {
	history, err := k.source.HistoricalIncidents(ctx)
	if err != nil {
		return nil, err
	}

	query := tokenSet(incidentText(incident.Summary, incident.Description))

	type scored struct {
		incident model.HistoricalIncident
		score    float64
	}
	var matches []scored
	for _, hist := range history {
		score := jaccard(query, tokenSet(incidentText(hist.Summary, hist.Description)))
		if score > minKeywordSimilarity {
			matches = append(matches, scored{incident: hist, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	out := make([]model.HistoricalIncident, len(matches))
	for i, m := range matches {
		out[i] = m.incident
	}
	return out, nil
}
