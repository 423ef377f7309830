// Package similarity finds historical incidents that resemble a live one.
// Two backends implement the same contract: a keyword searcher with no
// external dependencies and an embedding searcher over an in-process vector
// store. Results are ordered most similar first and capped at top N.
package similarity

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/opsvigil/vigil/pkg/model"
)

// Searcher finds the historical incidents most similar to the given one.
type Searcher interface {
	FindSimilar(ctx context.Context, incident model.Incident, topN int) ([]model.HistoricalIncident, error)
}

// IncidentSource supplies the historical dataset to index or scan.
type IncidentSource interface {
	HistoricalIncidents(ctx context.Context) ([]model.HistoricalIncident, error)
}

// normalizeText prepares incident text for matching: NFKC folds
// typographic variants (full-width forms, ligatures) before lowercasing so
// the same words compare equal across ticket sources.
func normalizeText(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// incidentText is the searchable representation of an incident.
func incidentText(summary, description string) string {
	return normalizeText(summary + " " + description)
}
