package similarity

import (
	"context"
	"testing"

	"github.com/opsvigil/vigil/pkg/model"
)

type staticSource []model.HistoricalIncident

func (s staticSource) HistoricalIncidents(_ context.Context) ([]model.HistoricalIncident, error) {
	return s, nil
}

func hist(id, summary, description string, major bool) model.HistoricalIncident {
	return model.HistoricalIncident{
		Incident: model.Incident{
			IncidentID:  id,
			Summary:     summary,
			Description: description,
		},
		IsMajorIncident: major,
	}
}

func TestKeywordFindSimilarOrdersByOverlap(t *testing.T) {
	source := staticSource{
		hist("H1", "email outage", "smtp server down users cannot send email", true),
		hist("H2", "printer jam", "paper stuck in tray two", false),
		hist("H3", "email slow", "smtp server slow email delayed for users", false),
	}
	searcher := NewKeywordSearcher(source)

	query := model.Incident{
		Summary:     "email outage",
		Description: "smtp server down users cannot send email",
	}
	got, err := searcher.FindSimilar(context.Background(), query, 5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2 (printer incident filtered out)", len(got))
	}
	if got[0].IncidentID != "H1" {
		t.Errorf("best match = %s, want H1 (identical text)", got[0].IncidentID)
	}
	if got[1].IncidentID != "H3" {
		t.Errorf("second match = %s, want H3", got[1].IncidentID)
	}
}

func TestKeywordFindSimilarRespectsTopN(t *testing.T) {
	source := staticSource{
		hist("H1", "database timeout", "queries timing out on primary database", true),
		hist("H2", "database slow", "queries slow on primary database", false),
		hist("H3", "database down", "primary database not accepting queries", true),
	}
	searcher := NewKeywordSearcher(source)

	query := model.Incident{Summary: "database timeout", Description: "queries timing out on primary database"}
	got, err := searcher.FindSimilar(context.Background(), query, 2)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d matches, want topN=2", len(got))
	}
}

func TestKeywordFindSimilarNoMatches(t *testing.T) {
	source := staticSource{
		hist("H1", "printer jam", "paper stuck in tray two", false),
	}
	searcher := NewKeywordSearcher(source)

	query := model.Incident{Summary: "vpn outage", Description: "remote users disconnected"}
	got, err := searcher.FindSimilar(context.Background(), query, 5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d matches, want none below similarity floor", len(got))
	}
}

func TestKeywordFindSimilarEmptyHistory(t *testing.T) {
	searcher := NewKeywordSearcher(staticSource{})
	got, err := searcher.FindSimilar(context.Background(), model.Incident{Summary: "anything"}, 5)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestNormalizeTextFoldsWidthAndCase(t *testing.T) {
	// Full-width "ＥＭＡＩＬ" should normalize to plain lowercase "email".
	if got := normalizeText("ＥＭＡＩＬ Outage"); got != "email outage" {
		t.Errorf("normalizeText = %q, want %q", got, "email outage")
	}
}

func TestJaccardBounds(t *testing.T) {
	a := tokenSet("one two three")
	if got := jaccard(a, a); got != 1.0 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
	if got := jaccard(a, tokenSet("four five")); got != 0.0 {
		t.Errorf("disjoint similarity = %v, want 0.0", got)
	}
	if got := jaccard(tokenSet(""), tokenSet("")); got != 0.0 {
		t.Errorf("empty similarity = %v, want 0.0 with guarded denominator", got)
	}
}
