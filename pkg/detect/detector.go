package detect

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/model"
	"github.com/opsvigil/vigil/pkg/similarity"
	"github.com/opsvigil/vigil/pkg/store"
)

var (
	// ErrServiceNotFound is returned when the incident's service name does
	// not resolve against the CI inventory. Not retried.
	ErrServiceNotFound = errors.New("service CI not found")

	// ErrReasoningUnavailable is returned when the reasoning service is
	// unreachable or errors at the protocol level. The fallback heuristic
	// only covers unparsable responses, not transport failures.
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
)

// Recommendation strings keyed on the final decision.
const (
	RecommendationMajor   = "Escalate as Major Incident: Immediate coordination call recommended."
	RecommendationRegular = "Handle as Regular Incident: Monitor for changes in impact or scope."
)

// Detector runs the full detection flow: resolve the service CI, extract
// the risk signals, weigh them, obtain reasoning, and assemble the result.
// Detections for different incidents are independent; a Detector is safe
// for concurrent use.
type Detector struct {
	store     store.ReferenceStore
	extractor *Extractor
	reasoner  Reasoner
	cfg       config.DetectionConfig
}

// NewDetector wires the engine together. The config must have passed
// Validate.
func NewDetector(st store.ReferenceStore, searcher similarity.Searcher, reasoner Reasoner, cfg config.DetectionConfig) *Detector {
	return &Detector{
		store:     st,
		extractor: NewExtractor(st, searcher, cfg),
		reasoner:  reasoner,
		cfg:       cfg,
	}
}

// Detect classifies the incident. It fails hard on an unresolvable service
// CI or an unreachable reasoning service; every other degradation produces
// a result. Identical inputs over identical reference data yield identical
// results.
func (d *Detector) Detect(ctx context.Context, incident model.Incident) (*model.DetectionResult, error) {
	ci, err := d.store.ServiceCIByName(ctx, incident.ServiceCIName)
	if err != nil {
		return nil, fmt.Errorf("resolve service CI %q: %w", incident.ServiceCIName, err)
	}
	if ci == nil {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, incident.ServiceCIName)
	}

	scores, details := d.extractor.Extract(ctx, incident, ci)
	weightedScore := WeightedScore(scores, d.cfg.Weights)
	isMajor := weightedScore >= d.cfg.Threshold
	confidence := Confidence(weightedScore, d.cfg.Threshold)

	prompt := BuildPrompt(incident, scores, details, weightedScore, d.cfg.Threshold)
	raw, err := d.reasoner.Reason(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}

	var fullReasoning, summaryReasoning string
	if parsed, perr := parseReasoning(raw); perr == nil {
		// The reasoning verdict supersedes the threshold comparison; the
		// weighted score stays in the result for transparency.
		isMajor = *parsed.Decision
		fullReasoning = parsed.FullReasoning
		summaryReasoning = parsed.SummaryReasoning
	} else {
		log.Printf("[WARN] reasoning response unparsable for %s, using fallback heuristic: %v", incident.IncidentID, perr)
		isMajor = fallbackDecision(raw)
		fullReasoning = fallbackReasoning(raw)
		summaryReasoning = fallbackSummary(raw)
	}

	recommendation := RecommendationRegular
	if isMajor {
		recommendation = RecommendationMajor
	}

	return &model.DetectionResult{
		IncidentID:       incident.IncidentID,
		IsMajorIncident:  isMajor,
		Confidence:       confidence,
		Scores:           scores,
		WeightedScore:    weightedScore,
		FullReasoning:    fullReasoning,
		SummaryReasoning: summaryReasoning,
		Recommendation:   recommendation,
		Details:          details,
	}, nil
}
