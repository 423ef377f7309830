// Package detect implements the major-incident decision engine: five
// normalized risk signals extracted from an incident and its context, a
// weighted threshold decision, and a reasoning-service call whose structured
// verdict is authoritative when it parses and recovered by a deterministic
// heuristic when it does not.
package detect

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/model"
	"github.com/opsvigil/vigil/pkg/similarity"
	"github.com/opsvigil/vigil/pkg/store"
)

// Extractor derives the risk signals from reference data. Every signal
// degrades to a documented default when data is missing or a collaborator
// errors; extraction itself never fails.
type Extractor struct {
	store    store.ReferenceStore
	searcher similarity.Searcher
	cfg      config.DetectionConfig
}

// NewExtractor creates an extractor over the given collaborators.
func NewExtractor(st store.ReferenceStore, searcher similarity.Searcher, cfg config.DetectionConfig) *Extractor {
	return &Extractor{store: st, searcher: searcher, cfg: cfg}
}

// UserImpactScore scores how broadly the incident hits the service's users.
// An incident with no listed affected users but priority 1-2 is assumed
// severe and under-reported: 80% impact with VIPs affected.
func (e *Extractor) UserImpactScore(ctx context.Context, incident model.Incident, ci *model.ServiceCI) model.FeatureResult {
	users, err := e.store.UsersForService(ctx, ci)
	if err != nil {
		log.Printf("[WARN] user lookup failed for %s, scoring without users: %v", ci.CIID, err)
	}
	if len(users) == 0 {
		return model.FeatureResult{Score: 0.0, Details: model.FeatureDetails{
			"affected_users_pct": 0.0,
			"vip_affected":       false,
			"critical_depts":     []string{},
		}}
	}

	affectedIDs := make(map[string]bool, len(incident.AffectedUsers))
	for _, id := range incident.AffectedUsers {
		affectedIDs[id] = true
	}
	affectedPct := float64(len(incident.AffectedUsers)) / float64(len(users))

	vipAffected := false
	deptSet := make(map[string]bool)
	for _, u := range users {
		if !affectedIDs[u.UserID] {
			continue
		}
		if u.IsVIP {
			vipAffected = true
		}
		deptSet[u.Department] = true
	}

	if len(incident.AffectedUsers) == 0 && incident.Priority <= 2 {
		affectedPct = 0.8
		vipAffected = true
	}

	score := affectedPct
	if vipAffected {
		score = math.Max(0.7, score)
	}
	score = math.Min(1.0, score)

	depts := make([]string, 0, len(deptSet))
	for d := range deptSet {
		depts = append(depts, d)
	}
	sort.Strings(depts)

	return model.FeatureResult{Score: score, Details: model.FeatureDetails{
		"affected_users_pct": affectedPct * 100,
		"vip_affected":       vipAffected,
		"critical_depts":     depts,
	}}
}

// ResolutionTimeScore predicts resolution difficulty from how similar
// historical incidents went. The more of them were major, the higher the
// score, scaled over [0.3, 1.0].
func (e *Extractor) ResolutionTimeScore(ctx context.Context, incident model.Incident) model.FeatureResult {
	similar, err := e.searcher.FindSimilar(ctx, incident, e.cfg.SimilarTopN)
	if err != nil {
		log.Printf("[WARN] similarity search failed for %s, scoring without history: %v", incident.IncidentID, err)
	}
	if len(similar) == 0 {
		return model.FeatureResult{Score: 0.5, Details: model.FeatureDetails{
			"avg_resolution_time": "unknown",
			"similar_incidents":   0,
		}}
	}

	totalHours := 0.0
	majorCount := 0
	for _, hist := range similar {
		totalHours += hist.ResolutionTime
		if hist.IsMajorIncident {
			majorCount++
		}
	}
	avgHours := totalHours / float64(len(similar))
	majorPct := float64(majorCount) / float64(len(similar))

	return model.FeatureResult{Score: 0.3 + majorPct*0.7, Details: model.FeatureDetails{
		"avg_resolution_time":         fmt.Sprintf("%.2f hours", avgHours),
		"similar_incidents":           len(similar),
		"similar_major_incidents_pct": majorPct * 100,
	}}
}

// ReassignmentScore reflects how often the incident has bounced between
// assignment groups; frequent hops across many groups indicate confusion.
func (e *Extractor) ReassignmentScore(ctx context.Context, incident model.Incident) model.FeatureResult {
	reassignments, err := e.store.ReassignmentHistory(ctx, incident.IncidentID)
	if err != nil {
		log.Printf("[WARN] reassignment lookup failed for %s, scoring without history: %v", incident.IncidentID, err)
	}
	if len(reassignments) == 0 {
		return model.FeatureResult{Score: 0.1, Details: model.FeatureDetails{
			"reassignment_count": 0,
			"groups_involved":    []string{},
		}}
	}

	groupSet := make(map[string]bool)
	for _, r := range reassignments {
		groupSet[r.FromGroup] = true
		groupSet[r.ToGroup] = true
	}
	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	score := math.Min(1.0, 0.15*float64(len(reassignments))+0.1*float64(len(groups)))
	return model.FeatureResult{Score: score, Details: model.FeatureDetails{
		"reassignment_count": len(reassignments),
		"groups_involved":    groups,
	}}
}

// ChangeVolumeScore reflects recent change activity against the service CI.
// The count factor caps at 10 changes; risk scores weigh heavier than count.
func (e *Extractor) ChangeVolumeScore(ctx context.Context, ci *model.ServiceCI) model.FeatureResult {
	changes, err := e.store.RecentChanges(ctx, ci.CIID, e.cfg.ChangeWindow)
	if err != nil {
		log.Printf("[WARN] change lookup failed for %s, scoring without changes: %v", ci.CIID, err)
	}
	if len(changes) == 0 {
		return model.FeatureResult{Score: 0.1, Details: model.FeatureDetails{
			"change_count":   0,
			"avg_risk_score": 0.0,
		}}
	}

	totalRisk := 0.0
	highRisk := 0
	for _, c := range changes {
		totalRisk += c.RiskScore
		if c.RiskScore > 0.7 {
			highRisk++
		}
	}
	avgRisk := totalRisk / float64(len(changes))
	countFactor := math.Min(1.0, float64(len(changes))/10)

	return model.FeatureResult{Score: 0.4*countFactor + 0.6*avgRisk, Details: model.FeatureDetails{
		"change_count":      len(changes),
		"avg_risk_score":    avgRisk,
		"high_risk_changes": highRisk,
	}}
}

// ServiceHealthScore inverts the CI's recent health: low or declining health
// raises the score. The trend looks at the last three samples.
func (e *Extractor) ServiceHealthScore(ctx context.Context, ci *model.ServiceCI) model.FeatureResult {
	samples, err := e.store.HealthHistory(ctx, ci.CIID, e.cfg.HealthWindow)
	if err != nil {
		log.Printf("[WARN] health lookup failed for %s, scoring without samples: %v", ci.CIID, err)
	}
	if len(samples) == 0 {
		return model.FeatureResult{Score: 0.5, Details: model.FeatureDetails{
			"current_health": "unknown",
			"trend":          "unknown",
		}}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	currentHealth := samples[len(samples)-1].HealthScore

	var trend string
	var trendFactor float64
	if len(samples) >= 3 {
		recent := samples[len(samples)-3:]
		if recent[2].HealthScore < recent[0].HealthScore {
			trend = "declining"
			trendFactor = (recent[0].HealthScore - recent[2].HealthScore) / recent[0].HealthScore
		} else {
			trend = "stable or improving"
			trendFactor = 0
		}
	} else {
		trend = "insufficient data"
		trendFactor = 0.2
	}

	healthFactor := 1 - currentHealth/100
	return model.FeatureResult{Score: 0.7*healthFactor + 0.3*trendFactor, Details: model.FeatureDetails{
		"current_health":   currentHealth,
		"trend":            trend,
		"records_analyzed": len(samples),
	}}
}

// Extract runs every signal and returns the score and detail maps keyed by
// signal name.
func (e *Extractor) Extract(ctx context.Context, incident model.Incident, ci *model.ServiceCI) (map[string]float64, map[string]model.FeatureDetails) {
	results := map[string]model.FeatureResult{
		config.SignalUserImpact:        e.UserImpactScore(ctx, incident, ci),
		config.SignalResolutionTime:    e.ResolutionTimeScore(ctx, incident),
		config.SignalReassignmentCount: e.ReassignmentScore(ctx, incident),
		config.SignalChangeVolume:      e.ChangeVolumeScore(ctx, ci),
		config.SignalServiceHealth:     e.ServiceHealthScore(ctx, ci),
	}

	scores := make(map[string]float64, len(results))
	details := make(map[string]model.FeatureDetails, len(results))
	for name, r := range results {
		scores[name] = r.Score
		details[name] = r.Details
	}
	return scores, details
}
