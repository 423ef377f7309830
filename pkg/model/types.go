// Package model defines the domain records shared across the Vigil gateway:
// incidents, CMDB reference data, and the detection result produced by the
// decision engine. All types are plain data and safe to share read-only
// across concurrent detections.
package model

import "time"

// Incident is the immutable input to the decision engine.
// Priority is numeric with lower values meaning more severe (P1 > P2 > ...).
type Incident struct {
	IncidentID    string    `json:"incident_id"`
	Summary       string    `json:"summary"`
	Description   string    `json:"description"`
	ServiceCIName string    `json:"service_ci_name"`
	Priority      int       `json:"priority"`
	CreatedAt     time.Time `json:"created_at"`
	Status        string    `json:"status"`
	AssignedTo    string    `json:"assigned_to"`
	AffectedUsers []string  `json:"affected_users,omitempty"`
}

// ServiceCI is a configuration item from the service inventory.
// Criticality ranges 1-5. Users lists the user ids entitled to the service.
type ServiceCI struct {
	CIID        string   `json:"ci_id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Criticality int      `json:"criticality"`
	Dependents  []string `json:"dependents,omitempty"`
	Users       []string `json:"users,omitempty"`
}

// User is an entitled service user.
type User struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	IsVIP      bool   `json:"is_vip"`
}

// ChangeRecord is a change implemented against a CI. RiskScore is in [0,1].
type ChangeRecord struct {
	ChangeID      string    `json:"change_id"`
	Summary       string    `json:"summary"`
	CIID          string    `json:"ci_id"`
	ImplementedAt time.Time `json:"implemented_at"`
	RiskScore     float64   `json:"risk_score"`
}

// ServiceHealth is a single health sample for a CI. HealthScore is in [0,100].
type ServiceHealth struct {
	CIID        string    `json:"ci_id"`
	Timestamp   time.Time `json:"timestamp"`
	HealthScore float64   `json:"health_score"`
}

// ReassignmentRecord is one hop of an incident between assignment groups.
type ReassignmentRecord struct {
	IncidentID string    `json:"incident_id"`
	Timestamp  time.Time `json:"timestamp"`
	FromGroup  string    `json:"from_group"`
	ToGroup    string    `json:"to_group"`
}

// HistoricalIncident is a resolved incident used as read-only reference data
// for similarity scoring. ResolutionTime is in hours.
type HistoricalIncident struct {
	Incident
	IsMajorIncident   bool    `json:"is_major_incident"`
	ResolutionTime    float64 `json:"resolution_time"`
	ReassignmentCount int     `json:"reassignment_count"`
}

// FeatureDetails is the free-form detail map attached to a signal score.
// It feeds the reasoning prompt and the final result; nothing computes on it.
type FeatureDetails map[string]any

// FeatureResult is one normalized risk signal: a score in [0,1] plus details.
type FeatureResult struct {
	Score   float64        `json:"score"`
	Details FeatureDetails `json:"details"`
}

// DetectionResult is the engine's only output. Confidence is in [0.5,1.0];
// Scores holds the per-signal values and WeightedScore their combination.
// Once assembled by the detector it is never mutated.
type DetectionResult struct {
	IncidentID       string                    `json:"incident_id"`
	IsMajorIncident  bool                      `json:"is_major_incident"`
	Confidence       float64                   `json:"confidence"`
	Scores           map[string]float64        `json:"scores"`
	WeightedScore    float64                   `json:"weighted_score"`
	FullReasoning    string                    `json:"full_reasoning"`
	SummaryReasoning string                    `json:"summary_reasoning"`
	Recommendation   string                    `json:"recommendation"`
	Details          map[string]FeatureDetails `json:"details"`
}
