package detect

import (
	"context"
	"testing"
	"time"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/model"
)

// fakeStore is an in-memory ReferenceStore for engine tests.
type fakeStore struct {
	cis           []model.ServiceCI
	users         []model.User
	changes       []model.ChangeRecord
	health        []model.ServiceHealth
	reassignments []model.ReassignmentRecord
	history       []model.HistoricalIncident
}

func (f *fakeStore) ServiceCIByName(_ context.Context, name string) (*model.ServiceCI, error) {
	for i := range f.cis {
		if f.cis[i].Name == name {
			ci := f.cis[i]
			return &ci, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UsersForService(_ context.Context, ci *model.ServiceCI) ([]model.User, error) {
	if ci == nil {
		return nil, nil
	}
	entitled := make(map[string]bool)
	for _, id := range ci.Users {
		entitled[id] = true
	}
	var out []model.User
	for _, u := range f.users {
		if entitled[u.UserID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentChanges(_ context.Context, ciID string, _ time.Duration) ([]model.ChangeRecord, error) {
	var out []model.ChangeRecord
	for _, c := range f.changes {
		if c.CIID == ciID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) HealthHistory(_ context.Context, ciID string, _ time.Duration) ([]model.ServiceHealth, error) {
	var out []model.ServiceHealth
	for _, h := range f.health {
		if h.CIID == ciID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) ReassignmentHistory(_ context.Context, incidentID string) ([]model.ReassignmentRecord, error) {
	var out []model.ReassignmentRecord
	for _, r := range f.reassignments {
		if r.IncidentID == incidentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) HistoricalIncidents(_ context.Context) ([]model.HistoricalIncident, error) {
	return f.history, nil
}

// fakeSearcher returns a fixed similarity result.
type fakeSearcher struct {
	results []model.HistoricalIncident
}

func (f *fakeSearcher) FindSimilar(_ context.Context, _ model.Incident, topN int) ([]model.HistoricalIncident, error) {
	if topN > 0 && len(f.results) > topN {
		return f.results[:topN], nil
	}
	return f.results, nil
}

func nUsers(n, vips int) []model.User {
	users := make([]model.User, n)
	for i := range users {
		users[i] = model.User{
			UserID:     userID(i),
			Name:       "User",
			Department: "Operations",
			IsVIP:      i < vips,
		}
	}
	return users
}

func userID(i int) string {
	return "U" + string(rune('A'+i))
}

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = userID(i)
	}
	return ids
}

func testExtractor(st *fakeStore, searcher *fakeSearcher) *Extractor {
	return NewExtractor(st, searcher, config.DefaultDetectionConfig())
}

func TestUserImpactScoreNoEntitledUsers(t *testing.T) {
	e := testExtractor(&fakeStore{}, &fakeSearcher{})
	ci := &model.ServiceCI{CIID: "CI1", Name: "Email"}

	r := e.UserImpactScore(context.Background(), model.Incident{Priority: 1}, ci)
	if r.Score != 0.0 {
		t.Errorf("score = %v, want 0 when no entitled users", r.Score)
	}
	if r.Details["vip_affected"] != false {
		t.Errorf("vip_affected = %v, want false", r.Details["vip_affected"])
	}
}

func TestUserImpactScorePriorityBoost(t *testing.T) {
	st := &fakeStore{users: nUsers(10, 0)}
	e := testExtractor(st, &fakeSearcher{})
	ci := &model.ServiceCI{CIID: "CI1", Name: "Email", Users: userIDs(10)}

	r := e.UserImpactScore(context.Background(), model.Incident{Priority: 2}, ci)
	if r.Score != 0.8 {
		t.Errorf("score = %v, want 0.8 (priority boost)", r.Score)
	}
	if r.Details["vip_affected"] != true {
		t.Errorf("vip_affected = %v, want true under priority boost", r.Details["vip_affected"])
	}
}

func TestUserImpactScoreVIPFloor(t *testing.T) {
	st := &fakeStore{users: nUsers(10, 1)}
	e := testExtractor(st, &fakeSearcher{})
	ci := &model.ServiceCI{CIID: "CI1", Name: "Email", Users: userIDs(10)}

	// One affected user out of 10, but they are a VIP: floor at 0.7.
	incident := model.Incident{Priority: 3, AffectedUsers: []string{userID(0)}}
	r := e.UserImpactScore(context.Background(), incident, ci)
	if r.Score != 0.7 {
		t.Errorf("score = %v, want 0.7 (VIP floor)", r.Score)
	}
}

func TestUserImpactScoreNoVIPLowPct(t *testing.T) {
	st := &fakeStore{users: nUsers(10, 0)}
	e := testExtractor(st, &fakeSearcher{})
	ci := &model.ServiceCI{CIID: "CI1", Name: "Email", Users: userIDs(10)}

	incident := model.Incident{Priority: 3, AffectedUsers: []string{userID(1)}}
	r := e.UserImpactScore(context.Background(), incident, ci)
	if r.Score != 0.1 {
		t.Errorf("score = %v, want 0.1 (1 of 10 users)", r.Score)
	}
}

func TestResolutionTimeScoreNoSimilar(t *testing.T) {
	e := testExtractor(&fakeStore{}, &fakeSearcher{})

	r := e.ResolutionTimeScore(context.Background(), model.Incident{IncidentID: "INC1"})
	if r.Score != 0.5 {
		t.Errorf("score = %v, want 0.5 with no similar incidents", r.Score)
	}
	if r.Details["avg_resolution_time"] != "unknown" {
		t.Errorf("avg_resolution_time = %v, want unknown", r.Details["avg_resolution_time"])
	}
}

func TestResolutionTimeScoreScalesWithMajorPct(t *testing.T) {
	searcher := &fakeSearcher{results: []model.HistoricalIncident{
		{Incident: model.Incident{IncidentID: "H1"}, IsMajorIncident: true, ResolutionTime: 8},
		{Incident: model.Incident{IncidentID: "H2"}, IsMajorIncident: true, ResolutionTime: 4},
		{Incident: model.Incident{IncidentID: "H3"}, IsMajorIncident: false, ResolutionTime: 2},
		{Incident: model.Incident{IncidentID: "H4"}, IsMajorIncident: false, ResolutionTime: 2},
	}}
	e := testExtractor(&fakeStore{}, searcher)

	r := e.ResolutionTimeScore(context.Background(), model.Incident{IncidentID: "INC1"})
	// Half the similar incidents were major: 0.3 + 0.5*0.7 = 0.65.
	if diff := r.Score - 0.65; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want 0.65", r.Score)
	}
	if r.Details["avg_resolution_time"] != "4.00 hours" {
		t.Errorf("avg_resolution_time = %v, want 4.00 hours", r.Details["avg_resolution_time"])
	}
	if r.Details["similar_incidents"] != 4 {
		t.Errorf("similar_incidents = %v, want 4", r.Details["similar_incidents"])
	}
}

func TestReassignmentScoreDefaults(t *testing.T) {
	e := testExtractor(&fakeStore{}, &fakeSearcher{})
	r := e.ReassignmentScore(context.Background(), model.Incident{IncidentID: "INC1"})
	if r.Score != 0.1 {
		t.Errorf("score = %v, want 0.1 with zero reassignments", r.Score)
	}
}

func TestReassignmentScoreCountsGroups(t *testing.T) {
	st := &fakeStore{reassignments: []model.ReassignmentRecord{
		{IncidentID: "INC1", FromGroup: "L1", ToGroup: "L2"},
		{IncidentID: "INC1", FromGroup: "L2", ToGroup: "L3"},
	}}
	e := testExtractor(st, &fakeSearcher{})

	r := e.ReassignmentScore(context.Background(), model.Incident{IncidentID: "INC1"})
	// 2 reassignments, 3 groups: 0.15*2 + 0.1*3 = 0.6.
	if diff := r.Score - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want 0.6", r.Score)
	}
	groups, ok := r.Details["groups_involved"].([]string)
	if !ok || len(groups) != 3 {
		t.Errorf("groups_involved = %v, want 3 sorted groups", r.Details["groups_involved"])
	}
}

func TestReassignmentScoreCapsAtOne(t *testing.T) {
	var records []model.ReassignmentRecord
	for i := 0; i < 10; i++ {
		records = append(records, model.ReassignmentRecord{IncidentID: "INC1", FromGroup: "L1", ToGroup: "L2"})
	}
	e := testExtractor(&fakeStore{reassignments: records}, &fakeSearcher{})

	r := e.ReassignmentScore(context.Background(), model.Incident{IncidentID: "INC1"})
	if r.Score != 1.0 {
		t.Errorf("score = %v, want capped at 1.0", r.Score)
	}
}

func TestChangeVolumeScoreDefaults(t *testing.T) {
	e := testExtractor(&fakeStore{}, &fakeSearcher{})
	r := e.ChangeVolumeScore(context.Background(), &model.ServiceCI{CIID: "CI1"})
	if r.Score != 0.1 {
		t.Errorf("score = %v, want 0.1 with zero changes", r.Score)
	}
}

func TestChangeVolumeScoreWeighsRisk(t *testing.T) {
	st := &fakeStore{changes: []model.ChangeRecord{
		{ChangeID: "CH1", CIID: "CI1", RiskScore: 0.9},
		{ChangeID: "CH2", CIID: "CI1", RiskScore: 0.5},
	}}
	e := testExtractor(st, &fakeSearcher{})

	r := e.ChangeVolumeScore(context.Background(), &model.ServiceCI{CIID: "CI1"})
	// count factor 2/10, avg risk 0.7: 0.4*0.2 + 0.6*0.7 = 0.5.
	if diff := r.Score - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want 0.5", r.Score)
	}
	if r.Details["high_risk_changes"] != 1 {
		t.Errorf("high_risk_changes = %v, want 1", r.Details["high_risk_changes"])
	}
}

func TestServiceHealthScoreDefaults(t *testing.T) {
	e := testExtractor(&fakeStore{}, &fakeSearcher{})
	r := e.ServiceHealthScore(context.Background(), &model.ServiceCI{CIID: "CI1"})
	if r.Score != 0.5 {
		t.Errorf("score = %v, want 0.5 with zero samples", r.Score)
	}
	if r.Details["trend"] != "unknown" {
		t.Errorf("trend = %v, want unknown", r.Details["trend"])
	}
}

func TestServiceHealthScoreDecliningTrend(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := &fakeStore{health: []model.ServiceHealth{
		{CIID: "CI1", Timestamp: base, HealthScore: 100},
		{CIID: "CI1", Timestamp: base.Add(time.Hour), HealthScore: 80},
		{CIID: "CI1", Timestamp: base.Add(2 * time.Hour), HealthScore: 50},
	}}
	e := testExtractor(st, &fakeSearcher{})

	r := e.ServiceHealthScore(context.Background(), &model.ServiceCI{CIID: "CI1"})
	// health factor 0.5, trend factor (100-50)/100 = 0.5: 0.7*0.5 + 0.3*0.5 = 0.5.
	if diff := r.Score - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want 0.5", r.Score)
	}
	if r.Details["trend"] != "declining" {
		t.Errorf("trend = %v, want declining", r.Details["trend"])
	}
}

func TestServiceHealthScoreInsufficientData(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := &fakeStore{health: []model.ServiceHealth{
		{CIID: "CI1", Timestamp: base, HealthScore: 90},
		{CIID: "CI1", Timestamp: base.Add(time.Hour), HealthScore: 90},
	}}
	e := testExtractor(st, &fakeSearcher{})

	r := e.ServiceHealthScore(context.Background(), &model.ServiceCI{CIID: "CI1"})
	if r.Details["trend"] != "insufficient data" {
		t.Errorf("trend = %v, want insufficient data", r.Details["trend"])
	}
	// health factor 0.1, trend factor 0.2: 0.7*0.1 + 0.3*0.2 = 0.13.
	if diff := r.Score - 0.13; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want 0.13", r.Score)
	}
}

func TestExtractScoresWithinBounds(t *testing.T) {
	st := &fakeStore{
		users: nUsers(5, 2),
		changes: []model.ChangeRecord{
			{ChangeID: "CH1", CIID: "CI1", RiskScore: 1.0},
		},
		health: []model.ServiceHealth{
			{CIID: "CI1", Timestamp: time.Now(), HealthScore: 10},
		},
		reassignments: []model.ReassignmentRecord{
			{IncidentID: "INC1", FromGroup: "L1", ToGroup: "L2"},
		},
	}
	searcher := &fakeSearcher{results: []model.HistoricalIncident{
		{Incident: model.Incident{IncidentID: "H1"}, IsMajorIncident: true, ResolutionTime: 10},
	}}
	e := testExtractor(st, searcher)
	ci := &model.ServiceCI{CIID: "CI1", Name: "Email", Users: userIDs(5)}

	incident := model.Incident{IncidentID: "INC1", Priority: 1, AffectedUsers: userIDs(5)}
	scores, details := e.Extract(context.Background(), incident, ci)

	if len(scores) != 5 {
		t.Fatalf("got %d scores, want 5", len(scores))
	}
	for name, score := range scores {
		if score < 0 || score > 1 {
			t.Errorf("signal %s = %v, outside [0,1]", name, score)
		}
		if _, ok := details[name]; !ok {
			t.Errorf("signal %s missing details", name)
		}
	}
}
