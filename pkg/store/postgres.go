package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsvigil/vigil/pkg/model"
)

// PostgresStore serves the same accessor surface as FileStore from a
// Postgres database, for deployments that keep CMDB data in a shared store
// instead of flat files.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool for the given DSN and verifies it with a
// ping. Call Close when done.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ServiceCIByName resolves a CI by case-insensitive exact name match.
// Returns (nil, nil) when no CI carries that name.
func (s *PostgresStore) ServiceCIByName(ctx context.Context, name string) (*model.ServiceCI, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ci_id, name, type, criticality, dependents, users
		 FROM service_cis WHERE lower(name) = $1`, strings.ToLower(name))
	if err != nil {
		return nil, fmt.Errorf("query service_cis: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var ci model.ServiceCI
	if err := rows.Scan(&ci.CIID, &ci.Name, &ci.Type, &ci.Criticality, &ci.Dependents, &ci.Users); err != nil {
		return nil, fmt.Errorf("scan service_ci: %w", err)
	}
	return &ci, rows.Err()
}

// UsersForService returns the users entitled to the given CI.
func (s *PostgresStore) UsersForService(ctx context.Context, ci *model.ServiceCI) ([]model.User, error) {
	if ci == nil || len(ci.Users) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, name, department, is_vip
		 FROM users WHERE user_id = ANY($1)`, ci.Users)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.UserID, &u.Name, &u.Department, &u.IsVIP); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecentChanges returns changes against the CI implemented inside the window.
func (s *PostgresStore) RecentChanges(ctx context.Context, ciID string, window time.Duration) ([]model.ChangeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT change_id, summary, ci_id, implemented_at, risk_score
		 FROM change_records WHERE ci_id = $1 AND implemented_at > $2`,
		ciID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query change_records: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		if err := rows.Scan(&c.ChangeID, &c.Summary, &c.CIID, &c.ImplementedAt, &c.RiskScore); err != nil {
			return nil, fmt.Errorf("scan change_record: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HealthHistory returns health samples for the CI inside the window.
func (s *PostgresStore) HealthHistory(ctx context.Context, ciID string, window time.Duration) ([]model.ServiceHealth, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ci_id, timestamp, health_score
		 FROM service_health WHERE ci_id = $1 AND timestamp > $2`,
		ciID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query service_health: %w", err)
	}
	defer rows.Close()

	var out []model.ServiceHealth
	for rows.Next() {
		var h model.ServiceHealth
		if err := rows.Scan(&h.CIID, &h.Timestamp, &h.HealthScore); err != nil {
			return nil, fmt.Errorf("scan service_health: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReassignmentHistory returns every recorded reassignment of the incident.
func (s *PostgresStore) ReassignmentHistory(ctx context.Context, incidentID string) ([]model.ReassignmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT incident_id, timestamp, from_group, to_group
		 FROM reassignments WHERE incident_id = $1 ORDER BY timestamp`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query reassignments: %w", err)
	}
	defer rows.Close()

	var out []model.ReassignmentRecord
	for rows.Next() {
		var r model.ReassignmentRecord
		if err := rows.Scan(&r.IncidentID, &r.Timestamp, &r.FromGroup, &r.ToGroup); err != nil {
			return nil, fmt.Errorf("scan reassignment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HistoricalIncidents returns the full resolved-incident dataset.
func (s *PostgresStore) HistoricalIncidents(ctx context.Context) ([]model.HistoricalIncident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT incident_id, summary, description, service_ci_name, priority,
		        created_at, status, assigned_to, affected_users,
		        is_major_incident, resolution_time, reassignment_count
		 FROM historical_incidents`)
	if err != nil {
		return nil, fmt.Errorf("query historical_incidents: %w", err)
	}
	defer rows.Close()

	var out []model.HistoricalIncident
	for rows.Next() {
		var h model.HistoricalIncident
		if err := rows.Scan(&h.IncidentID, &h.Summary, &h.Description, &h.ServiceCIName,
			&h.Priority, &h.CreatedAt, &h.Status, &h.AssignedTo, &h.AffectedUsers,
			&h.IsMajorIncident, &h.ResolutionTime, &h.ReassignmentCount); err != nil {
			return nil, fmt.Errorf("scan historical_incident: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
