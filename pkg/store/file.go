// Package store provides the reference-data collaborators behind the decision
// engine: a flat-file JSON store for self-contained deployments, a Postgres
// store for shared CMDB data, and an optional Redis cache for detection
// results. Stores are read-only after load and safe for concurrent detections.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opsvigil/vigil/pkg/model"
)

// ReferenceStore is the accessor surface the decision engine depends on.
// A missing service CI is reported as (nil, nil), not an error; the engine
// turns that into its own not-found failure.
type ReferenceStore interface {
	ServiceCIByName(ctx context.Context, name string) (*model.ServiceCI, error)
	UsersForService(ctx context.Context, ci *model.ServiceCI) ([]model.User, error)
	RecentChanges(ctx context.Context, ciID string, window time.Duration) ([]model.ChangeRecord, error)
	HealthHistory(ctx context.Context, ciID string, window time.Duration) ([]model.ServiceHealth, error)
	ReassignmentHistory(ctx context.Context, incidentID string) ([]model.ReassignmentRecord, error)
	HistoricalIncidents(ctx context.Context) ([]model.HistoricalIncident, error)
}

// FileStore serves reference data from JSON flat files in a data directory.
// Each dataset is loaded lazily on first access and kept in memory; a file
// that does not exist behaves as an empty dataset.
type FileStore struct {
	dataDir string
	now     func() time.Time

	incidentsOnce sync.Once
	incidents     []model.HistoricalIncident
	incidentsErr  error

	cisOnce sync.Once
	cis     []model.ServiceCI
	cisErr  error

	usersOnce sync.Once
	users     []model.User
	usersErr  error

	changesOnce sync.Once
	changes     []model.ChangeRecord
	changesErr  error

	healthOnce sync.Once
	health     []model.ServiceHealth
	healthErr  error

	reassignOnce sync.Once
	reassign     []model.ReassignmentRecord
	reassignErr  error
}

// NewFileStore creates a store over the given data directory. Nothing is
// read until the first accessor call.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir, now: time.Now}
}

func loadJSON[T any](dataDir, filename string) ([]T, error) {
	path := filepath.Join(dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return items, nil
}

func (s *FileStore) historicalIncidents() ([]model.HistoricalIncident, error) {
	s.incidentsOnce.Do(func() {
		s.incidents, s.incidentsErr = loadJSON[model.HistoricalIncident](s.dataDir, "historical_incidents.json")
	})
	return s.incidents, s.incidentsErr
}

func (s *FileStore) serviceCIs() ([]model.ServiceCI, error) {
	s.cisOnce.Do(func() {
		s.cis, s.cisErr = loadJSON[model.ServiceCI](s.dataDir, "service_cis.json")
	})
	return s.cis, s.cisErr
}

func (s *FileStore) allUsers() ([]model.User, error) {
	s.usersOnce.Do(func() {
		s.users, s.usersErr = loadJSON[model.User](s.dataDir, "users.json")
	})
	return s.users, s.usersErr
}

func (s *FileStore) changeRecords() ([]model.ChangeRecord, error) {
	s.changesOnce.Do(func() {
		s.changes, s.changesErr = loadJSON[model.ChangeRecord](s.dataDir, "change_records.json")
	})
	return s.changes, s.changesErr
}

func (s *FileStore) serviceHealth() ([]model.ServiceHealth, error) {
	s.healthOnce.Do(func() {
		s.health, s.healthErr = loadJSON[model.ServiceHealth](s.dataDir, "service_health.json")
	})
	return s.health, s.healthErr
}

func (s *FileStore) reassignments() ([]model.ReassignmentRecord, error) {
	s.reassignOnce.Do(func() {
		s.reassign, s.reassignErr = loadJSON[model.ReassignmentRecord](s.dataDir, "reassignments.json")
	})
	return s.reassign, s.reassignErr
}

// ServiceCIByName resolves a CI by case-insensitive exact name match.
// Returns (nil, nil) when no CI carries that name.
func (s *FileStore) ServiceCIByName(_ context.Context, name string) (*model.ServiceCI, error) {
	cis, err := s.serviceCIs()
	if err != nil {
		return nil, err
	}
	for i := range cis {
		if strings.EqualFold(cis[i].Name, name) {
			ci := cis[i]
			return &ci, nil
		}
	}
	return nil, nil
}

// UsersForService returns the users entitled to the given CI, in the order
// they appear in the user dataset.
func (s *FileStore) UsersForService(_ context.Context, ci *model.ServiceCI) ([]model.User, error) {
	if ci == nil {
		return nil, nil
	}
	users, err := s.allUsers()
	if err != nil {
		return nil, err
	}
	entitled := make(map[string]bool, len(ci.Users))
	for _, id := range ci.Users {
		entitled[id] = true
	}
	var out []model.User
	for _, u := range users {
		if entitled[u.UserID] {
			out = append(out, u)
		}
	}
	return out, nil
}

// RecentChanges returns changes against the CI implemented inside the window.
func (s *FileStore) RecentChanges(_ context.Context, ciID string, window time.Duration) ([]model.ChangeRecord, error) {
	changes, err := s.changeRecords()
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-window)
	var out []model.ChangeRecord
	for _, c := range changes {
		if c.CIID == ciID && c.ImplementedAt.After(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

// HealthHistory returns health samples for the CI inside the window, in
// dataset order (callers sort by timestamp when trend matters).
func (s *FileStore) HealthHistory(_ context.Context, ciID string, window time.Duration) ([]model.ServiceHealth, error) {
	samples, err := s.serviceHealth()
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-window)
	var out []model.ServiceHealth
	for _, h := range samples {
		if h.CIID == ciID && h.Timestamp.After(cutoff) {
			out = append(out, h)
		}
	}
	return out, nil
}

// ReassignmentHistory returns every recorded reassignment of the incident.
func (s *FileStore) ReassignmentHistory(_ context.Context, incidentID string) ([]model.ReassignmentRecord, error) {
	records, err := s.reassignments()
	if err != nil {
		return nil, err
	}
	var out []model.ReassignmentRecord
	for _, r := range records {
		if r.IncidentID == incidentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// HistoricalIncidents returns the full resolved-incident dataset.
func (s *FileStore) HistoricalIncidents(_ context.Context) ([]model.HistoricalIncident, error) {
	return s.historicalIncidents()
}
