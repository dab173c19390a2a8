package services

import (
	"context"
	"time"
)

// StatusRepository probes the health of the persistent store.
type StatusRepository interface {
	DatabaseVersion(ctx context.Context) (string, error)
	MaxConnections(ctx context.Context) (int, error)
	OpenedConnections(ctx context.Context) (int, error)
}

// DatabaseStatus reports live Postgres health figures.
type DatabaseStatus struct {
	Version           string `json:"version"`
	MaxConnections    int    `json:"max_connections"`
	OpenedConnections int    `json:"opened_connections"`
}

// Status is the dependency health snapshot served by the status endpoint.
type Status struct {
	UpdatedAt    time.Time `json:"updated_at"`
	Dependencies struct {
		Database DatabaseStatus `json:"database"`
	} `json:"dependencies"`
}

// StatusService gathers dependency health.
type StatusService struct {
	repo StatusRepository
}

func NewStatusService(repo StatusRepository) *StatusService {
	return &StatusService{repo: repo}
}

// Check probes every dependency and returns a fresh snapshot.
func (s *StatusService) Check(ctx context.Context) (Status, error) {
	version, err := s.repo.DatabaseVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	maxConns, err := s.repo.MaxConnections(ctx)
	if err != nil {
		return Status{}, err
	}
	openedConns, err := s.repo.OpenedConnections(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{UpdatedAt: time.Now().UTC()}
	status.Dependencies.Database = DatabaseStatus{
		Version:           version,
		MaxConnections:    maxConns,
		OpenedConnections: openedConns,
	}
	return status, nil
}
