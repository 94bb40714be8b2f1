// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/hirelens/hirelens/internal/domain"
)

// Repository defines the interface for persisting interview records.
type Repository interface {
	// GetInterview retrieves an interview by id. Returns (nil, nil) when the
	// id is unknown.
	GetInterview(ctx context.Context, id string) (*domain.Interview, error)

	// CreateInterview inserts a new interview record.
	CreateInterview(ctx context.Context, iv *domain.Interview) error

	// UpdateInterview overwrites the full interview record (last-write-wins).
	UpdateInterview(ctx context.Context, iv *domain.Interview) error

	// UpdateStatus persists a status change without touching other fields.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error

	// SaveAnalysis persists the live transcript and analysis snapshot.
	// Used for best-effort snapshots during an ongoing session.
	SaveAnalysis(ctx context.Context, id string, transcript string, analysis *domain.AnalysisSnapshot) error

	// ListInterviews returns interviews created by the given user, newest first.
	ListInterviews(ctx context.Context, createdBy string) ([]*domain.Interview, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
