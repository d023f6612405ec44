// Package store persists run reports so past runs can be listed and shown.
package store

import (
	"context"
	"errors"

	"github.com/seantiz/compute/internal/model"
)

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Store defines the persistence operations for run reports.
type Store interface {
	SaveReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, runID string) (*model.Report, error)
	// ListRuns returns up to limit run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)
	Close() error
}
