// Package store persists report run history.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/keyword-cli/internal/model"
)

// ErrRunNotFound is matched (errors.Is) when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Input  string          `json:"input,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Summary aggregates run history.
type Summary struct {
	Total        int                     `json:"total"`
	ByStatus     map[model.RunStatus]int `json:"by_status"`
	TotalRevenue float64                 `json:"total_revenue"`
}

// Store defines the persistence interface for report runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input, mode string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	Summarize(ctx context.Context) (*Summary, error)

	// Report rows, stored in report order.
	SaveReportRows(ctx context.Context, runID string, rows []model.ReportRow) error
	GetReportRows(ctx context.Context, runID string) ([]model.ReportRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
