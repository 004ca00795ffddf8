package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/portfoliopulse/backend/src/models"
)

const (
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 10 * time.Minute
)

var (
	// ErrUpdateInProgress signals that a run was refused because another
	// one holds the in-flight token. At most one update run may touch the
	// workbook at a time.
	ErrUpdateInProgress = errors.New("portfolio update already in progress")
	// ErrNoPositions aborts a run early: with nothing read from the
	// positions sheet there is nothing to enrich.
	ErrNoPositions = errors.New("no positions found in workbook")
)

// RunLogEntry is one line of a run's progress log, served to the web layer.
type RunLogEntry struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
}

// RunStatus describes the current or most recent update run.
type RunStatus struct {
	IsUpdating  bool          `json:"is_updating"`
	RunID       string        `json:"run_id,omitempty"`
	Progress    int           `json:"progress"`
	CurrentStep string        `json:"current_step"`
	Logs        []RunLogEntry `json:"logs"`
	LastUpdate  string        `json:"last_update,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// UpdaterService drives one full update cycle: read positions, collect and
// consolidate source tables, merge prices, derive valuation, persist the
// result plus a dated snapshot.
type UpdaterService interface {
	RunUpdate(ctx context.Context) error
	Status() RunStatus
	Positions() *models.Table
	LastSummary() (models.PortfolioSummary, bool)
}

// Notifier delivers a run report to an external channel. Implementations are
// best-effort: a failed notification never fails the run.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
