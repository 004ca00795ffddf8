package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
	"github.com/username/portfoliopulse/backend/src/portfolio"
	"github.com/username/portfoliopulse/backend/src/sources"
	"github.com/username/portfoliopulse/backend/src/workbook"
)

type updaterServiceImpl struct {
	store          *workbook.Store
	registry       *sources.Registry
	manager        *portfolio.Manager
	notifier       Notifier
	positionsSheet string
	snapshotPrefix string
	priceSources   []string

	// running is the single in-flight token: the pipeline performs no
	// locking around workbook access, so overlapping runs must be refused
	// here rather than interleaved.
	running atomic.Bool

	mu          sync.Mutex
	status      RunStatus
	lastSummary *models.PortfolioSummary
}

// NewUpdaterService wires the pipeline components together. priceSources
// names the registered sources queried for prices on every run, in order.
func NewUpdaterService(
	store *workbook.Store,
	registry *sources.Registry,
	notifier Notifier,
	positionsSheet string,
	snapshotPrefix string,
	priceSources []string,
) UpdaterService {
	return &updaterServiceImpl{
		store:          store,
		registry:       registry,
		manager:        portfolio.NewManager(),
		notifier:       notifier,
		positionsSheet: positionsSheet,
		snapshotPrefix: snapshotPrefix,
		priceSources:   priceSources,
	}
}

// RunUpdate executes the full pipeline. It returns ErrUpdateInProgress when
// another run holds the token, ErrNoPositions when the workbook yields no
// positions, and otherwise the first persistence error. Source-level
// failures degrade gracefully: the run completes with whatever was fetched.
func (s *updaterServiceImpl) RunUpdate(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		logger.L.Warn("Update run refused, another run is in flight")
		return ErrUpdateInProgress
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	s.beginRun(runID)
	logger.L.Info("Starting portfolio update", "runID", runID)

	err := s.runPipeline(ctx)
	s.endRun(err)
	if err != nil {
		logger.L.Error("Portfolio update failed", "runID", runID, "error", err)
		return err
	}
	logger.L.Info("Portfolio update completed", "runID", runID)
	return nil
}

func (s *updaterServiceImpl) runPipeline(ctx context.Context) error {
	// 1. Base positions from the workbook.
	s.step(10, "Loading portfolio positions from workbook")
	positions := s.store.Read(s.positionsSheet)
	if positions.IsEmpty() {
		s.step(100, "No positions found, aborting run")
		return fmt.Errorf("%w: sheet %q", ErrNoPositions, s.positionsSheet)
	}
	s.manager.Load(positions)
	s.step(25, fmt.Sprintf("Loaded %d positions", positions.NumRows()))

	// 2. Collect price tables from every configured source; one source
	// failing or returning nothing never aborts the run.
	tickers := positionTickers(positions)
	collected := make([]*models.Table, 0, len(s.priceSources))
	for _, name := range s.priceSources {
		s.step(40, fmt.Sprintf("Collecting prices from source %q", name))
		tbl, err := s.registry.Collect(ctx, name, map[string]any{"tickers": tickers})
		if err != nil {
			if errors.Is(err, sources.ErrSourceNotRegistered) {
				logger.L.Error("Configured price source is not registered", "source", name)
			} else {
				logger.L.Warn("Price source failed, continuing without it", "source", name, "error", err)
			}
			continue
		}
		if tbl.IsEmpty() {
			logger.L.Warn("Price source returned no data", "source", name)
			continue
		}
		collected = append(collected, tbl)
	}

	prices := sources.Standardize(sources.Consolidate(collected))
	if prices.IsEmpty() {
		s.step(55, "No prices fetched, keeping existing prices")
	} else {
		s.step(55, fmt.Sprintf("Merging %d fetched prices", prices.NumRows()))
		s.manager.UpdatePrices(prices)
	}

	// 3. Valuation.
	s.step(70, "Calculating portfolio values")
	s.manager.CalculateCurrentValue()
	summary := s.manager.Summary()

	// 4. Persist the enriched table and the dated snapshot.
	valued := s.manager.Data()
	valued.AddColumnFill(models.ColLastUpdate, time.Now().Format("2006-01-02"))

	s.step(85, "Writing positions back to workbook")
	if err := s.store.Write(valued, s.positionsSheet); err != nil {
		return fmt.Errorf("persist positions: %w", err)
	}
	sheetName, err := s.store.WriteHistoricalSnapshot(valued, s.snapshotPrefix)
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.step(95, fmt.Sprintf("Historical snapshot %q written", sheetName))

	s.mu.Lock()
	s.lastSummary = &summary
	s.mu.Unlock()

	s.notify(ctx, summary)
	s.step(100, "Portfolio update completed")
	return nil
}

func (s *updaterServiceImpl) notify(ctx context.Context, summary models.PortfolioSummary) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf(
		"Portfolio atualizado.\nInvestido: R$ %.2f\nValor atual: R$ %.2f\nResultado: R$ %.2f (%.2f%%)",
		summary.TotalInvested, summary.TotalCurrentValue, summary.ProfitLoss, summary.ROIPercent,
	)
	if err := s.notifier.Notify(ctx, text); err != nil {
		logger.L.Warn("Run notification failed", "error", err)
	}
}

// Status returns a copy of the current run status.
func (s *updaterServiceImpl) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	status.Logs = append([]RunLogEntry(nil), s.status.Logs...)
	return status
}

// Positions reads the current positions sheet (through the store cache).
func (s *updaterServiceImpl) Positions() *models.Table {
	return s.store.Read(s.positionsSheet)
}

// LastSummary returns the summary of the most recent successful run.
func (s *updaterServiceImpl) LastSummary() (models.PortfolioSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSummary == nil {
		return models.PortfolioSummary{}, false
	}
	return *s.lastSummary, true
}

func (s *updaterServiceImpl) beginRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = RunStatus{
		IsUpdating: true,
		RunID:      runID,
		Logs:       []RunLogEntry{},
	}
}

func (s *updaterServiceImpl) endRun(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.IsUpdating = false
	if err != nil {
		s.status.Error = err.Error()
	} else {
		s.status.LastUpdate = time.Now().Format(time.RFC3339)
	}
}

func (s *updaterServiceImpl) step(progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Progress = progress
	s.status.CurrentStep = message
	s.status.Logs = append(s.status.Logs, RunLogEntry{
		Message: message,
		Time:    time.Now(),
		Level:   "info",
	})
}

func positionTickers(positions *models.Table) []string {
	tickers := make([]string, 0, positions.NumRows())
	for _, v := range positions.Column(models.ColTicker) {
		if s, ok := v.(string); ok && s != "" {
			tickers = append(tickers, s)
		}
	}
	return tickers
}
