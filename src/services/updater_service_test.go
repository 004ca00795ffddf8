package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
	"github.com/username/portfoliopulse/backend/src/sources"
	"github.com/username/portfoliopulse/backend/src/workbook"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type fakeProvider struct {
	table *models.Table
	err   error
}

func (p *fakeProvider) Fetch(ctx context.Context, params map[string]any) (*models.Table, error) {
	return p.table, p.err
}

type blockingProvider struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Fetch(ctx context.Context, params map[string]any) (*models.Table, error) {
	close(p.started)
	<-p.release
	return models.NewTable(), nil
}

type captureNotifier struct {
	texts []string
}

func (n *captureNotifier) Notify(ctx context.Context, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func newTestStore(t *testing.T, positions *models.Table) *workbook.Store {
	t.Helper()
	store := workbook.NewStore(filepath.Join(t.TempDir(), "portfolio.xlsx"), time.Minute)
	if positions != nil {
		require.NoError(t, store.Write(positions, "Posicoes"))
	}
	return store
}

func basePositions() *models.Table {
	tbl := models.NewTable()
	tbl.AppendRow(map[string]any{
		models.ColTicker:   "PETR4",
		models.ColQuantity: 100.0,
		models.ColAvgPrice: 24.5,
	})
	tbl.AppendRow(map[string]any{
		models.ColTicker:   "VALE3",
		models.ColQuantity: 50.0,
		models.ColAvgPrice: 49.0,
	})
	return tbl
}

func priceRows(prices map[string]float64, order []string) *models.Table {
	tbl := models.NewTable()
	for _, ticker := range order {
		tbl.AppendRow(map[string]any{
			models.ColTicker:       ticker,
			models.ColCurrentPrice: prices[ticker],
		})
	}
	return tbl
}

func TestUpdaterService_RunUpdateEndToEnd(t *testing.T) {
	store := newTestStore(t, basePositions())

	registry := sources.NewRegistry()
	registry.Register("fake", &fakeProvider{table: priceRows(map[string]float64{
		"PETR4": 40.0,
		"VALE3": 45.0,
	}, []string{"PETR4", "VALE3"})})

	notifier := &captureNotifier{}
	svc := NewUpdaterService(store, registry, notifier, "Posicoes", "base", []string{"fake"})

	require.NoError(t, svc.RunUpdate(context.Background()))

	// The enriched table landed back in the workbook.
	got := store.Read("Posicoes")
	require.Equal(t, 2, got.NumRows())
	price, _ := got.Value(0, models.ColCurrentPrice)
	assert.Equal(t, 40.0, price)
	cur, _ := got.Value(0, models.ColCurrentValue)
	assert.Equal(t, 4000.0, cur)
	inv, _ := got.Value(1, models.ColInvestedValue)
	assert.Equal(t, 2450.0, inv)
	stamp, _ := got.Value(0, models.ColLastUpdate)
	assert.Equal(t, time.Now().Format("2006-01-02"), stamp)

	// So did the dated snapshot.
	snapshot := store.Read("base" + time.Now().Format("20060102"))
	assert.Equal(t, 2, snapshot.NumRows())

	summary, ok := svc.LastSummary()
	require.True(t, ok)
	assert.InDelta(t, 4900.0, summary.TotalInvested, 1e-9)
	assert.InDelta(t, 6250.0, summary.TotalCurrentValue, 1e-9)
	assert.InDelta(t, 1350.0, summary.ProfitLoss, 1e-9)

	status := svc.Status()
	assert.False(t, status.IsUpdating)
	assert.Equal(t, 100, status.Progress)
	assert.NotEmpty(t, status.LastUpdate)
	assert.Empty(t, status.Error)

	require.Len(t, notifier.texts, 1)
	assert.True(t, strings.Contains(notifier.texts[0], "Portfolio atualizado"))
}

func TestUpdaterService_NoPositionsAbortsRun(t *testing.T) {
	store := newTestStore(t, nil)
	svc := NewUpdaterService(store, sources.NewRegistry(), nil, "Posicoes", "base", nil)

	err := svc.RunUpdate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPositions))

	status := svc.Status()
	assert.False(t, status.IsUpdating)
	assert.NotEmpty(t, status.Error)

	_, ok := svc.LastSummary()
	assert.False(t, ok)
}

func TestUpdaterService_ConcurrentRunRefused(t *testing.T) {
	store := newTestStore(t, basePositions())

	blocker := &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	registry := sources.NewRegistry()
	registry.Register("slow", blocker)

	svc := NewUpdaterService(store, registry, nil, "Posicoes", "base", []string{"slow"})

	done := make(chan error, 1)
	go func() { done <- svc.RunUpdate(context.Background()) }()

	<-blocker.started
	assert.True(t, svc.Status().IsUpdating)
	assert.ErrorIs(t, svc.RunUpdate(context.Background()), ErrUpdateInProgress)

	close(blocker.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Status().IsUpdating)
}

func TestUpdaterService_SourceFailureDegradesGracefully(t *testing.T) {
	store := newTestStore(t, basePositions())

	registry := sources.NewRegistry()
	registry.Register("flaky", &fakeProvider{err: errors.New("upstream down")})

	// "ghost" is configured but never registered; neither failure aborts.
	svc := NewUpdaterService(store, registry, nil, "Posicoes", "base", []string{"flaky", "ghost"})

	require.NoError(t, svc.RunUpdate(context.Background()))

	got := store.Read("Posicoes")
	require.Equal(t, 2, got.NumRows())
	stamp, _ := got.Value(0, models.ColLastUpdate)
	assert.Equal(t, time.Now().Format("2006-01-02"), stamp, "the run still persists what it has")
}

func TestUpdaterService_PartialPricesKeepUnmatchedPositions(t *testing.T) {
	store := newTestStore(t, basePositions())

	registry := sources.NewRegistry()
	registry.Register("fake", &fakeProvider{table: priceRows(map[string]float64{
		"PETR4": 40.0,
	}, []string{"PETR4"})})

	svc := NewUpdaterService(store, registry, nil, "Posicoes", "base", []string{"fake"})
	require.NoError(t, svc.RunUpdate(context.Background()))

	got := store.Read("Posicoes")
	require.Equal(t, 2, got.NumRows())
	matched, _ := got.Value(0, models.ColCurrentPrice)
	assert.Equal(t, 40.0, matched)
	unmatched, _ := got.Value(1, models.ColCurrentPrice)
	assert.Nil(t, unmatched, "VALE3 had no prior price and none was fetched")
}
