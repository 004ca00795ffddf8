package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
	"github.com/username/portfoliopulse/backend/src/services"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type stubUpdater struct {
	status    services.RunStatus
	positions *models.Table
	summary   *models.PortfolioSummary
	runs      int
	runErr    error
}

func (s *stubUpdater) RunUpdate(ctx context.Context) error {
	s.runs++
	return s.runErr
}

func (s *stubUpdater) Status() services.RunStatus { return s.status }

func (s *stubUpdater) Positions() *models.Table {
	if s.positions == nil {
		return models.NewTable()
	}
	return s.positions
}

func (s *stubUpdater) LastSummary() (models.PortfolioSummary, bool) {
	if s.summary == nil {
		return models.PortfolioSummary{}, false
	}
	return *s.summary, true
}

func newTestHandler(updater services.UpdaterService) *PortfolioHandler {
	return NewPortfolioHandler(updater, cache.New(time.Minute, time.Minute))
}

func TestHandleRunUpdate_Accepted(t *testing.T) {
	stub := &stubUpdater{}
	h := newTestHandler(stub)

	rec := httptest.NewRecorder()
	h.HandleRunUpdate(rec, httptest.NewRequest(http.MethodPost, "/api/update", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleRunUpdate_ConflictWhileRunning(t *testing.T) {
	stub := &stubUpdater{status: services.RunStatus{IsUpdating: true}}
	h := newTestHandler(stub)

	rec := httptest.NewRecorder()
	h.HandleRunUpdate(rec, httptest.NewRequest(http.MethodPost, "/api/update", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, stub.runs, "no new run may start while one is in flight")
}

func TestHandleGetPortfolio(t *testing.T) {
	positions := models.NewTable()
	positions.AppendRow(map[string]any{
		models.ColTicker:   "PETR4",
		models.ColQuantity: 100.0,
	})
	h := newTestHandler(&stubUpdater{positions: positions})

	rec := httptest.NewRecorder()
	h.HandleGetPortfolio(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Status         string           `json:"status"`
		Data           []map[string]any `json:"data"`
		TotalPositions int              `json:"total_positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "success", payload.Status)
	assert.Equal(t, 1, payload.TotalPositions)
	require.Len(t, payload.Data, 1)
	assert.Equal(t, "PETR4", payload.Data[0][models.ColTicker])
}

func TestHandleGetSummary_NotFoundBeforeFirstRun(t *testing.T) {
	h := newTestHandler(&stubUpdater{})

	rec := httptest.NewRecorder()
	h.HandleGetSummary(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetSummary_ReturnsLastRun(t *testing.T) {
	h := newTestHandler(&stubUpdater{summary: &models.PortfolioSummary{
		TotalInvested:     4900,
		TotalCurrentValue: 6250,
		ProfitLoss:        1350,
		ROIPercent:        27.55,
		PerAssetDetail:    []map[string]any{},
	}})

	rec := httptest.NewRecorder()
	h.HandleGetSummary(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.PortfolioSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.InDelta(t, 1350.0, summary.ProfitLoss, 1e-9)
}

func TestHandleTestWorkbook_EmptySheet(t *testing.T) {
	h := newTestHandler(&stubUpdater{})

	rec := httptest.NewRecorder()
	h.HandleTestWorkbook(rec, httptest.NewRequest(http.MethodGet, "/api/test-workbook", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
