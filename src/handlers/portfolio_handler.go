package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/services"
	"github.com/username/portfoliopulse/backend/src/utils"
)

const ckPortfolioRecords = "res_portfolio_records"

// workbookPreviewRows bounds the /test-workbook response.
const workbookPreviewRows = 5

// PortfolioHandler exposes the update pipeline over thin HTTP routes.
type PortfolioHandler struct {
	updater     services.UpdaterService
	reportCache *cache.Cache
}

// NewPortfolioHandler creates the handler. reportCache keeps the (workbook
// backed) portfolio listing from re-reading the file on every request.
func NewPortfolioHandler(updater services.UpdaterService, reportCache *cache.Cache) *PortfolioHandler {
	return &PortfolioHandler{updater: updater, reportCache: reportCache}
}

// HandleGetStatus returns liveness plus the state of the current or most
// recent update run.
func (h *PortfolioHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, map[string]any{
		"status":    "running",
		"timestamp": time.Now().Format(time.RFC3339),
		"update":    h.updater.Status(),
	}, http.StatusOK)
}

// HandleRunUpdate triggers a manual update run in the background. A run
// already in flight yields 409; the updater's own token is the authoritative
// guard, this check only keeps the response honest.
func (h *PortfolioHandler) HandleRunUpdate(w http.ResponseWriter, r *http.Request) {
	if h.updater.Status().IsUpdating {
		utils.SendJSONError(w, "Atualização já em andamento", http.StatusConflict)
		return
	}

	h.reportCache.Delete(ckPortfolioRecords)

	// The run outlives the request; give it a fresh context.
	go func() {
		if err := h.updater.RunUpdate(context.Background()); err != nil {
			logger.L.Error("Background update run failed", "error", err)
		}
	}()

	utils.SendJSON(w, map[string]string{"message": "Atualização iniciada"}, http.StatusAccepted)
}

// HandleGetPortfolio returns the current positions sheet as JSON records.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	if cached, found := h.reportCache.Get(ckPortfolioRecords); found {
		utils.SendJSON(w, cached, http.StatusOK)
		return
	}

	table := h.updater.Positions()
	payload := map[string]any{
		"status":          "success",
		"data":            table.Records(),
		"total_positions": table.NumRows(),
	}
	if table.IsEmpty() {
		payload["message"] = "Nenhuma posição encontrada"
	}
	h.reportCache.Set(ckPortfolioRecords, payload, cache.DefaultExpiration)
	utils.SendJSON(w, payload, http.StatusOK)
}

// HandleGetSummary returns the valuation summary of the last completed run.
func (h *PortfolioHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.updater.LastSummary()
	if !ok {
		utils.SendJSONError(w, "No completed update run yet", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, summary, http.StatusOK)
}

// HandleGetLogs returns the progress log of the current or last run.
func (h *PortfolioHandler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	status := h.updater.Status()
	utils.SendJSON(w, map[string]any{
		"is_updating":  status.IsUpdating,
		"progress":     status.Progress,
		"current_step": status.CurrentStep,
		"logs":         status.Logs,
	}, http.StatusOK)
}

// HandleTestWorkbook reads the positions sheet and returns a short preview,
// so a user can verify the workbook path and sheet name are configured right.
func (h *PortfolioHandler) HandleTestWorkbook(w http.ResponseWriter, r *http.Request) {
	table := h.updater.Positions()
	if table.IsEmpty() {
		utils.SendJSONError(w,
			"A planilha está vazia ou não pôde ser lida. Verifique o caminho e o nome da planilha.",
			http.StatusBadRequest)
		return
	}

	records := table.Records()
	if len(records) > workbookPreviewRows {
		records = records[:workbookPreviewRows]
	}
	utils.SendJSON(w, map[string]any{
		"status":  "success",
		"preview": records,
		"columns": table.Columns(),
	}, http.StatusOK)
}
