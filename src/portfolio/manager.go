package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
)

// Manager owns the canonical in-memory position table and folds freshly
// fetched prices and derived valuations into it. It is not safe for
// concurrent use; the updater serializes access.
type Manager struct {
	positions *models.Table
}

// NewManager creates a manager with an empty position table.
func NewManager() *Manager {
	return &Manager{positions: models.NewTable()}
}

// Load replaces the held position table with a defensive copy. Previously
// derived valuation columns are dropped; they are recomputed per run rather
// than carried over.
func (m *Manager) Load(positions *models.Table) {
	m.positions = positions.Clone()
	m.positions.DropColumn(models.ColCurrentValue)
	m.positions.DropColumn(models.ColInvestedValue)
	logger.L.Info("Portfolio positions loaded", "rows", m.positions.NumRows())
}

// UpdatePrices performs a left merge of a TICKER-keyed price table into the
// positions: every held position survives, unmatched rows keep their previous
// price, and tickers present only in the price table are never added. An
// empty price table leaves everything untouched.
func (m *Manager) UpdatePrices(prices *models.Table) {
	if m.positions.IsEmpty() {
		logger.L.Warn("No portfolio positions loaded to update prices")
		return
	}
	if !m.positions.HasColumn(models.ColCurrentPrice) {
		m.positions.AddColumnFill(models.ColCurrentPrice, nil)
	}
	if prices.IsEmpty() {
		logger.L.Info("No new prices to apply, keeping existing prices")
		return
	}
	if !prices.HasColumn(models.ColTicker) || !prices.HasColumn(models.ColCurrentPrice) {
		logger.L.Warn("Price table missing ticker or price column, ignoring",
			"columns", prices.Columns())
		return
	}

	// Within one price table, a later row for the same ticker wins.
	byTicker := make(map[string]float64)
	n := prices.NumRows()
	for row := 0; row < n; row++ {
		ticker, ok := cellString(prices, row, models.ColTicker)
		if !ok {
			continue
		}
		priceCell, _ := prices.Value(row, models.ColCurrentPrice)
		if price, ok := cellFloat(priceCell); ok {
			byTicker[ticker] = price
		}
	}

	updated := 0
	n = m.positions.NumRows()
	for row := 0; row < n; row++ {
		ticker, ok := cellString(m.positions, row, models.ColTicker)
		if !ok {
			continue
		}
		if price, ok := byTicker[ticker]; ok {
			m.positions.SetValue(row, models.ColCurrentPrice, price)
			updated++
		}
	}
	logger.L.Info("Portfolio prices updated", "matched", updated, "positions", n)
}

// CalculateCurrentValue derives VALOR_ATUAL (quantity x current price) and
// VALOR_INVESTIDO (quantity x average cost) per row. When a required column
// is missing the table is left unmodified; callers check for the derived
// columns before depending on them.
func (m *Manager) CalculateCurrentValue() {
	required := []string{models.ColQuantity, models.ColCurrentPrice, models.ColAvgPrice}
	for _, col := range required {
		if !m.positions.HasColumn(col) {
			logger.L.Warn("Cannot calculate current value, column missing", "column", col)
			return
		}
	}

	n := m.positions.NumRows()
	current := make([]any, n)
	invested := make([]any, n)
	for row := 0; row < n; row++ {
		qtyCell, _ := m.positions.Value(row, models.ColQuantity)
		priceCell, _ := m.positions.Value(row, models.ColCurrentPrice)
		avgCell, _ := m.positions.Value(row, models.ColAvgPrice)

		qty, qtyOK := cellFloat(qtyCell)
		if price, ok := cellFloat(priceCell); ok && qtyOK {
			current[row] = mulFloat(qty, price)
		}
		if avg, ok := cellFloat(avgCell); ok && qtyOK {
			invested[row] = mulFloat(qty, avg)
		}
	}
	m.positions.AddColumn(models.ColCurrentValue, current)
	m.positions.AddColumn(models.ColInvestedValue, invested)
	logger.L.Info("Current values calculated", "rows", n)
}

// Summary aggregates the valuation. An empty or incomplete position table
// yields a zeroed summary with an empty detail list; it never fails.
func (m *Manager) Summary() models.PortfolioSummary {
	summary := models.PortfolioSummary{PerAssetDetail: []map[string]any{}}
	if m.positions.IsEmpty() {
		return summary
	}
	for _, col := range []string{models.ColQuantity, models.ColAvgPrice, models.ColCurrentValue} {
		if !m.positions.HasColumn(col) {
			logger.L.Warn("Cannot build portfolio summary, column missing", "column", col)
			return summary
		}
	}

	totalInvested := decimal.Zero
	totalCurrent := decimal.Zero
	n := m.positions.NumRows()
	for row := 0; row < n; row++ {
		qtyCell, _ := m.positions.Value(row, models.ColQuantity)
		avgCell, _ := m.positions.Value(row, models.ColAvgPrice)
		curCell, _ := m.positions.Value(row, models.ColCurrentValue)

		qty, qtyOK := cellFloat(qtyCell)
		avg, avgOK := cellFloat(avgCell)
		if qtyOK && avgOK {
			totalInvested = totalInvested.Add(decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(avg)))
		}
		if cur, ok := cellFloat(curCell); ok {
			totalCurrent = totalCurrent.Add(decimal.NewFromFloat(cur))
		}
	}

	profitLoss := totalCurrent.Sub(totalInvested)
	roi := decimal.Zero
	if !totalInvested.IsZero() {
		roi = profitLoss.Div(totalInvested).Mul(decimal.NewFromInt(100))
	}

	summary.TotalInvested = totalInvested.InexactFloat64()
	summary.TotalCurrentValue = totalCurrent.InexactFloat64()
	summary.ProfitLoss = profitLoss.InexactFloat64()
	summary.ROIPercent = roi.InexactFloat64()
	summary.PerAssetDetail = m.positions.Records()
	return summary
}

// Data returns a deep copy of the held position table.
func (m *Manager) Data() *models.Table {
	return m.positions.Clone()
}

func cellString(t *models.Table, row int, col string) (string, bool) {
	v, ok := t.Value(row, col)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func cellFloat(v any) (float64, bool) {
	parsed := models.ParseNumber(v)
	if parsed == nil {
		return 0, false
	}
	return parsed.(float64), true
}

// mulFloat multiplies through decimal so valuation cells do not accumulate
// binary float drift (0.1 * 3 style artifacts) before being written back.
func mulFloat(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).InexactFloat64()
}
