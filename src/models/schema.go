package models

// Canonical column names produced by workbook normalization. The position
// sheet is maintained in pt-BR; normalization maps every locale variant onto
// these names, so the rest of the pipeline never sees raw headers.
const (
	ColTicker        = "TICKER"
	ColQuantity      = "QUANTIDADE"
	ColAvgPrice      = "PRECO_MEDIO"
	ColCurrentPrice  = "PRECO_ATUAL"
	ColCurrentValue  = "VALOR_ATUAL"
	ColInvestedValue = "VALOR_INVESTIDO"
	ColWeight        = "PESO"
	ColDividendYield = "DY"
	ColMonthlyReturn = "RENTABILIDADE_ULT_MES"
	ColAnnualReturn  = "RENTABILIDADE_ANUAL"
	ColLastUpdate    = "DATA ATT"
)

// Column names used by external source tables before consolidation.
const (
	ColSourceDate  = "Date"
	ColSourcePrice = "Price"
)

// PortfolioSummary aggregates the valuation of the whole position table.
type PortfolioSummary struct {
	TotalInvested     float64          `json:"totalInvested"`
	TotalCurrentValue float64          `json:"totalCurrentValue"`
	ProfitLoss        float64          `json:"profitLoss"`
	ROIPercent        float64          `json:"roiPercent"`
	PerAssetDetail    []map[string]any `json:"perAssetDetail"`
}
