package workbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/portfoliopulse/backend/src/models"
)

func TestCanonicalColumnName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Preço Médio ", "PRECO MEDIO"},
		{"  quantidade", "QUANTIDADE"},
		{"Rentabilidade (últ. mês)", "RENTABILIDADE ULT MES"},
		{"VALOR_ATUAL", "VALOR_ATUAL"},
		{"Cotação R$/un", "COTACAO R UN"},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalColumnName(tc.in), "input %q", tc.in)
	}
}

func TestNormalize_RenamesAndCoerces(t *testing.T) {
	raw := models.NewTable()
	raw.AppendRow(map[string]any{
		"Ativo":            "PETR4",
		"Qtd":              "100",
		"Preço Médio":      "R$ 36,50",
		"Cotação":          "38,10",
		"Data Atualização": "14/03/2025",
	})

	got := Normalize(raw)

	require.True(t, got.HasColumn(models.ColTicker))
	require.True(t, got.HasColumn(models.ColQuantity))
	require.True(t, got.HasColumn(models.ColAvgPrice))
	require.True(t, got.HasColumn(models.ColCurrentPrice))
	require.True(t, got.HasColumn(models.ColLastUpdate))

	qty, _ := got.Value(0, models.ColQuantity)
	assert.Equal(t, 100.0, qty)
	avg, _ := got.Value(0, models.ColAvgPrice)
	assert.Equal(t, 36.5, avg)
	cur, _ := got.Value(0, models.ColCurrentPrice)
	assert.Equal(t, 38.1, cur)
	date, _ := got.Value(0, models.ColLastUpdate)
	assert.Equal(t, "2025-03-14", date)
}

func TestNormalize_DropsEmptyColumnsAndRows(t *testing.T) {
	raw := models.NewTable()
	require.NoError(t, raw.AddColumn("Ativo", []any{"PETR4", nil, "VALE3"}))
	require.NoError(t, raw.AddColumn("Qtd", []any{"100", "  ", "50"}))
	require.NoError(t, raw.AddColumn("UNNAMED 3", []any{"x", "y", "z"}))
	require.NoError(t, raw.AddColumn("Obs", []any{nil, "", nil}))

	got := Normalize(raw)

	assert.False(t, got.HasColumn("OBS"), "all-empty column must be dropped")
	assert.False(t, got.HasColumn("UNNAMED 3"), "placeholder header must be dropped")
	assert.Equal(t, 2, got.NumRows(), "the all-empty middle row must be dropped")

	first, _ := got.Value(0, models.ColTicker)
	second, _ := got.Value(1, models.ColTicker)
	assert.Equal(t, "PETR4", first)
	assert.Equal(t, "VALE3", second)
}

func TestNormalize_DefaultsMonthlyReturnAndLastUpdate(t *testing.T) {
	raw := models.NewTable()
	raw.AppendRow(map[string]any{"Ativo": "PETR4", "Qtd": "100"})

	got := Normalize(raw)

	require.True(t, got.HasColumn(models.ColMonthlyReturn))
	rent, _ := got.Value(0, models.ColMonthlyReturn)
	assert.Equal(t, 0.0, rent)

	date, _ := got.Value(0, models.ColLastUpdate)
	assert.Equal(t, time.Now().Format("2006-01-02"), date)
}

func TestNormalize_UnparseableNumericBecomesNil(t *testing.T) {
	raw := models.NewTable()
	raw.AppendRow(map[string]any{"Ativo": "PETR4", "Qtd": "cem"})

	got := Normalize(raw)

	qty, ok := got.Value(0, models.ColQuantity)
	require.True(t, ok)
	assert.Nil(t, qty)
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := models.NewTable()
	raw.AppendRow(map[string]any{
		"Ativo":            "PETR4",
		"Qtd":              "100",
		"Preço Médio":      "36,50",
		"Data Atualização": "2025-03-14",
	})
	raw.AppendRow(map[string]any{
		"Ativo":            "VALE3",
		"Qtd":              "50",
		"Preço Médio":      "61,20",
		"Data Atualização": "2025-03-15",
	})

	once := Normalize(raw)
	twice := Normalize(once)

	assert.Equal(t, once.Columns(), twice.Columns())
	assert.Equal(t, once.Records(), twice.Records())
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	raw := models.NewTable()
	raw.AppendRow(map[string]any{"Ativo": "PETR4", "Qtd": "100"})

	Normalize(raw)

	assert.Equal(t, []string{"Ativo", "Qtd"}, raw.Columns())
	qty, _ := raw.Value(0, "Qtd")
	assert.Equal(t, "100", qty)
}
