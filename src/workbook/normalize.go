package workbook

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/username/portfoliopulse/backend/src/models"
)

// renameTable maps canonical-form header variants onto the schema columns.
// Keys are already accent-stripped/upper-cased, so lookup happens after
// CanonicalColumnName.
var renameTable = map[string]string{
	"ATIVO":                      models.ColTicker,
	"ATIVOS":                     models.ColTicker,
	"PAPEL":                      models.ColTicker,
	"CODIGO":                     models.ColTicker,
	"SYMBOL":                     models.ColTicker,
	"QTD":                        models.ColQuantity,
	"QUANTIDADE":                 models.ColQuantity,
	"QUANTITY":                   models.ColQuantity,
	"PM":                         models.ColAvgPrice,
	"PRECO MEDIO":                models.ColAvgPrice,
	"AVERAGE COST":               models.ColAvgPrice,
	"COTACAO":                    models.ColCurrentPrice,
	"PRECO ATUAL":                models.ColCurrentPrice,
	"VALOR ATUAL":                models.ColCurrentValue,
	"VALOR INVESTIDO":            models.ColInvestedValue,
	"WEIGHT":                     models.ColWeight,
	"DIVIDEND YIELD":             models.ColDividendYield,
	"RENT MES":                   models.ColMonthlyReturn,
	"RENTABILIDADE ULT MES":      models.ColMonthlyReturn,
	"RENTABILIDADE ULTIMO MES":   models.ColMonthlyReturn,
	"RENT ANO":                   models.ColAnnualReturn,
	"RENTABILIDADE ANUAL":        models.ColAnnualReturn,
	"RENTABILIDADE 12M":          models.ColAnnualReturn,
	"DATA ATUALIZACAO":           models.ColLastUpdate,
	"ULTIMA ATUALIZACAO":         models.ColLastUpdate,
	"DATA DA ULTIMA ATUALIZACAO": models.ColLastUpdate,
}

// numericColumns are coerced to float64 on every read; unparseable cells
// become nil instead of failing the read.
var numericColumns = []string{
	models.ColQuantity,
	models.ColAvgPrice,
	models.ColCurrentPrice,
	models.ColCurrentValue,
	models.ColInvestedValue,
	models.ColWeight,
	models.ColDividendYield,
	models.ColMonthlyReturn,
	models.ColAnnualReturn,
}

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalColumnName strips accents, upper-cases and collapses a raw header
// cell. Everything that is not a letter, digit or underscore becomes a space,
// then runs of spaces collapse. "Preço Médio " -> "PRECO MEDIO".
func CanonicalColumnName(s string) string {
	stripped, _, err := transform.String(accentStripper, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.ToUpper(strings.Join(strings.Fields(b.String()), " "))
}

// Normalize canonicalizes a freshly read sheet: prunes degenerate columns and
// rows, renames headers onto the schema columns, coerces the known numeric
// columns and formats the last-update column as an ISO date string. The input
// is not modified. Normalizing an already normalized table is a no-op.
func Normalize(t *models.Table) *models.Table {
	out := t.Clone()

	// Drop columns with no data at all, then placeholder headers.
	for _, col := range out.Columns() {
		if columnEmpty(out, col) {
			out.DropColumn(col)
		}
	}
	for _, col := range out.Columns() {
		canon := CanonicalColumnName(col)
		if canon == "" || strings.HasPrefix(canon, "UNNAMED") {
			out.DropColumn(col)
			continue
		}
		out.RenameColumn(col, canon)
	}
	for _, col := range out.Columns() {
		if target, ok := renameTable[col]; ok {
			out.RenameColumn(col, target)
		}
	}

	for _, col := range numericColumns {
		coerceNumeric(out, col)
	}

	// The monthly-return column participates in downstream reporting even
	// when the user sheet never tracked it.
	if !out.HasColumn(models.ColMonthlyReturn) {
		out.AddColumnFill(models.ColMonthlyReturn, 0.0)
	}

	formatLastUpdate(out)

	for row := out.NumRows() - 1; row >= 0; row-- {
		if rowEmpty(out, row) {
			out.DropRow(row)
		}
	}
	return out
}

func columnEmpty(t *models.Table, col string) bool {
	for _, v := range t.Column(col) {
		if !isNullCell(v) {
			return false
		}
	}
	return true
}

// rowEmpty ignores the defaulted last-update and monthly-return columns:
// a row carrying nothing but defaults is still an empty row.
func rowEmpty(t *models.Table, row int) bool {
	for _, col := range t.Columns() {
		if col == models.ColLastUpdate || col == models.ColMonthlyReturn {
			continue
		}
		if v, _ := t.Value(row, col); !isNullCell(v) {
			return false
		}
	}
	return true
}

func isNullCell(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func coerceNumeric(t *models.Table, col string) {
	if !t.HasColumn(col) {
		return
	}
	n := t.NumRows()
	for row := 0; row < n; row++ {
		v, _ := t.Value(row, col)
		t.SetValue(row, col, models.ParseNumber(v))
	}
}

// formatLastUpdate rewrites the last-update column as ISO date strings,
// defaulting to today when the column is absent or a cell is unparseable.
func formatLastUpdate(t *models.Table) {
	today := time.Now().Format("2006-01-02")
	if !t.HasColumn(models.ColLastUpdate) {
		t.AddColumnFill(models.ColLastUpdate, today)
		return
	}
	n := t.NumRows()
	for row := 0; row < n; row++ {
		v, _ := t.Value(row, models.ColLastUpdate)
		if parsed, ok := models.ParseDate(v); ok {
			t.SetValue(row, models.ColLastUpdate, parsed.Format("2006-01-02"))
		} else {
			t.SetValue(row, models.ColLastUpdate, today)
		}
	}
}
