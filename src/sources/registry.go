package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
)

// ErrSourceNotRegistered is returned by Collect for an unknown source name.
var ErrSourceNotRegistered = errors.New("data source not registered")

// Provider is the single contract every external data source satisfies.
// A provider must return an empty table, not an error, for ordinary "no data"
// conditions; errors are reserved for misuse (invalid parameter combinations)
// and propagate to the caller untouched.
type Provider interface {
	Fetch(ctx context.Context, params map[string]any) (*models.Table, error)
}

// Registry holds the named data providers for one update run and merges
// their differently shaped tables into one aligned table.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register stores a provider under a name, replacing any previous
// registration for that name.
func (r *Registry) Register(name string, provider Provider) {
	if _, exists := r.providers[name]; exists {
		logger.L.Warn("Data source re-registered", "source", name)
	}
	r.providers[name] = provider
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collect fetches a table from the named source. The provider's table is
// returned verbatim; provider errors are not swallowed here.
func (r *Registry) Collect(ctx context.Context, name string, params map[string]any) (*models.Table, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, name)
	}
	return provider.Fetch(ctx, params)
}

// Consolidate merges tables into one: the column set is the sorted union of
// all input columns, missing columns are null-filled, and rows concatenate in
// input order. This is a structural merge, not a join; duplicate identifiers
// across tables are kept.
func Consolidate(tables []*models.Table) *models.Table {
	if len(tables) == 0 {
		return models.NewTable()
	}

	union := make(map[string]struct{})
	for _, t := range tables {
		for _, col := range t.Columns() {
			union[col] = struct{}{}
		}
	}
	allColumns := make([]string, 0, len(union))
	for col := range union {
		allColumns = append(allColumns, col)
	}
	sort.Strings(allColumns)

	out := models.NewTable()
	for _, col := range allColumns {
		out.AddColumn(col, nil)
	}
	for _, t := range tables {
		n := t.NumRows()
		for row := 0; row < n; row++ {
			rec := make(map[string]any, len(allColumns))
			for _, col := range allColumns {
				if t.HasColumn(col) {
					v, _ := t.Value(row, col)
					rec[col] = v
				} else {
					rec[col] = nil
				}
			}
			out.AppendRow(rec)
		}
	}
	return out
}

// Standardize coerces the common source columns in place on a copy: "Date"
// cells become dates and "Price" cells become numbers, with unparseable
// entries coerced to nil. Tables lacking both columns pass through unchanged.
func Standardize(t *models.Table) *models.Table {
	out := t.Clone()
	if out.HasColumn(models.ColSourceDate) {
		n := out.NumRows()
		for row := 0; row < n; row++ {
			v, _ := out.Value(row, models.ColSourceDate)
			if parsed, ok := models.ParseDate(v); ok {
				out.SetValue(row, models.ColSourceDate, parsed)
			} else {
				out.SetValue(row, models.ColSourceDate, nil)
			}
		}
	}
	if out.HasColumn(models.ColSourcePrice) {
		n := out.NumRows()
		for row := 0; row < n; row++ {
			v, _ := out.Value(row, models.ColSourcePrice)
			out.SetValue(row, models.ColSourcePrice, models.ParseNumber(v))
		}
	}
	return out
}
