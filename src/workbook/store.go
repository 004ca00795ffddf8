package workbook

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/username/portfoliopulse/backend/src/logger"
	"github.com/username/portfoliopulse/backend/src/models"
)

// headerScanRows bounds the header heuristic: only the first rows of a sheet
// are scored when looking for the header.
const headerScanRows = 5

// tempSheetName is used while replacing a sheet so the target name never
// disappears mid-write.
const tempSheetName = "__pp_write"

type cacheEntry struct {
	table   *models.Table
	modTime time.Time
	readAt  time.Time
}

// Store reads and writes named sheets of one workbook file. It owns a read
// cache keyed by sheet name; an entry is served only while the file's
// modification time is unchanged and the entry is younger than the TTL.
// A Store is safe for concurrent use, but the pipeline itself assumes at most
// one update run per workbook at a time.
type Store struct {
	path string
	ttl  time.Duration

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewStore creates a store for the workbook at path. ttl bounds how long a
// cached sheet read stays valid.
func NewStore(path string, ttl time.Duration) *Store {
	return &Store{
		path:  path,
		ttl:   ttl,
		cache: make(map[string]*cacheEntry),
	}
}

// Path returns the workbook file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the normalized contents of a sheet. A missing file, missing
// sheet or undecodable sheet yields an empty table, never an error: callers
// distinguish "no data" by emptiness, not by failure.
func (s *Store) Read(sheetName string) *models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		logger.L.Warn("Workbook file not readable, returning empty table", "path", s.path, "error", err)
		return models.NewTable()
	}

	if entry, ok := s.cache[sheetName]; ok {
		if entry.modTime.Equal(info.ModTime()) && time.Since(entry.readAt) < s.ttl {
			return entry.table.Clone()
		}
	}

	tbl := s.readSheet(sheetName)
	s.cache[sheetName] = &cacheEntry{table: tbl, modTime: info.ModTime(), readAt: time.Now()}
	return tbl.Clone()
}

func (s *Store) readSheet(sheetName string) *models.Table {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		logger.L.Warn("Failed to open workbook, returning empty table", "path", s.path, "error", err)
		return models.NewTable()
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		logger.L.Warn("Sheet not readable, returning empty table", "sheet", sheetName, "error", err)
		return models.NewTable()
	}
	if len(rows) == 0 {
		return models.NewTable()
	}

	headerIdx := detectHeaderRow(rows)
	names := headerNames(rows[headerIdx])

	tbl := models.NewTable()
	for _, row := range rows[headerIdx+1:] {
		rec := make(map[string]any, len(names))
		for i, name := range names {
			var cell any
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				cell = row[i]
			}
			rec[name] = cell
		}
		tbl.AppendRow(rec)
	}
	if tbl.NumCols() == 0 {
		for _, name := range names {
			tbl.AddColumn(name, nil)
		}
	}

	normalized := Normalize(tbl)
	logger.L.Debug("Sheet read", "sheet", sheetName, "headerRow", headerIdx,
		"rows", normalized.NumRows(), "columns", normalized.NumCols())
	return normalized
}

// detectHeaderRow scores the first rows by non-empty cell count and picks the
// most complete one. Ties break toward the earliest row; an all-empty block
// falls back to row 0.
func detectHeaderRow(rows [][]string) int {
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	best, bestScore := 0, 0
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) != "" {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// headerNames turns a raw header row into unique column names. Blank header
// cells become UNNAMED placeholders that normalization later drops; duplicate
// headers get a numeric suffix so columns never collide.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("UNNAMED %d", i)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s %d", name, n)
		}
		names[i] = name
	}
	return names
}

// Write replaces the entire contents of a sheet with the table, creating the
// sheet and the file as needed. The replacement goes through a temporary
// sheet that is renamed over the target, so the target name is present before
// and after the save; a crash mid-save can still corrupt the file, which is
// an accepted risk of the workbook format.
func (s *Store) Write(table *models.Table, sheetName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		f       *excelize.File
		created bool
	)
	if _, err := os.Stat(s.path); err != nil {
		f = excelize.NewFile()
		created = true
	} else {
		var openErr error
		f, openErr = excelize.OpenFile(s.path)
		if openErr != nil {
			return fmt.Errorf("workbook: open %s: %w", s.path, openErr)
		}
	}
	defer f.Close()

	if _, err := f.NewSheet(tempSheetName); err != nil {
		return fmt.Errorf("workbook: create temp sheet: %w", err)
	}
	if err := writeTable(f, tempSheetName, table); err != nil {
		return err
	}

	if idx, _ := f.GetSheetIndex(sheetName); idx >= 0 {
		if err := f.DeleteSheet(sheetName); err != nil {
			return fmt.Errorf("workbook: replace sheet %s: %w", sheetName, err)
		}
	}
	if err := f.SetSheetName(tempSheetName, sheetName); err != nil {
		return fmt.Errorf("workbook: rename temp sheet: %w", err)
	}
	if created && sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	var err error
	if created {
		err = f.SaveAs(s.path)
	} else {
		err = f.Save()
	}
	if err != nil {
		return fmt.Errorf("workbook: save %s: %w", s.path, err)
	}

	// The sheet on disk no longer matches whatever was cached.
	delete(s.cache, sheetName)
	logger.L.Info("Sheet written", "sheet", sheetName, "rows", table.NumRows(), "columns", table.NumCols())
	return nil
}

// WriteHistoricalSnapshot writes the table under a dated sheet name derived
// from today (prefix + YYYYMMDD) and returns that name. A same-day re-run
// overwrites the snapshot rather than accumulating a second one.
func (s *Store) WriteHistoricalSnapshot(table *models.Table, prefix string) (string, error) {
	sheetName := prefix + time.Now().Format("20060102")
	if err := s.Write(table, sheetName); err != nil {
		return "", err
	}
	return sheetName, nil
}

func writeTable(f *excelize.File, sheetName string, table *models.Table) error {
	cols := table.Columns()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("workbook: write header: %w", err)
	}

	n := table.NumRows()
	for row := 0; row < n; row++ {
		cells := make([]any, len(cols))
		for i, col := range cols {
			v, _ := table.Value(row, col)
			cells[i] = cellValue(v)
		}
		ref, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return fmt.Errorf("workbook: cell reference: %w", err)
		}
		if err := f.SetSheetRow(sheetName, ref, &cells); err != nil {
			return fmt.Errorf("workbook: write row %d: %w", row, err)
		}
	}
	return nil
}

// cellValue converts a table cell to what lands in the workbook. Dates are
// written as ISO strings so a later read round-trips without a style lookup.
func cellValue(v any) any {
	if d, ok := v.(time.Time); ok {
		return d.Format("2006-01-02")
	}
	return v
}
