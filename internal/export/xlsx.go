// Package export writes screening results and collection backups to files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/mapper"
)

// maxSheetName is the spreadsheet limit on sheet title length
const maxSheetName = 31

// XLSXExporter collects one sheet per call and writes the workbook on Save.
// Columns use canonical names; scaled fields are in millions.
type XLSXExporter struct {
	path string
	file *xlsx.File
}

var _ contracts.SheetExporter = (*XLSXExporter)(nil)

// NewXLSXExporter creates an exporter writing to path
func NewXLSXExporter(path string) *XLSXExporter {
	return &XLSXExporter{path: path, file: xlsx.NewFile()}
}

// Path returns the workbook path
func (e *XLSXExporter) Path() string {
	return e.path
}

// Headers returns the sheet header row
func Headers() []string {
	return append([]string{contracts.ColTicker, contracts.ColDataDate}, contracts.FullColumns()...)
}

// ExportSheet adds a sheet holding rows in the given order.
// An empty row set still produces a sheet with the header.
func (e *XLSXExporter) ExportSheet(rows []contracts.Snapshot, sheet string) error {
	name := SheetName(sheet)
	sh, err := e.file.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", name)
	}

	header := sh.AddRow()
	for _, h := range Headers() {
		header.AddCell().SetString(h)
	}

	cols := contracts.AllColumns()
	for i := range rows {
		r := &rows[i]
		row := sh.AddRow()
		row.AddCell().SetString(r.Ticker)
		if r.DataDate.IsZero() {
			row.AddCell()
		} else {
			row.AddCell().SetString(r.DataDate.Format("2006-01-02"))
		}

		for _, c := range cols {
			cell := row.AddCell()
			if c.IsNull(r) {
				continue
			}
			switch c.Kind {
			case contracts.TextColumn:
				cell.SetString(c.Text(r).String)
			case contracts.NumericColumn:
				v, err := mapper.ScreeningValue(r, c.Name)
				if err != nil {
					return eris.Wrapf(err, "xlsx: column %s", c.Name)
				}
				cell.SetFloat(v.Decimal.InexactFloat64())
			case contracts.ProfilesColumn:
				cell.SetString(strings.Join(r.PassedProfiles, ","))
			}
		}
	}
	return nil
}

// Save writes the workbook, creating the parent directory
func (e *XLSXExporter) Save() error {
	if len(e.file.Sheets) == 0 {
		return eris.New("xlsx: no sheets to save")
	}
	if dir := filepath.Dir(e.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "xlsx: create directory")
		}
	}
	if err := e.file.Save(e.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", e.path)
	}
	return nil
}

// WorkbookPath returns dir/screening_results_<date>.xlsx
func WorkbookPath(dir string, dataDate time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("screening_results_%s.xlsx", dataDate.Format("2006-01-02")))
}

// ExportProfiles writes one sheet per profile with results, in order.
// Nothing is written when every profile came back empty.
func ExportProfiles(path string, order []string, results map[string][]contracts.ProfileResult) (int, error) {
	exp := NewXLSXExporter(path)
	sheets := 0
	for _, profile := range order {
		res := results[profile]
		if len(res) == 0 {
			continue
		}
		rows := make([]contracts.Snapshot, len(res))
		for i := range res {
			rows[i] = res[i].Snapshot
		}
		if err := exp.ExportSheet(rows, profile); err != nil {
			return 0, err
		}
		sheets++
	}
	if sheets == 0 {
		return 0, nil
	}
	return sheets, exp.Save()
}

// SheetName strips characters a sheet title cannot hold and truncates it
func SheetName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "Sheet"
	}
	if len(clean) > maxSheetName {
		clean = clean[:maxSheetName]
	}
	return clean
}
