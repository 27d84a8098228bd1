package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/mapper"
)

// utf8BOM keeps spreadsheet apps from guessing a legacy encoding
const utf8BOM = "\ufeff"

// BackupPath returns dir/stock_data_<date>.csv
func BackupPath(dir string, dataDate time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("stock_data_%s.csv", dataDate.Format("2006-01-02")))
}

// WriteBackupCSV writes the collected batch in source field names (scaled fields in $M).
// Absent values are empty cells.
func WriteBackupCSV(dir string, dataDate time.Time, rows []contracts.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "csv: create directory")
	}

	path := BackupPath(dir, dataDate)
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "csv: create %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return "", eris.Wrap(err, "csv: write BOM")
	}

	w := csv.NewWriter(f)
	headers := mapper.SourceHeaders()
	if err := w.Write(headers); err != nil {
		return "", eris.Wrap(err, "csv: write header")
	}

	for _, r := range rows {
		rec := mapper.ToScreening(r)
		line := make([]string, len(headers))
		for i, h := range headers {
			line[i] = cellString(rec[h])
		}
		if err := w.Write(line); err != nil {
			return "", eris.Wrapf(err, "csv: write %s", r.Ticker)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "csv: flush")
	}
	return path, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}
