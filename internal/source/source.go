// Package source loads tabular records from CSV and XLSX files. The
// first row is always the header; every following row becomes a Record
// indexed by position in the file.
package source

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// Options configure loading.
type Options struct {
	Delimiter  rune   // CSV only, default ','
	SheetName  string // XLSX only; overrides SheetIndex when set
	SheetIndex int    // XLSX only, default 0
	Limit      int    // cap on records loaded, 0 for all
}

// Load dispatches on file extension.
func Load(path string, opts Options) ([]string, []model.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, opts)
	case ".xlsx":
		return LoadXLSX(path, opts)
	default:
		return nil, nil, eris.Errorf("source: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV reads records from a CSV file.
func LoadCSV(path string, opts Options) ([]string, []model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "source: open csv")
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV reads records from CSV content.
func ReadCSV(r io.Reader, opts Options) ([]string, []model.Record, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // rows are padded or truncated to the header

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, eris.New("source: csv has no header row")
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "source: read csv header")
	}
	header = trimAll(header)

	var records []model.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "source: read csv row")
		}
		row = trimAll(row)
		if allEmpty(row) {
			continue
		}
		records = append(records, model.NewRecord(len(records), header, row))
		if opts.Limit > 0 && len(records) >= opts.Limit {
			break
		}
	}
	return header, records, nil
}

// LoadXLSX reads records from one sheet of an XLSX workbook.
func LoadXLSX(path string, opts Options) ([]string, []model.Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "source: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("source: xlsx sheet has no header row")
	}

	header := trimAll(rowToStrings(sheet.Rows[0]))

	var records []model.Record
	for _, row := range sheet.Rows[1:] {
		cells := trimAll(rowToStrings(row))
		if allEmpty(cells) {
			continue
		}
		records = append(records, model.NewRecord(len(records), header, cells))
		if opts.Limit > 0 && len(records) >= opts.Limit {
			break
		}
	}
	return header, records, nil
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("source: xlsx sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("source: xlsx sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func trimAll(cells []string) []string {
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
