// Package spreadsheet reads CSV and XLSX files into a uniform row grid.
// Every row is padded to the widest row of the sheet so that downstream
// column lookups never see a missing cell; empty cells are empty strings.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Read parses file content into rows of cells, dispatching on the file
// extension.
func Read(fileName string, data []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return readCSV(data)
	case ".xlsx", ".xlsm", ".xls":
		return readXLSX(data)
	default:
		return nil, fmt.Errorf("spreadsheet: unsupported file type %q", filepath.Ext(fileName))
	}
}

// Preview returns a bounded copy of the leading rows.
func Preview(rows [][]string, n int) [][]string {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	// Bank exports are messy: ragged rows and stray quotes are normal.
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read csv: %w", err)
	}
	return pad(rows), nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet: workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read sheet %q: %w", sheets[0], err)
	}
	return pad(rows), nil
}

// pad widens every row to the maximum column count with empty strings.
func pad(rows [][]string) [][]string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}
