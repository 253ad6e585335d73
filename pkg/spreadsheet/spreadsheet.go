// Package spreadsheet loads tabular uploads (xlsx workbooks or CSV files) into
// a header plus string rows, keeping raw cell values.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned when the requested sheet is absent from the workbook.
var ErrSheetNotFound = errors.New("sheet not found")

// Table is a parsed sheet. Every row has exactly len(Columns) cells.
type Table struct {
	Sheet   string
	Columns []string
	Rows    [][]string
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// IndexFold is Index with case-insensitive matching.
func (t *Table) IndexFold(column string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// Cell returns the value at row/column name, or "" when the column is absent.
func (t *Table) Cell(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// ReadSheet parses the named sheet of an xlsx workbook. Cells are returned as
// raw values, so dates come back as Excel serial numbers.
func ReadSheet(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return readSheet(f, sheet)
}

// ReadFirstSheet parses whichever sheet comes first in the workbook.
func ReadFirstSheet(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrSheetNotFound
	}
	return readSheet(f, sheets[0])
}

func readSheet(f *excelize.File, sheet string) (*Table, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	t := build(rows)
	t.Sheet = sheet
	return t, nil
}

// ReadCSV parses comma separated text with a header line. A UTF-8 BOM is ignored.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return build(records), nil
}

// ReadAny dispatches on the file name: .csv goes through ReadCSV, anything
// else is treated as a workbook and its first sheet is used.
func ReadAny(r io.Reader, filename string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return ReadCSV(r)
	}
	return ReadFirstSheet(r)
}

func build(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}

	t.Columns = make([]string, len(records[0]))
	for i, c := range records[0] {
		t.Columns[i] = strings.TrimSpace(c)
	}

	body := records[1:]
	// trailing blank rows carry no data; interior ones keep their position
	for len(body) > 0 && blank(body[len(body)-1]) {
		body = body[:len(body)-1]
	}

	t.Rows = make([][]string, 0, len(body))
	for _, rec := range body {
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
