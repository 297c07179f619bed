// Package ingest turns uploaded spreadsheets into ordered records.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"summit/internal/core"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("no rows found in file")
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ParseTable reads a CSV or XLSX upload. The first non-empty row is the
// header; each later non-empty row becomes a record whose columns follow
// the header order. Header names are trimmed, blank ones become column_N
// and repeated ones get a numeric suffix.
func ParseTable(fileName string, r io.Reader) ([]core.Record, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv", ".txt":
		rows, err = readCSV(r)
	case ".xlsx", ".xlsm":
		rows, err = readExcel(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := bufio.NewReader(r)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows from xlsx: %w", err)
	}
	return rows, nil
}

func toRecords(rows [][]string) ([]core.Record, error) {
	var (
		header  []string
		records []core.Record
	)
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = headerNames(row)
			continue
		}
		rec := make(core.Record, len(header))
		for i, name := range header {
			rec[i].Name = name
			if i < len(row) {
				rec[i].Value = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	if header == nil {
		return nil, ErrEmptyFile
	}
	return records, nil
}

func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int)
	for i, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[key]++
		names[i] = name
	}
	return names
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
