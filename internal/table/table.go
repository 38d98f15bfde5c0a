// Package table holds uploaded tabular data and maps it onto typed records.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// FileType is the kind of data an uploaded table carries
type FileType string

const (
	FileTypeSupplyChain FileType = "supplyChain"
	FileTypeProduct     FileType = "product"
)

var (
	// ErrUnsupportedFile is returned for uploads that are neither CSV nor XLSX
	ErrUnsupportedFile = errors.New("unsupported file type, upload a .csv or .xlsx file")
	// ErrUnknownFileType is returned for a fileType other than supplyChain or product
	ErrUnknownFileType = errors.New("fileType must be supplyChain or product")
	// ErrEmptyFile is returned when an upload has no header row
	ErrEmptyFile = errors.New("file has no header row")
	// ErrMalformedFile is returned when an upload cannot be parsed as its extension says
	ErrMalformedFile = errors.New("file could not be parsed")
)

// ParseFileType validates a fileType form value
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case FileTypeSupplyChain, FileTypeProduct:
		return FileType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFileType, s)
}

// UploadedTable is a file as uploaded: an ordered header and rows of cells.
// It is never modified after creation.
type UploadedTable struct {
	ID         string     `json:"id"`
	FileName   string     `json:"fileName"`
	FileType   FileType   `json:"fileType"`
	Headers    []string   `json:"headers"`
	Rows       [][]string `json:"rows"`
	UploadDate time.Time  `json:"uploadDate"`
}

// Summary is the table without its rows, for listings
type Summary struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FileType   FileType  `json:"fileType"`
	Headers    []string  `json:"headers"`
	RowCount   int       `json:"rowCount"`
	UploadDate time.Time `json:"uploadDate"`
}

// Summary returns the listing view of the table
func (t *UploadedTable) Summary() Summary {
	return Summary{
		ID:         t.ID,
		FileName:   t.FileName,
		FileType:   t.FileType,
		Headers:    t.Headers,
		RowCount:   len(t.Rows),
		UploadDate: t.UploadDate,
	}
}

// ColumnIndex returns the position of an exactly matching header, or -1
func (t *UploadedTable) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Read parses a CSV or XLSX upload into a new table, picking the parser by
// file extension
func Read(fileName string, fileType FileType, r io.Reader) (*UploadedTable, error) {
	var parse func(io.Reader) ([]string, [][]string, error)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		parse = ParseCSV
	case ".xlsx":
		parse = ParseXLSX
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}

	headers, rows, err := parse(r)
	if err != nil {
		return nil, err
	}

	return &UploadedTable{
		ID:         uuid.NewString(),
		FileName:   fileName,
		FileType:   fileType,
		Headers:    headers,
		Rows:       rows,
		UploadDate: time.Now().UTC(),
	}, nil
}

// ParseCSV reads a header row and data rows. Cells are trimmed and blank
// lines skipped; rows may have fewer or more cells than the header.
func ParseCSV(r io.Reader) ([]string, [][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrEmptyFile
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header row: %w", ErrMalformedFile, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rows := [][]string{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
		}
		if isBlank(row) {
			continue
		}
		rows = append(rows, trimCells(row))
	}

	return headers, rows, nil
}

// ParseXLSX reads the first worksheet of a workbook with the same header,
// trimming and blank-row rules as ParseCSV. Cells come back as formatted text.
func ParseXLSX(r io.Reader) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: workbook: %w", ErrMalformedFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sheet %q: %w", ErrMalformedFile, sheets[0], err)
	}

	// Leading blank rows are skipped so the first populated row is the header
	for len(all) > 0 && isBlank(all[0]) {
		all = all[1:]
	}
	if len(all) == 0 {
		return nil, nil, ErrEmptyFile
	}

	headers := trimCells(all[0])
	rows := [][]string{}
	for _, row := range all[1:] {
		if isBlank(row) {
			continue
		}
		rows = append(rows, trimCells(row))
	}
	return headers, rows, nil
}

func trimCells(row []string) []string {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FilterRows keeps rows whose named columns equal the given values exactly.
// It fails with *MissingColumnsError when any named column is absent.
func (t *UploadedTable) FilterRows(match map[string]string) ([][]string, error) {
	cols := make(map[int]string, len(match))
	var missing []string
	for name, want := range match {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		cols[idx] = want
	}
	if len(missing) > 0 {
		return nil, newMissingColumnsError(missing)
	}

	out := [][]string{}
	for _, row := range t.Rows {
		ok := true
		for idx, want := range cols {
			if cell(row, idx) != want {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}
