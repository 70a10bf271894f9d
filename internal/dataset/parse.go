package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("dataset: unsupported file format")

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseFile reads a stored dataset by extension.
func ParseFile(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseCSVFile(path)
	case ".xlsx":
		return ParseXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func parseCSVFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads a CSV stream with a header row and infers column kinds.
func ParseCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read row: %w", err)
		}
		for i := range header {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			raw[i] = append(raw[i], cell)
		}
	}
	return fromRaw(header, raw)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(path string) (*Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("dataset: workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("dataset: read sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("dataset: sheet has no header row")
	}
	header := rows[0]
	raw := make([][]string, len(header))
	for _, rec := range rows[1:] {
		for i := range header {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			raw[i] = append(raw[i], cell)
		}
	}
	return fromRaw(header, raw)
}

func fromRaw(header []string, raw [][]string) (*Frame, error) {
	cols := make([]Column, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		cols[i] = inferColumn(name, raw[i])
	}
	return NewFrame(cols)
}

// inferColumn picks the narrowest kind that fits every non-empty cell,
// in the order int -> float -> bool -> time -> string.
func inferColumn(name string, cells []string) Column {
	allInt, allFloat, allBool, allTime := true, true, true, true
	nonEmpty := 0
	for _, cell := range cells {
		s := strings.TrimSpace(cell)
		if s == "" {
			continue
		}
		nonEmpty++
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if !isBoolCell(s) {
				allBool = false
			}
		}
		if allTime {
			if _, ok := parseTimeCell(s); !ok {
				allTime = false
			}
		}
	}

	kind := KindString
	if nonEmpty > 0 {
		switch {
		case allInt:
			kind = KindInt
		case allFloat:
			kind = KindFloat
		case allBool:
			kind = KindBool
		case allTime:
			kind = KindTime
		}
	}

	values := make([]any, len(cells))
	for i, cell := range cells {
		s := strings.TrimSpace(cell)
		if s == "" {
			values[i] = nil
			continue
		}
		switch kind {
		case KindInt:
			n, _ := strconv.ParseInt(s, 10, 64)
			values[i] = n
		case KindFloat:
			f, _ := strconv.ParseFloat(s, 64)
			values[i] = f
		case KindBool:
			values[i] = strings.EqualFold(s, "true")
		case KindTime:
			t, _ := parseTimeCell(s)
			values[i] = t
		default:
			values[i] = s
		}
	}
	return Column{Name: name, Kind: kind, Values: values}
}

func isBoolCell(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func parseTimeCell(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
