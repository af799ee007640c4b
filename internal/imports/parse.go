package imports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseCSV reads rows from a CSV document whose first line is the header.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty csv document")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	h, err := parseHeader(first)
	if err != nil {
		return nil, err
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, h.parseRecord(line, record))
	}
	return rows, nil
}

// ParseXLSX reads rows from the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}
	h, err := parseHeader(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, h.parseRecord(i+2, record))
	}
	return rows, nil
}
