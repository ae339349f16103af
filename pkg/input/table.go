package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/root4loot/thumbnailer"
	"github.com/xuri/excelize/v2"
)

var ErrMalformedTable = errors.New("could not read table")

// ReadTable reads work items from a spreadsheet with a header row followed by
// (filename, url) rows. name selects the format: ".csv" files are read as CSV,
// anything else as an .xlsx workbook, using its first sheet.
func ReadTable(r io.Reader, name string) ([]thumbnailer.WorkItem, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		rows, err = readCSV(r)
	default:
		rows, err = readXLSX(r)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrMalformedTable, name, err)
	}

	return rowsToItems(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	return f.GetRows(sheets[0])
}

// rowsToItems skips the header row and blank rows.
func rowsToItems(rows [][]string) ([]thumbnailer.WorkItem, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table is empty", ErrMalformedTable)
	}

	var items []thumbnailer.WorkItem
	for i, row := range rows[1:] {
		filename, url := cell(row, 0), cell(row, 1)
		if filename == "" && url == "" {
			continue
		}
		if filename == "" || url == "" {
			return nil, fmt.Errorf("%w: row %d needs both a filename and a URL", ErrMalformedTable, i+2)
		}
		if strings.ContainsAny(filename, "\r\n") {
			return nil, fmt.Errorf("%w: row %d has a line break in its filename", ErrMalformedTable, i+2)
		}
		items = append(items, thumbnailer.WorkItem{Filename: filename, URL: url})
	}

	if len(items) == 0 {
		return nil, ErrNoURLs
	}
	return items, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
