// Package loader reads review workbooks and writes result exports. All
// worksheet access goes through excelize; the column layout follows the
// upload format used by the web frontend.
package loader

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tkohari/reviewkit/internal/models"
)

// Workbook column headers, matched case-insensitively on the first row of
// every sheet.
const (
	colComment    = "comment"
	colCategories = "categories"
	colNo         = "no"
	colID         = "id"
)

// LoadHistory reads categorized historical reviews from every sheet of the
// workbook at path. Rows without comment text are skipped; the categories
// column is optional and holds comma-separated values. Every document is
// stamped with the given target.
func LoadHistory(path, target string) ([]models.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var docs []models.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		commentCol := findColumn(rows[0], colComment)
		if commentCol < 0 {
			continue
		}
		categoriesCol := findColumn(rows[0], colCategories)

		for _, row := range rows[1:] {
			text := strings.TrimSpace(cellAt(row, commentCol))
			if text == "" {
				continue
			}
			docs = append(docs, models.Document{
				Text:       text,
				Target:     target,
				Categories: splitCategories(cellAt(row, categoriesCol)),
			})
		}
	}
	return docs, nil
}

// LoadNewReviews reads reviews to classify from every sheet of the workbook
// at path. Unlike LoadHistory, rows with empty comments are kept so results
// stay aligned with the uploaded rows. A missing comment column loads the
// whole sheet as empty reviews.
func LoadNewReviews(path string) ([]models.Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var items []models.Item
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		commentCol := findColumn(rows[0], colComment)
		idCol := findColumn(rows[0], colNo)
		if idCol < 0 {
			idCol = findColumn(rows[0], colID)
		}

		for _, row := range rows[1:] {
			item := models.Item{}
			if idCol >= 0 {
				item.ID = strings.TrimSpace(cellAt(row, idCol))
			}
			if commentCol >= 0 {
				item.Text = cellAt(row, commentCol)
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// findColumn returns the index of the header matching name, or -1.
func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// cellAt returns the cell value at idx, tolerating the ragged rows excelize
// produces when trailing cells are empty.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func splitCategories(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
