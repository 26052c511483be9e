package loader

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tkohari/reviewkit/internal/models"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "reviews.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadHistory(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"NO", "Comment", "Categories"},
		{"1", "battery lasts forever", "battery, hardware"},
		{"2", "", "ignored"},
		{"3", "   ", "also ignored"},
		{"4", "screen cracked on day one", ""},
	})

	docs, err := LoadHistory(path, "electronics")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "battery lasts forever", docs[0].Text)
	assert.Equal(t, "electronics", docs[0].Target)
	assert.Equal(t, []string{"battery", "hardware"}, docs[0].Categories)

	assert.Equal(t, "screen cracked on day one", docs[1].Text)
	assert.Nil(t, docs[1].Categories)
}

func TestLoadHistoryWithoutCategoriesColumn(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Comment"},
		{"good value for money"},
	})

	docs, err := LoadHistory(path, "electronics")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Categories)
}

func TestLoadNewReviewsKeepsEmptyRows(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"NO", "Comment"},
		{"1", "arrived broken"},
		{"2", ""},
		{"3", "would buy again"},
	})

	items, err := LoadNewReviews(path)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, models.Item{ID: "1", Text: "arrived broken"}, items[0])
	assert.Equal(t, models.Item{ID: "2", Text: ""}, items[1])
	assert.Equal(t, models.Item{ID: "3", Text: "would buy again"}, items[2])
}

func TestLoadNewReviewsWithoutIDColumn(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Comment"},
		{"decent but overpriced"},
	})

	items, err := LoadNewReviews(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].ID)
	assert.Equal(t, "decent but overpriced", items[0].Text)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadHistory(filepath.Join(t.TempDir(), "nope.xlsx"), "electronics")
	assert.Error(t, err)

	_, err = LoadNewReviews(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}

func TestExportResults(t *testing.T) {
	results := []models.BatchResult{
		{
			ID:             "1",
			Text:           "arrived broken",
			SimilarReviews: []string{"1. box was damaged (categories: shipping)"},
			Categories:     []string{"shipping", "quality"},
		},
		{
			ID:         "2",
			Text:       "",
			Categories: []string{"N/A"},
		},
	}
	summary := RunSummary{
		EmbeddingModel:   "all-minilm:l6-v2",
		LLMModel:         "gpt-4o-mini",
		AvgReviewLength:  14.5,
		APICalls:         3,
		PromptTokens:     1200,
		CompletionTokens: 240,
		TotalTokens:      1440,
		Sections: []SectionTime{
			{Name: "load", Duration: 1200 * time.Millisecond},
			{Name: "classify", Duration: 9 * time.Second},
		},
	}

	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, ExportResults(path, results, summary))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Reviews", "Token Usage", "Processing Times"}, f.GetSheetList())

	rows, err := f.GetRows("Reviews")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"NO", "Comment", "Similar Reviews", "Categories"}, rows[0])
	assert.Equal(t, "shipping, quality", rows[1][3])
	assert.Equal(t, "N/A", rows[2][3])

	usage, err := f.GetRows("Token Usage")
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "gpt-4o-mini", usage[1][1])

	times, err := f.GetRows("Processing Times")
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, "classify", times[2][0])
}
