package loader

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tkohari/reviewkit/internal/models"
)

// SectionTime is one named phase duration for the Processing Times sheet.
type SectionTime struct {
	Name     string
	Duration time.Duration
}

// RunSummary carries the accounting that accompanies exported results.
type RunSummary struct {
	EmbeddingModel   string
	LLMModel         string
	AvgReviewLength  float64
	APICalls         int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Sections         []SectionTime
}

// ExportResults writes classification results and run accounting to an xlsx
// workbook at path.
func ExportResults(path string, results []models.BatchResult, summary RunSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	const reviewsSheet = "Reviews"
	if err := f.SetSheetName("Sheet1", reviewsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"NO", "Comment", "Similar Reviews", "Categories"}
	if err := f.SetSheetRow(reviewsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("result row %d: %w", i, err)
		}
		row := []any{
			r.ID,
			r.Text,
			strings.Join(r.SimilarReviews, "\n"),
			strings.Join(r.Categories, ", "),
		}
		if err := f.SetSheetRow(reviewsSheet, cell, &row); err != nil {
			return fmt.Errorf("write result row %d: %w", i, err)
		}
	}

	const usageSheet = "Token Usage"
	if _, err := f.NewSheet(usageSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	usageHeader := []any{
		"Embeddings Model", "Model", "Average Similar Review Length",
		"API Calls", "Prompt Tokens", "Completion Tokens", "Total Tokens",
	}
	if err := f.SetSheetRow(usageSheet, "A1", &usageHeader); err != nil {
		return fmt.Errorf("write usage header: %w", err)
	}
	usageRow := []any{
		summary.EmbeddingModel,
		summary.LLMModel,
		summary.AvgReviewLength,
		summary.APICalls,
		summary.PromptTokens,
		summary.CompletionTokens,
		summary.TotalTokens,
	}
	if err := f.SetSheetRow(usageSheet, "A2", &usageRow); err != nil {
		return fmt.Errorf("write usage row: %w", err)
	}

	const timesSheet = "Processing Times"
	if _, err := f.NewSheet(timesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	timesHeader := []any{"Section", "Duration (seconds)"}
	if err := f.SetSheetRow(timesSheet, "A1", &timesHeader); err != nil {
		return fmt.Errorf("write times header: %w", err)
	}
	for i, section := range summary.Sections {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("section row %d: %w", i, err)
		}
		row := []any{section.Name, section.Duration.Seconds()}
		if err := f.SetSheetRow(timesSheet, cell, &row); err != nil {
			return fmt.Errorf("write section row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
