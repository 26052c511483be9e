package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tkohari/reviewkit/internal/client"
)

var (
	classifyOwner    string
	classifyIndustry string
	classifySource   string
	classifyNoIndex  bool
	classifyWatch    bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a workbook of new reviews",
	Long: `Start a classification job over a workbook of uncategorized reviews.

Each review is classified against the industry's category vocabulary; by
default the industry's index supplies similar historical reviews as
context. The completed job links an xlsx workbook with the results, in
the input's row order.

Examples:
  reviewkit classify --owner acme --industry 1a2b3c4d --source new-reviews.xlsx --watch
  reviewkit classify --owner acme --industry 1a2b3c4d --source new-reviews.xlsx --no-index`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyOwner, "owner", "", "owner submitting the reviews (required)")
	classifyCmd.Flags().StringVar(&classifyIndustry, "industry", "", "industry ID (required)")
	classifyCmd.Flags().StringVar(&classifySource, "source", "", "xlsx workbook of reviews to classify (required)")
	classifyCmd.Flags().BoolVar(&classifyNoIndex, "no-index", false, "classify without retrieval context")
	classifyCmd.Flags().BoolVarP(&classifyWatch, "watch", "w", false, "follow the job until it finishes")
	_ = classifyCmd.MarkFlagRequired("owner")
	_ = classifyCmd.MarkFlagRequired("industry")
	_ = classifyCmd.MarkFlagRequired("source")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	source, err := filepath.Abs(classifySource)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	job, err := apiClient.SubmitClassificationJob(ctx, client.ClassificationJobInput{
		Owner:      classifyOwner,
		IndustryID: classifyIndustry,
		SourcePath: source,
		UseIndex:   !classifyNoIndex,
	})
	if err != nil {
		return fmt.Errorf("submit classification job: %w", err)
	}

	fmt.Printf("Started classification job %s\n", job.ID)
	if classifyWatch {
		return watchJob(ctx, job.ID)
	}
	fmt.Printf("Use 'reviewkit jobs watch %s' to follow progress.\n", job.ID)
	return nil
}
