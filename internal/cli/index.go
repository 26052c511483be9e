package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkohari/reviewkit/internal/client"
)

var (
	indexOwner    string
	indexIndustry string
	indexSource   string
	indexMode     string
	indexWatch    bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect review indexes",
	Long: `Manage the vector index of historical reviews for an industry.

Subcommands:
  build   Build, extend, or replace an industry's index
  status  Show the stored index for an industry`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build, extend, or replace an industry's review index",
	Long: `Start an index job over a workbook of categorized historical reviews.

Mode "replace" (the default) rebuilds the index from scratch and swaps it
in atomically; "add" appends the workbook's reviews to the existing index.
The source path is resolved on the server's filesystem.

Examples:
  reviewkit index build --owner acme --industry 1a2b3c4d --source history.xlsx
  reviewkit index build --owner acme --industry 1a2b3c4d --source week32.xlsx --mode add --watch`,
	RunE: runIndexBuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status <industry-id>",
	Short: "Show the stored index for an industry",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexStatus,
}

func init() {
	indexBuildCmd.Flags().StringVar(&indexOwner, "owner", "", "owner the index belongs to (required)")
	indexBuildCmd.Flags().StringVar(&indexIndustry, "industry", "", "industry ID (required)")
	indexBuildCmd.Flags().StringVar(&indexSource, "source", "", "xlsx workbook of categorized reviews (required)")
	indexBuildCmd.Flags().StringVar(&indexMode, "mode", "replace", "index mode: add or replace")
	indexBuildCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "follow the job until it finishes")
	_ = indexBuildCmd.MarkFlagRequired("owner")
	_ = indexBuildCmd.MarkFlagRequired("industry")
	_ = indexBuildCmd.MarkFlagRequired("source")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	source, err := filepath.Abs(indexSource)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	job, err := apiClient.SubmitIndexJob(ctx, client.IndexJobInput{
		Owner:      indexOwner,
		IndustryID: indexIndustry,
		SourcePath: source,
		Mode:       indexMode,
	})
	if err != nil {
		return fmt.Errorf("submit index job: %w", err)
	}

	fmt.Printf("Started index job %s (%s)\n", job.ID, indexMode)
	if indexWatch {
		return watchJob(ctx, job.ID)
	}
	fmt.Printf("Use 'reviewkit jobs watch %s' to follow progress.\n", job.ID)
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	rec, err := apiClient.GetIndexRecord(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}

	fmt.Printf("Index for industry %s\n", rec.Target)
	fmt.Printf("  Owner: %s\n", rec.Owner)
	fmt.Printf("  Documents: %d\n", rec.DocumentCount)
	fmt.Printf("  Embedding model: %s\n", rec.EmbeddingModel)
	fmt.Printf("  Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	if verbose {
		fmt.Printf("  Index file: %s\n", rec.IndexPath)
		fmt.Printf("  Cache file: %s\n", rec.CachePath)
	}
	return nil
}
