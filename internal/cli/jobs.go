package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/notify"
)

var jobsOwner string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect background jobs",
	Long: `List all background jobs or inspect a specific job by ID.

Examples:
  reviewkit jobs                # List all jobs
  reviewkit jobs --owner acme   # List jobs for one owner
  reviewkit jobs abc123         # Show details for job abc123
  reviewkit jobs cancel abc123  # Cancel a running job
  reviewkit jobs watch abc123   # Follow a job until it finishes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job's progress until it reaches a final state",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWatch,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsOwner, "owner", "", "filter by owner")
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsWatchCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, args[0])
	}

	// List all jobs
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx, jobsOwner)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-16s %-12s %-10s %s\n", "ID", "KIND", "STATUS", "PROGRESS", "UPDATED")
	fmt.Println("------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := fmt.Sprintf("%d%%", job.Progress)
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Processed, job.Total)
		}
		updated := job.UpdatedAt.Local().Format("15:04:05")
		fmt.Printf("%-10s %-16s %-12s %-10s %s\n", job.ID, job.Kind, job.Status, progress, updated)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Kind: %s\n", job.Kind)
	fmt.Printf("  Owner: %s\n", job.Owner)
	fmt.Printf("  Industry: %s\n", job.Target)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	if job.Total > 0 {
		fmt.Printf("  Documents: %d/%d\n", job.Processed, job.Total)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.Status.IsTerminal() {
		fmt.Printf("  Finished: %s\n", job.UpdatedAt.Format(time.RFC3339))
		duration := job.UpdatedAt.Sub(job.CreatedAt)
		fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
	}

	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}
	if job.Artifact != nil {
		fmt.Printf("  Results: %s\n", *job.Artifact)
	}

	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	job, err := apiClient.CancelJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	fmt.Printf("Job %s is now %s\n", job.ID, job.Status)
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	return watchJob(cmd.Context(), args[0])
}

// watchJob follows a job to completion: an animated progress bar on a
// terminal, one line per status change otherwise.
func watchJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, job)
	}
	return watchJobPlain(ctx, id)
}

// watchJobPlain streams status changes over the server's WebSocket endpoint
// and prints them as plain lines, for pipes and CI logs.
func watchJobPlain(ctx context.Context, id string) error {
	var final models.Job
	err := apiClient.WatchJob(ctx, id, func(ev notify.Event) error {
		line := fmt.Sprintf("%s  %s %3d%%", time.Now().Format("15:04:05"), ev.Status, ev.Progress)
		if ev.DocumentCount != nil {
			line += fmt.Sprintf("  %d documents", *ev.DocumentCount)
		}
		if ev.Error != nil && *ev.Error != "" {
			line += "  " + *ev.Error
		}
		fmt.Println(line)
		final.Status = ev.Status
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	if final.Status == models.JobStatusFailed {
		return fmt.Errorf("job %s failed", id)
	}
	if final.Status == models.JobStatusCompleted {
		// Completed classification jobs carry the exported workbook path
		job, err := apiClient.GetJob(ctx, id)
		if err == nil && job.Artifact != nil {
			fmt.Printf("Results written to %s\n", *job.Artifact)
		}
	}
	return nil
}
