// Package cli provides the command-line interface for reviewkit.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkohari/reviewkit/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reviewkit",
	Short: "Review indexing and classification service client",
	Long: `Reviewkit maintains per-owner vector indexes over historical product
reviews and classifies new reviews against an industry's category
vocabulary, using similar indexed reviews as context.

Index builds and classification runs execute as background jobs on the
reviewkit server; this CLI submits jobs and tracks their progress.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version and help never talk to the server
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $REVIEWKIT_SERVER_URL or http://localhost:8080)")

	// Add subcommands
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(industryCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
