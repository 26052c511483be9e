package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkohari/reviewkit/internal/client"
)

var (
	industryOwner      string
	industryName       string
	industryCategories []string
)

var industryCmd = &cobra.Command{
	Use:   "industry",
	Short: "Manage classification industries",
	Long: `An industry is a classification target: it names the category
vocabulary reviews are classified into and owns the review index.

Subcommands:
  create  Register a new industry with its categories
  list    List industries
  show    Show one industry

Examples:
  reviewkit industry create --owner acme --name electronics --categories quality,price,shipping
  reviewkit industry list --owner acme
  reviewkit industry show 1a2b3c4d`,
}

var industryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new industry with its category vocabulary",
	RunE:  runIndustryCreate,
}

var industryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List industries",
	RunE:  runIndustryList,
}

var industryShowCmd = &cobra.Command{
	Use:   "show <industry-id>",
	Short: "Show one industry",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndustryShow,
}

func init() {
	industryCreateCmd.Flags().StringVar(&industryOwner, "owner", "", "owner of the industry (required)")
	industryCreateCmd.Flags().StringVar(&industryName, "name", "", "industry name (required)")
	industryCreateCmd.Flags().StringSliceVar(&industryCategories, "categories", nil, "category vocabulary, comma-separated (required)")
	_ = industryCreateCmd.MarkFlagRequired("owner")
	_ = industryCreateCmd.MarkFlagRequired("name")
	_ = industryCreateCmd.MarkFlagRequired("categories")

	industryListCmd.Flags().StringVar(&industryOwner, "owner", "", "filter by owner")

	industryCmd.AddCommand(industryCreateCmd)
	industryCmd.AddCommand(industryListCmd)
	industryCmd.AddCommand(industryShowCmd)
}

func runIndustryCreate(cmd *cobra.Command, args []string) error {
	industry, err := apiClient.CreateIndustry(cmd.Context(), client.IndustryInput{
		Owner:      industryOwner,
		Name:       industryName,
		Categories: industryCategories,
	})
	if err != nil {
		return fmt.Errorf("create industry: %w", err)
	}

	fmt.Printf("Created industry %s (%s)\n", industry.ID, industry.Name)
	fmt.Printf("  Categories: %s\n", strings.Join(industry.Categories, ", "))
	return nil
}

func runIndustryList(cmd *cobra.Command, args []string) error {
	industries, err := apiClient.ListIndustries(cmd.Context(), industryOwner)
	if err != nil {
		return fmt.Errorf("list industries: %w", err)
	}

	if len(industries) == 0 {
		fmt.Println("No industries found")
		return nil
	}

	fmt.Printf("%-10s %-20s %-12s %s\n", "ID", "NAME", "OWNER", "CATEGORIES")
	fmt.Println("------------------------------------------------------------------------")
	for _, ind := range industries {
		fmt.Printf("%-10s %-20s %-12s %s\n", ind.ID, ind.Name, ind.Owner, strings.Join(ind.Categories, ", "))
	}
	return nil
}

func runIndustryShow(cmd *cobra.Command, args []string) error {
	industry, err := apiClient.GetIndustry(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get industry: %w", err)
	}

	fmt.Printf("Industry: %s\n", industry.ID)
	fmt.Printf("  Name: %s\n", industry.Name)
	fmt.Printf("  Owner: %s\n", industry.Owner)
	fmt.Printf("  Categories: %s\n", strings.Join(industry.Categories, ", "))
	fmt.Printf("  Created: %s\n", industry.CreatedAt.Format(time.RFC3339))
	return nil
}
