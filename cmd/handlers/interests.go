package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewInterestsCmd creates the interests command group. Interests and
// exclusions are embedded asynchronously: the next ingest cycle picks up
// the pending embedding job before scoring.
func NewInterestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interests",
		Short: "Manage reader interests and exclusions",
	}

	cmd.AddCommand(newInterestsAddCmd())
	cmd.AddCommand(newInterestsListCmd())
	cmd.AddCommand(newInterestsExcludeCmd())
	cmd.AddCommand(newInterestsUpdateCmd())
	cmd.AddCommand(newInterestsExpandCmd())
	cmd.AddCommand(newInterestsRemoveCmd())
	return cmd
}

func newInterestsAddCmd() *cobra.Command {
	var (
		readerID    string
		category    string
		description string
		weight      float64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a positive interest for a reader",
		Long: `Add a positive interest for a reader.

Examples:
  curio interests add --reader 7f6b... --category "AI" --description "ML systems and LLM tooling"
  curio interests add --reader 7f6b... --category "Rust" --weight 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsAdd(cmd.Context(), readerID, category, description, weight)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.Flags().StringVar(&category, "category", "", "Short interest label (required)")
	cmd.Flags().StringVar(&description, "description", "", "Longer description used for embedding")
	cmd.Flags().Float64Var(&weight, "weight", 1.0, "Scoring weight")
	cmd.MarkFlagRequired("reader")
	cmd.MarkFlagRequired("category")
	return cmd
}

func runInterestsAdd(ctx context.Context, readerID, category, description string, weight float64) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	interest, err := db.CreateInterest(ctx, readerID, category, description, weight)
	if err != nil {
		return err
	}
	fmt.Printf("Added interest %s (%s), weight %.2f\n", interest.Category, interest.ID, interest.Weight)
	return nil
}

func newInterestsListCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a reader's interests and exclusions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsList(cmd.Context(), readerID)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.MarkFlagRequired("reader")
	return cmd
}

func runInterestsList(ctx context.Context, readerID string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	interests, err := db.ActiveInterests(ctx, readerID)
	if err != nil {
		return err
	}
	exclusions, err := db.ActiveExclusions(ctx, readerID)
	if err != nil {
		return err
	}

	if len(interests) == 0 && len(exclusions) == 0 {
		fmt.Println("No interests. Add one with 'curio interests add'.")
		return nil
	}
	for _, i := range interests {
		fmt.Printf("%s  %-20s  weight %.2f  %s\n", i.ID, i.Category, i.Weight, i.Description)
	}
	for _, e := range exclusions {
		fmt.Printf("%s  %-20s  excluded     %s\n", e.ID, e.Category, e.Description)
	}
	return nil
}

func newInterestsExcludeCmd() *cobra.Command {
	var (
		readerID    string
		category    string
		description string
	)

	cmd := &cobra.Command{
		Use:   "exclude",
		Short: "Add an exclusion that vetoes matching articles",
		Long: `Add a negative interest. Articles semantically close to an exclusion
are vetoed before generative scoring regardless of interest match.

Example:
  curio interests exclude --reader 7f6b... --category "Crypto" --description "token speculation"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsExclude(cmd.Context(), readerID, category, description)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.Flags().StringVar(&category, "category", "", "Short exclusion label (required)")
	cmd.Flags().StringVar(&description, "description", "", "Longer description used for embedding")
	cmd.MarkFlagRequired("reader")
	cmd.MarkFlagRequired("category")
	return cmd
}

func runInterestsExclude(ctx context.Context, readerID, category, description string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	exclusion, err := db.CreateExclusion(ctx, readerID, category, description)
	if err != nil {
		return err
	}
	fmt.Printf("Added exclusion %s (%s)\n", exclusion.Category, exclusion.ID)
	return nil
}

func newInterestsUpdateCmd() *cobra.Command {
	var (
		category    string
		description string
		weight      float64
	)

	cmd := &cobra.Command{
		Use:   "update <interest-id>",
		Short: "Edit an interest",
		Long: `Edit an interest's category, description or weight. Changing the text
drops the stored expansion and queues a re-embed; a weight-only change
takes effect immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsUpdate(cmd.Context(), args[0], category, description, weight)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "New category label")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().Float64Var(&weight, "weight", -1, "New scoring weight")
	return cmd
}

func runInterestsUpdate(ctx context.Context, id, category, description string, weight float64) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	interest, err := db.GetInterest(ctx, id)
	if err != nil {
		return err
	}
	if interest == nil {
		return fmt.Errorf("interest %s not found", id)
	}

	if category == "" {
		category = interest.Category
	}
	if description == "" {
		description = interest.Description
	}
	if weight < 0 {
		weight = interest.Weight
	}
	if err := db.UpdateInterest(ctx, id, category, description, weight); err != nil {
		return err
	}
	fmt.Printf("Updated interest %s\n", id)
	return nil
}

func newInterestsExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <interest-id>",
		Short: "Expand an interest description with the configured model",
		Long: `Generate a richer description for an interest. The expansion becomes
the canonical embedding text, improving semantic matching for terse
categories; the interest is re-embedded on the next cycle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsExpand(cmd.Context(), args[0])
		},
	}
}

func runInterestsExpand(ctx context.Context, id string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	interest, err := a.db.GetInterest(ctx, id)
	if err != nil {
		return err
	}
	if interest == nil {
		return fmt.Errorf("interest %s not found", id)
	}

	prompt := fmt.Sprintf(`Expand the following reading interest into 2-3 sentences that
describe the topics, subtopics and vocabulary an article matching it
would contain. Respond with the expansion only, no preamble.

Interest: %s
Description: %s`, interest.Category, interest.Description)

	expanded, err := a.textgen.Generate(ctx, prompt, 256)
	if err != nil {
		return fmt.Errorf("expansion failed: %w", err)
	}
	if err := a.db.SetInterestExpanded(ctx, id, strings.TrimSpace(expanded)); err != nil {
		return err
	}
	fmt.Printf("Expanded %s; re-embedding queued for the next cycle\n", interest.Category)
	return nil
}

func newInterestsRemoveCmd() *cobra.Command {
	var exclusion bool

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Deactivate an interest (or exclusion with --exclusion)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInterestsRemove(cmd.Context(), args[0], exclusion)
		},
	}

	cmd.Flags().BoolVar(&exclusion, "exclusion", false, "The id names an exclusion")
	return cmd
}

func runInterestsRemove(ctx context.Context, id string, exclusion bool) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if exclusion {
		err = db.DeactivateExclusion(ctx, id)
	} else {
		err = db.DeactivateInterest(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Deactivated %s\n", id)
	return nil
}
