package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"curio/internal/core"
)

// NewLearnCmd creates the learn command that distills preferences from
// feedback on demand.
func NewLearnCmd() *cobra.Command {
	var (
		readerID string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Distill learned preferences from a reader's feedback",
		Long: `Run the preference learner for one reader.

By default the learner only runs when enough new meaningful feedback has
accumulated since its last run; --force skips that check.

Examples:
  curio learn --reader 7f6b...
  curio learn --reader 7f6b... --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLearn(cmd.Context(), readerID, force)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Learn even when the trigger condition is not met")
	cmd.MarkFlagRequired("reader")
	return cmd
}

func runLearn(ctx context.Context, readerID string, force bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if force {
		prefs, err := a.learner.Learn(ctx, readerID)
		if err != nil {
			return err
		}
		printPreferences(prefs)
		return nil
	}

	prefs, learned, err := a.learner.LearnIfDue(ctx, readerID)
	if err != nil {
		return err
	}
	if !learned {
		fmt.Println("Not enough new feedback to learn; use --force to override.")
		return nil
	}
	printPreferences(prefs)
	return nil
}

func printPreferences(prefs []core.LearnedPreference) {
	if len(prefs) == 0 {
		fmt.Println("No preferences learned.")
		return
	}
	fmt.Printf("Learned %d preferences:\n", len(prefs))
	for _, p := range prefs {
		fmt.Printf("  - %s (confidence %.2f, from %d events)\n", p.Text, p.Confidence, p.DerivedFrom)
	}
}
