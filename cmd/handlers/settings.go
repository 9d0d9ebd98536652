package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSettingsCmd creates the settings command group. Settings override
// pipeline tunables per reader (or globally with an empty reader id);
// unresolved keys fall back to the configured defaults.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-reader tunable overrides",
		Long: `Manage per-reader tunable overrides.

Known keys include embedding_llm_threshold, min_relevance_score,
max_llm_candidates and max_articles_per_digest. Omit --reader to set a
global override.

Examples:
  curio settings set min_relevance_score 0.7 --reader 7f6b...
  curio settings get min_relevance_score --reader 7f6b...
  curio settings unset min_relevance_score --reader 7f6b...`,
	}

	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsUnsetCmd())
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set an override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(cmd.Context(), readerID, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (empty for a global override)")
	return cmd
}

func runSettingsSet(ctx context.Context, readerID, key, value string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetSetting(ctx, readerID, key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func newSettingsGetCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show the resolved value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(cmd.Context(), readerID, args[0])
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id")
	return cmd
}

func runSettingsGet(ctx context.Context, readerID, key string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	value, err := db.Setting(ctx, readerID, key, "")
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Printf("%s is not overridden; the configured default applies\n", key)
		return nil
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func newSettingsUnsetCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsUnset(cmd.Context(), readerID, args[0])
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (empty for the global override)")
	return cmd
}

func runSettingsUnset(ctx context.Context, readerID, key string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteSetting(ctx, readerID, key); err != nil {
		return err
	}
	fmt.Printf("Unset %s\n", key)
	return nil
}
