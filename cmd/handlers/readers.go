package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewReadersCmd creates the readers command group.
func NewReadersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readers",
		Short: "Manage readers",
	}

	cmd.AddCommand(newReadersAddCmd())
	cmd.AddCommand(newReadersListCmd())
	return cmd
}

func newReadersAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a reader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReadersAdd(cmd.Context(), args[0])
		},
	}
}

func runReadersAdd(ctx context.Context, name string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	reader, err := db.CreateReader(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("Created reader %s (%s)\n", reader.Name, reader.ID)
	return nil
}

func newReadersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active readers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReadersList(cmd.Context())
		},
	}
}

func runReadersList(ctx context.Context) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	readers, err := db.ActiveReaders(ctx)
	if err != nil {
		return err
	}
	if len(readers) == 0 {
		fmt.Println("No readers. Add one with 'curio readers add <name>'.")
		return nil
	}
	for _, r := range readers {
		fmt.Printf("%s  %s  added %s\n", r.ID, r.Name, r.DateAdded.Format("2006-01-02"))
	}
	return nil
}
