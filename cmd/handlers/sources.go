package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSourcesCmd creates the sources command group.
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage feed sources and subscriptions",
	}

	cmd.AddCommand(newSourcesAddCmd())
	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesSubscribeCmd())
	return cmd
}

func newSourcesAddCmd() *cobra.Command {
	var (
		title     string
		subscribe string
	)

	cmd := &cobra.Command{
		Use:   "add <feed-url>",
		Short: "Add a feed source",
		Long: `Add an RSS/Atom feed source, optionally subscribing a reader to it.

Examples:
  curio sources add https://example.com/feed.xml
  curio sources add https://example.com/feed.xml --title "Example" --subscribe 7f6b...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesAdd(cmd.Context(), args[0], title, subscribe)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Feed title (defaults to the feed's own title on first fetch)")
	cmd.Flags().StringVar(&subscribe, "subscribe", "", "Reader id to subscribe to the new source")
	return cmd
}

func runSourcesAdd(ctx context.Context, url, title, readerID string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	src, err := db.CreateSource(ctx, url, title)
	if err != nil {
		return err
	}
	fmt.Printf("Added source %s (%s)\n", src.URL, src.ID)

	if readerID != "" {
		if err := db.Subscribe(ctx, readerID, src.ID); err != nil {
			return err
		}
		fmt.Printf("Subscribed reader %s\n", readerID)
	}
	return nil
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List feed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesList(cmd.Context())
		},
	}
}

func runSourcesList(ctx context.Context) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.ListSources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("No sources. Add one with 'curio sources add <feed-url>'.")
		return nil
	}
	for _, src := range sources {
		status := "ok"
		if !src.Active {
			status = "inactive"
		} else if src.LastError != "" {
			status = "error: " + src.LastError
		}
		title := src.Title
		if title == "" {
			title = "(untitled)"
		}
		subscribers, err := db.SubscriberIDs(ctx, src.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s  %d subscribers  [%s]\n", src.ID, title, src.URL, len(subscribers), status)
	}
	return nil
}

func newSourcesSubscribeCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "subscribe <source-id>",
		Short: "Subscribe a reader to an existing source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesSubscribe(cmd.Context(), readerID, args[0])
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.MarkFlagRequired("reader")
	return cmd
}

func runSourcesSubscribe(ctx context.Context, readerID, sourceID string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Subscribe(ctx, readerID, sourceID); err != nil {
		return err
	}
	fmt.Printf("Subscribed reader %s to source %s\n", readerID, sourceID)
	return nil
}
