package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curio/internal/core"
	"curio/internal/render"
	"curio/internal/store"
)

// NewDigestCmd creates the digest command group.
func NewDigestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Inspect assembled digests",
	}

	cmd.AddCommand(newDigestListCmd())
	cmd.AddCommand(newDigestShowCmd())
	return cmd
}

func newDigestListCmd() *cobra.Command {
	var (
		readerID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a reader's digests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestList(cmd.Context(), readerID, limit)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum digests to list")
	cmd.MarkFlagRequired("reader")
	return cmd
}

func runDigestList(ctx context.Context, readerID string, limit int) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	digests, err := db.ListDigests(ctx, readerID, limit)
	if err != nil {
		return err
	}
	if len(digests) == 0 {
		fmt.Println("No digests yet. Run 'curio ingest' first.")
		return nil
	}

	for _, dg := range digests {
		fmt.Printf("%s  %s  %d articles\n", dg.ID, dg.Generated.Format("2006-01-02 15:04"), dg.ArticleCount)
	}
	return nil
}

func newDigestShowCmd() *cobra.Command {
	var (
		readerID string
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "show <digest-id|latest>",
		Short: "Render one digest as markdown",
		Long: `Render one digest as markdown to stdout, or to a file with --out.

Use the literal id "latest" with --reader to show the reader's most
recent digest.

Examples:
  curio digest show 2f1a...
  curio digest show latest --reader 7f6b... --out ./digests`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestShow(cmd.Context(), args[0], readerID, outDir)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Reader id (required with 'latest')")
	cmd.Flags().StringVar(&outDir, "out", "", "Write the digest to this directory instead of stdout")
	return cmd
}

func runDigestShow(ctx context.Context, id, readerID, outDir string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var dg *core.Digest
	if id == "latest" {
		if readerID == "" {
			return fmt.Errorf("--reader is required with 'latest'")
		}
		dg, err = db.LatestDigest(ctx, readerID)
	} else {
		dg, err = db.GetDigest(ctx, id)
	}
	if err != nil {
		return err
	}
	if dg == nil {
		return fmt.Errorf("digest not found")
	}

	items, err := digestItems(ctx, db, dg)
	if err != nil {
		return err
	}
	md := render.Markdown(dg, items)

	if outDir != "" {
		path, err := render.WriteFile(md, outDir, dg)
		if err != nil {
			return err
		}
		fmt.Printf("Digest written to %s\n", path)
		return nil
	}
	fmt.Fprint(os.Stdout, md)
	return nil
}

func digestItems(ctx context.Context, db *store.DB, dg *core.Digest) ([]render.Item, error) {
	scores, err := db.ScoresForDigest(ctx, dg.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(scores))
	for i, sc := range scores {
		ids[i] = sc.ArticleID
	}
	articles, err := db.GetArticles(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]render.Item, 0, len(scores))
	for _, sc := range scores {
		item := render.Item{
			Relevance:   sc.Relevance,
			Reason:      sc.Reason,
			Serendipity: sc.Serendipity,
		}
		if a := articles[sc.ArticleID]; a != nil {
			item.Title = a.Title
			item.URL = a.URL
		}
		items = append(items, item)
	}
	return items, nil
}
