package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"curio/internal/logger"
	"curio/internal/pipeline"
)

// NewIngestCmd creates the ingest command that runs one pipeline cycle.
func NewIngestCmd() *cobra.Command {
	var readerID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion and scoring cycle",
		Long: `Fetch all subscribed feeds, embed and deduplicate new articles, score
them for each active reader and assemble digests.

With --reader, only that reader's sources are fetched and only their
scores and digest advance.

Examples:
  curio ingest
  curio ingest --reader 7f6b1c2e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), readerID)
		},
	}

	cmd.Flags().StringVar(&readerID, "reader", "", "Run the cycle for a single reader")
	return cmd
}

func runIngest(ctx context.Context, readerID string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var summary *pipeline.Summary
	if readerID != "" {
		summary, err = a.pipe.RunReader(ctx, readerID)
	} else {
		summary, err = a.pipe.Run(ctx)
	}
	if err != nil {
		return err
	}

	logger.Info("cycle finished",
		"run", summary.RunID,
		"status", summary.Status,
		"fetched", summary.Fetched,
		"embedded", summary.Embedded,
		"duplicates", summary.Dupes,
	)
	for _, r := range summary.Readers {
		if r.Err != "" {
			fmt.Printf("reader %s: failed: %s\n", r.ReaderID, r.Err)
			continue
		}
		digest := r.DigestID
		if digest == "" {
			digest = "(none)"
		}
		fmt.Printf("reader %s: scored=%d judged=%d digest=%s articles=%d\n",
			r.ReaderID, r.Scored, r.Judged, digest, r.Assembled)
	}
	return nil
}
