package dedup

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"curio/internal/core"
)

type fakeMarker struct {
	marks map[string]string
}

func (f *fakeMarker) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	if f.marks == nil {
		f.marks = map[string]string{}
	}
	f.marks[id] = canonicalID
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batch(ids ...string) []core.Article {
	out := make([]core.Article, len(ids))
	for i, id := range ids {
		out[i] = core.Article{ID: id}
	}
	return out
}

func TestMarkCollapsesLaterOntoEarlier(t *testing.T) {
	vectors := map[string][]float64{
		"a": {1, 0},
		"b": {1, 0}, // identical to a
		"c": {0, 1}, // orthogonal
	}
	db := &fakeMarker{}

	kept, pairs, err := Mark(context.Background(), db, batch("a", "b", "c"), vectors, 0.85, testLogger())
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}

	if len(kept) != 2 || kept[0].ID != "a" || kept[1].ID != "c" {
		t.Fatalf("kept = %v, want a and c", kept)
	}
	if len(pairs) != 1 || pairs[0] != (Pair{Duplicate: "b", Canonical: "a"}) {
		t.Fatalf("pairs = %v, want b->a", pairs)
	}
	if db.marks["b"] != "a" {
		t.Errorf("persisted mark = %q, want canonical a", db.marks["b"])
	}
}

func TestMarkSkipsAlreadyMarked(t *testing.T) {
	// a, b and c are all mutually similar; b collapses onto a, then c
	// must also collapse onto a, never onto the already-marked b.
	vectors := map[string][]float64{
		"a": {1, 0},
		"b": {1, 0.01},
		"c": {1, 0.02},
	}
	db := &fakeMarker{}

	kept, pairs, err := Mark(context.Background(), db, batch("a", "b", "c"), vectors, 0.85, testLogger())
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}

	if len(kept) != 1 || kept[0].ID != "a" {
		t.Fatalf("kept = %v, want only a", kept)
	}
	for _, p := range pairs {
		if p.Canonical != "a" {
			t.Errorf("pair %v canonical = %q, want a", p, p.Canonical)
		}
	}
}

func TestMarkIgnoresArticlesWithoutVectors(t *testing.T) {
	vectors := map[string][]float64{"a": {1, 0}}
	db := &fakeMarker{}

	kept, pairs, err := Mark(context.Background(), db, batch("a", "unembedded"), vectors, 0.85, testLogger())
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if len(kept) != 2 || len(pairs) != 0 {
		t.Errorf("kept = %v pairs = %v, want both kept and no pairs", kept, pairs)
	}
}
