// Package vectorstore persists fixed-length embeddings behind a
// backend-agnostic similarity API. The backing column type (native pgvector
// or a JSON-encoded array) is probed once at startup and injected as an
// explicit Capability value, so both paths are testable deterministically.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"curio/internal/core"
	"curio/internal/logger"
)

// Capability describes how the backing database stores vectors.
type Capability int

const (
	// CapabilityUnknown means the backend has not been probed yet.
	CapabilityUnknown Capability = iota
	// CapabilityNative means a pgvector column holds the embedding.
	CapabilityNative
	// CapabilityJSONFallback means the embedding is a JSON-encoded array.
	CapabilityJSONFallback
)

func (c Capability) String() string {
	switch c {
	case CapabilityNative:
		return "native"
	case CapabilityJSONFallback:
		return "json"
	default:
		return "unknown"
	}
}

// Store persists embedding records keyed by (kind, ref id).
type Store struct {
	db         *sql.DB
	capability Capability
	dims       int
}

// Probe determines the backend capability by attempting to provision a
// vector-capable embeddings table. It runs once at startup; the result is
// passed into New and never re-checked for the process lifetime. If the
// backing capability changes mid-process the store will not notice.
func Probe(ctx context.Context, db *sql.DB, dims int) Capability {
	native := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS embeddings (
			kind TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			input_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, ref_id)
		)`, dims)

	if _, err := db.ExecContext(ctx, native); err == nil {
		logger.Info("Vector store using native pgvector column", "dimensions", dims)
		return CapabilityNative
	} else {
		logger.Warn("pgvector unavailable, falling back to JSON-array storage", "error", err.Error())
	}

	fallback := `
		CREATE TABLE IF NOT EXISTS embeddings (
			kind TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			input_text TEXT NOT NULL,
			embedding JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, ref_id)
		)`
	if _, err := db.ExecContext(ctx, fallback); err != nil {
		logger.Error("Failed to provision JSON-fallback embeddings table", err)
	}
	return CapabilityJSONFallback
}

// New creates a store bound to an already-probed capability.
func New(db *sql.DB, capability Capability, dims int) *Store {
	return &Store{db: db, capability: capability, dims: dims}
}

// Capability returns the capability the store was constructed with.
func (s *Store) Capability() Capability { return s.capability }

// Store upserts the embedding for (kind, id). Exactly one row per key.
func (s *Store) Store(ctx context.Context, kind core.RefKind, id, text string, vector []float64) error {
	if len(vector) != s.dims {
		return fmt.Errorf("embedding for %s/%s has %d dimensions, expected %d", kind, id, len(vector), s.dims)
	}

	encoded, err := s.encode(vector)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO embeddings (kind, ref_id, input_text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, ref_id) DO UPDATE SET
			input_text = EXCLUDED.input_text,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`
	if s.capability == CapabilityNative {
		query = strings.Replace(query, "$4,", "$4::vector,", 1)
	}

	if _, err := s.db.ExecContext(ctx, query, string(kind), id, text, encoded, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store embedding for %s/%s: %w", kind, id, err)
	}
	return nil
}

// Get returns the vector for (kind, id), or nil when absent.
func (s *Store) Get(ctx context.Context, kind core.RefKind, id string) ([]float64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding::text FROM embeddings WHERE kind = $1 AND ref_id = $2`,
		string(kind), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding for %s/%s: %w", kind, id, err)
	}
	return s.decode(raw)
}

// GetMany returns vectors for the given ids in one round trip. Missing ids
// are simply absent from the map.
func (s *Store) GetMany(ctx context.Context, kind core.RefKind, ids []string) (map[string][]float64, error) {
	result := make(map[string][]float64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ref_id, embedding::text FROM embeddings WHERE kind = $1 AND ref_id = ANY($2)`,
		string(kind), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings for kind %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vector, err := s.decode(raw)
		if err != nil {
			return nil, err
		}
		result[id] = vector
	}
	return result, rows.Err()
}

// Has reports which of the given ids already have a stored embedding.
func (s *Store) Has(ctx context.Context, kind core.RefKind, ids []string) (map[string]bool, error) {
	present := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return present, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ref_id FROM embeddings WHERE kind = $1 AND ref_id = ANY($2)`,
		string(kind), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check embeddings for kind %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		present[id] = true
	}
	return present, rows.Err()
}

// Delete removes the embedding for (kind, id). Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, kind core.RefKind, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE kind = $1 AND ref_id = $2`, string(kind), id); err != nil {
		return fmt.Errorf("failed to delete embedding for %s/%s: %w", kind, id, err)
	}
	return nil
}

// encode renders a vector in the active backend's storage format.
func (s *Store) encode(vector []float64) (string, error) {
	if s.capability == CapabilityNative {
		return formatVector(vector), nil
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}

// decode parses either storage format; pgvector's text form is also valid
// JSON-array syntax, so one parser covers both.
func (s *Store) decode(raw string) ([]float64, error) {
	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, fmt.Errorf("failed to decode stored embedding: %w", err)
	}
	return vector, nil
}

// formatVector converts a vector to pgvector text format: "[0.1,0.2,0.3]".
func formatVector(vector []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Cosine computes the cosine similarity dot(a,b) / (|a|*|b|) in [-1, 1].
// Zero vectors and length mismatches return 0 rather than dividing by zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
