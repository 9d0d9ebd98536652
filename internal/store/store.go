// Package store provides the narrow Postgres accessors the pipeline
// consumes: articles, interests, exclusions, per-reader scoring rows,
// digests, feedback, settings and background embedding jobs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // Registers the postgres driver

	"curio/internal/config"
)

// DB wraps the Postgres connection behind the pipeline's accessors.
type DB struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(cfg config.Database) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// SQL exposes the underlying handle for components that manage their own
// schema (the vector store probe and the run logger).
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database connection.
func (d *DB) Close() error { return d.db.Close() }

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Duplicate inserts during ingestion are expected and benign.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
