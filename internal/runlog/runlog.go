// Package runlog records pipeline runs and their phase events for audit.
// The sink is deliberately forgiving: a degraded database never fails the
// run it is describing, events just fall back to the process log.
package runlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"curio/internal/core"
)

// Store is the persistence surface behind the sink.
type Store interface {
	StartRun(ctx context.Context) (*core.RunRecord, error)
	FinishRun(ctx context.Context, id string, status core.RunStatus, duration time.Duration, summary string) error
	AppendRunEvent(ctx context.Context, runID, phase, level, message string, data []byte) error
}

// Run is one in-flight run's event sink.
type Run struct {
	record   *core.RunRecord
	db       Store
	log      *slog.Logger
	started  time.Time
	degraded bool
}

// Start opens a run record. If the store is unavailable the run proceeds
// with logging only.
func Start(ctx context.Context, db Store, log *slog.Logger) *Run {
	r := &Run{db: db, log: log, started: time.Now()}
	record, err := db.StartRun(ctx)
	if err != nil {
		log.Warn("run log degraded, events will not be persisted", "error", err.Error())
		r.degraded = true
		r.record = &core.RunRecord{Status: core.RunRunning, StartedAt: r.started}
		return r
	}
	r.record = record
	return r
}

// ID returns the persisted run id, or empty when no record was opened.
func (r *Run) ID() string {
	return r.record.ID
}

// Event records one phase-level event. Data must marshal to JSON; a
// marshal or write failure degrades to the process log.
func (r *Run) Event(ctx context.Context, phase, level, message string, data any) {
	attrs := []any{"phase", phase}
	var payload []byte
	if data != nil {
		var err error
		payload, err = json.Marshal(data)
		if err != nil {
			payload = nil
		} else {
			attrs = append(attrs, "data", string(payload))
		}
	}

	switch level {
	case "warn":
		r.log.Warn(message, attrs...)
	case "error":
		r.log.Error(message, attrs...)
	default:
		r.log.Info(message, attrs...)
	}

	if r.degraded {
		return
	}
	if err := r.db.AppendRunEvent(ctx, r.record.ID, phase, level, message, payload); err != nil {
		r.log.Warn("failed to persist run event", "error", err.Error())
		r.degraded = true
	}
}

// Finish closes the run with its terminal status. A degraded event sink
// must not leave the run row stuck at running, so the record is closed
// whenever one was opened.
func (r *Run) Finish(ctx context.Context, status core.RunStatus, summary string) {
	duration := time.Since(r.started)
	r.log.Info("run finished",
		"run", r.record.ID,
		"status", string(status),
		"duration", duration.String(),
		"summary", summary,
	)
	if r.record.ID == "" {
		return
	}
	if err := r.db.FinishRun(ctx, r.record.ID, status, duration, summary); err != nil {
		r.log.Warn("failed to close run record", "error", err.Error())
	}
}
