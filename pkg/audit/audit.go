// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records the phase transitions of agent runs.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status values used by the orchestrator.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
)

// Event is one phase transition of a run.
type Event struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	Phase     string    `json:"phase" yaml:"phase"`
	Status    string    `json:"status" yaml:"status"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}

// Filter limits audit event queries. Zero fields match everything.
type Filter struct {
	RunID     string
	SessionID string
	Phase     string
	Status    string
	Limit     int
}

func (f Filter) match(ev Event) bool {
	return (f.RunID == "" || ev.RunID == f.RunID) &&
		(f.SessionID == "" || ev.SessionID == f.SessionID) &&
		(f.Phase == "" || ev.Phase == f.Phase) &&
		(f.Status == "" || ev.Status == f.Status)
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// MemoryStore keeps audit events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an audit event.
func (s *MemoryStore) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.At = normalizeTime(event.At)
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in insertion order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Recorder stamps and records events for a single run. Recording is best
// effort: failures are logged and never returned. A nil Recorder is valid and
// records nothing.
type Recorder struct {
	store     Store
	runID     string
	sessionID string
	log       *slog.Logger
	now       func() time.Time
}

// NewRecorder returns a recorder bound to one run.
func NewRecorder(store Store, runID, sessionID string, logger *slog.Logger) *Recorder {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, runID: runID, sessionID: sessionID, log: logger, now: time.Now}
}

// Record stores an event for phase.
func (r *Recorder) Record(ctx context.Context, phase, status, detail string) {
	if r == nil {
		return
	}
	ev := Event{
		RunID:     r.runID,
		SessionID: r.sessionID,
		Phase:     phase,
		Status:    status,
		Detail:    detail,
		At:        r.now(),
	}
	if err := r.store.Record(ctx, ev); err != nil {
		r.log.Warn("audit.record.failed", "run_id", r.runID, "phase", phase, "error", err)
	}
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
