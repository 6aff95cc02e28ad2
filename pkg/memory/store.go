// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Store is the long-term memory of the agent. It is safe for concurrent use
// when its backend and embedder are.
type Store struct {
	backend  Backend
	embedder Embedder
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.RunMetrics
	now      func() time.Time
	minScore float64

	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded-path reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithMetrics records degraded operations on m.
func WithMetrics(m *telemetry.RunMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithMinScore sets the similarity floor used by GetRelevantContext.
func WithMinScore(minScore float64) Option {
	return func(s *Store) { s.minScore = minScore }
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over backend, embedding text with embedder.
func New(backend Backend, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		log:      slog.Default(),
		tracer:   otel.Tracer("telos/memory"),
		now:      time.Now,
		minScore: DefaultMinScore,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "memory"), slog.String("backend", string(backend.ClientType())))
	return s
}

// ClientType reports the backend kind. It never changes for a Store.
func (s *Store) ClientType() ClientType {
	return s.backend.ClientType()
}

// GenerateEmbedding embeds text. It does not retry.
func (s *Store) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.New(errors.CodeEmbedding, "generate embedding", err).WithRecoverable(true)
	}
	if len(vec) == 0 {
		return nil, errors.New(errors.CodeEmbedding, "embedding service returned an empty vector", nil)
	}
	return vec, nil
}

// StoreInteraction embeds the interaction synopsis and persists one record.
func (s *Store) StoreInteraction(ctx context.Context, in Interaction) error {
	ctx, span := s.tracer.Start(ctx, "Memory.Store")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrSessionID, in.SessionID))

	vec, err := s.GenerateEmbedding(ctx, in.Synopsis())
	if err != nil {
		return s.storeFailed(ctx, span, "embed synopsis", err)
	}

	rec := Record{
		SessionID:    in.SessionID,
		Timestamp:    FormatTimestamp(s.now()),
		Goal:         in.Goal,
		Plan:         nonNil(in.Plan),
		Observations: nonNil(in.Observations),
		Result:       in.Result,
		Embedding:    vec,
		Metadata:     in.Metadata,
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	if err := s.backend.Insert(ctx, rec); err != nil {
		return s.storeFailed(ctx, span, "insert interaction", err)
	}

	s.log.InfoContext(ctx, "memory.store.ok", slog.String("session_id", in.SessionID))
	return nil
}

func (s *Store) storeFailed(ctx context.Context, span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.metrics.RecordMemoryDegraded(ctx, "store")
	return errors.New(errors.CodePersistence, msg, err).
		WithContext("backend", string(s.backend.ClientType())).
		WithRecoverable(true)
}

// RetrieveSimilarInteractions returns up to limit records similar to query.
// It never fails: when the query cannot be embedded or every tier fails, the
// result is empty and Degraded says why.
func (s *Store) RetrieveSimilarInteractions(ctx context.Context, query string, limit int, minScore float64) Retrieval {
	ctx, span := s.tracer.Start(ctx, "Memory.Retrieve")
	defer span.End()
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	vec, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		s.degraded(ctx, "retrieve_similar", TierNone, err)
		span.SetAttributes(telemetry.MemoryAttributes(string(s.ClientType()), "retrieve_similar", string(TierNone), 0, true)...)
		return Retrieval{Records: []Record{}, Tier: TierNone, Degraded: err}
	}

	res, err := s.runCascade(ctx, vec, limit, minScore)
	if err != nil {
		s.degraded(ctx, "retrieve_similar", TierNone, err)
	} else if res.Degraded != nil {
		s.log.InfoContext(ctx, "memory.retrieve.fallback",
			slog.String("tier", string(res.Tier)),
			slog.String("reason", res.Degraded.Error()),
		)
		s.metrics.RecordMemoryDegraded(ctx, "retrieve_similar")
	}
	span.SetAttributes(telemetry.MemoryAttributes(string(s.ClientType()), "retrieve_similar", string(res.Tier), len(res.Records), res.Degraded != nil)...)
	return res
}

// GetRecentHistory returns up to limit records of sessionID, oldest first.
func (s *Store) GetRecentHistory(ctx context.Context, sessionID string, limit int) Retrieval {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recs, err := s.backend.QueryBySession(ctx, sessionID, limit)
	if err != nil {
		err = errors.New(errors.CodePersistence, "query session history", err).WithContext("session_id", sessionID)
		s.degraded(ctx, "recent_history", TierNone, err)
		return Retrieval{Records: []Record{}, Tier: TierNone, Degraded: err}
	}

	recs = withoutEmbeddings(recs)
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return Retrieval{Records: recs, Tier: TierSession}
}

// GetRelevantContext gathers the session history and the interactions most
// similar to goal. Each half is best-effort; the returned errors describe the
// halves that degraded.
func (s *Store) GetRelevantContext(ctx context.Context, goal, sessionID string, historyLimit, similarLimit int) (*Context, []error) {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if similarLimit <= 0 {
		similarLimit = DefaultSimilarLimit
	}

	history := s.GetRecentHistory(ctx, sessionID, historyLimit)
	similar := s.RetrieveSimilarInteractions(ctx, goal, similarLimit, s.minScore)

	var errs []error
	if history.Degraded != nil {
		errs = append(errs, history.Degraded)
	}
	if similar.Degraded != nil {
		errs = append(errs, similar.Degraded)
	}
	return &Context{
		RecentHistory:       history.Records,
		SimilarInteractions: similar.Records,
	}, errs
}

// Close releases backend resources. Calls after the first are no-ops and
// return nil.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.backend.Close(ctx)
	})
	return err
}

func (s *Store) degraded(ctx context.Context, operation string, tier Tier, err error) {
	s.log.WarnContext(ctx, "memory.retrieve.degraded",
		slog.String("operation", operation),
		slog.String("tier", string(tier)),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordMemoryDegraded(ctx, operation)
}

func nonNil(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
