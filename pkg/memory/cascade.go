// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"

	"github.com/jllopis/telos/pkg/resilience"
)

// Tier names the retrieval strategy that served a Retrieval.
type Tier string

const (
	// TierNative is the backend's own vector search.
	TierNative Tier = "native"
	// TierBruteForce scores every stored record in process.
	TierBruteForce Tier = "brute-force"
	// TierRecent returns the newest records with no similarity ranking.
	TierRecent Tier = "recent"
	// TierSession returns a session's history.
	TierSession Tier = "session"
	// TierNone means nothing could be retrieved.
	TierNone Tier = "none"
)

// Retrieval is the outcome of a best-effort read. Records is never nil.
// Degraded is set when the answer came from a weaker tier than asked for or
// when nothing could be read at all.
type Retrieval struct {
	Records  []Record
	Tier     Tier
	Degraded error
}

// similarityTier is one strategy of the similarity cascade.
type similarityTier struct {
	name Tier
	run  func(ctx context.Context, vector []float32, limit int) ([]Record, error)
}

// similarityTiers lists the cascade strongest first.
func (s *Store) similarityTiers(minScore float64) []similarityTier {
	return []similarityTier{
		{TierNative, func(ctx context.Context, vector []float32, limit int) ([]Record, error) {
			return s.backend.QuerySimilar(ctx, vector, limit, minScore)
		}},
		{TierBruteForce, func(ctx context.Context, vector []float32, limit int) ([]Record, error) {
			all, err := s.backend.QueryAll(ctx)
			if err != nil {
				return nil, err
			}
			return RankBySimilarity(vector, all, limit), nil
		}},
		{TierRecent, func(ctx context.Context, _ []float32, limit int) ([]Record, error) {
			recs, err := s.backend.QueryRecent(ctx, limit)
			if err != nil {
				return nil, err
			}
			for i := range recs {
				recs[i].Score = 0
			}
			return recs, nil
		}},
	}
}

// runCascade tries each tier in order, moving on only when a tier errors.
// An empty but successful tier ends the cascade.
func (s *Store) runCascade(ctx context.Context, vector []float32, limit int, minScore float64) (Retrieval, error) {
	tiers := s.similarityTiers(minScore)
	stages := make([]resilience.Stage[[]Record], 0, len(tiers))
	for _, t := range tiers {
		run := t.run
		stages = append(stages, resilience.Stage[[]Record]{
			Name: string(t.name),
			Run: func(ctx context.Context) ([]Record, error) {
				recs, err := run(ctx, vector, limit)
				if err != nil {
					return nil, err
				}
				return withoutEmbeddings(recs), nil
			},
		})
	}

	res, err := resilience.Chain(ctx, stages...)
	for i, failure := range res.Failures {
		s.log.DebugContext(ctx, "memory.retrieve.tier_failed",
			"tier", tiers[i].name,
			"error", failure,
		)
	}
	if err != nil {
		return Retrieval{Records: []Record{}, Tier: TierNone, Degraded: err}, err
	}

	out := Retrieval{Records: res.Value, Tier: Tier(res.Stage)}
	if res.Degraded() {
		out.Degraded = res.Failures[len(res.Failures)-1]
	}
	return out, nil
}
