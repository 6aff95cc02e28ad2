// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"math"
	"sort"
)

// CosineSimilarity returns dot(a,b)/(|a||b|). ok is false when the vectors
// differ in length, are empty, or either has zero norm.
func CosineSimilarity(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// RankBySimilarity scores every record against query and returns the top
// limit records, most similar first. Records that cannot be scored are
// skipped.
func RankBySimilarity(query []float32, records []Record, limit int) []Record {
	ranked := make([]Record, 0, len(records))
	for _, r := range records {
		score, ok := CosineSimilarity(query, r.Embedding)
		if !ok {
			continue
		}
		r.Score = score
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
