// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package cosmos

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/memory"
)

const recordFields = "c.session_id, c.timestamp, c.goal, c.plan, c.observations, c.result, c.metadata"

const (
	sessionQuery = "SELECT TOP @limit " + recordFields + " FROM c WHERE c.session_id = @session_id ORDER BY c.timestamp DESC"

	similarQuery = "SELECT TOP @limit " + recordFields + ", VectorDistance(c.embedding, @embedding) AS SimilarityScore" +
		" FROM c WHERE VectorDistance(c.embedding, @embedding) >= @min_score" +
		" ORDER BY VectorDistance(c.embedding, @embedding)"

	allQuery = "SELECT * FROM c"

	recentQuery = "SELECT " + recordFields + " FROM c"
)

// idEscaper replaces the characters Cosmos DB refuses in item ids.
var idEscaper = strings.NewReplacer("/", "%2F", "\\", "%5C", "?", "%3F", "#", "%23")

// item is the stored document. System properties (_rid, _self, _etag,
// _attachments, _ts) are ignored on decode.
type item struct {
	ID              string         `json:"id,omitempty"`
	SessionID       string         `json:"session_id"`
	Timestamp       string         `json:"timestamp"`
	Goal            string         `json:"goal"`
	Plan            []string       `json:"plan"`
	Observations    []string       `json:"observations"`
	Result          string         `json:"result"`
	Embedding       []float64      `json:"embedding,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	SimilarityScore *float64       `json:"SimilarityScore,omitempty"`
}

// itemID is <session_id>_<unix-nanoseconds>. Characters Cosmos refuses in ids
// are percent-encoded in the session part.
func itemID(sessionID string, at time.Time) string {
	return fmt.Sprintf("%s_%d", idEscaper.Replace(sessionID), at.UnixNano())
}

func newItem(rec memory.Record, at time.Time) item {
	emb := make([]float64, len(rec.Embedding))
	for i, v := range rec.Embedding {
		emb[i] = float64(v)
	}
	return item{
		ID:           itemID(rec.SessionID, at),
		SessionID:    rec.SessionID,
		Timestamp:    rec.Timestamp,
		Goal:         rec.Goal,
		Plan:         rec.Plan,
		Observations: rec.Observations,
		Result:       rec.Result,
		Embedding:    emb,
		Metadata:     rec.Metadata,
	}
}

func (it item) record() memory.Record {
	rec := memory.Record{
		SessionID:    it.SessionID,
		Timestamp:    it.Timestamp,
		Goal:         it.Goal,
		Plan:         it.Plan,
		Observations: it.Observations,
		Result:       it.Result,
		Metadata:     it.Metadata,
	}
	if len(it.Embedding) > 0 {
		rec.Embedding = make([]float32, len(it.Embedding))
		for i, v := range it.Embedding {
			rec.Embedding[i] = float32(v)
		}
	}
	if it.SimilarityScore != nil {
		rec.Score = *it.SimilarityScore
	}
	return rec
}

func decodeItems(raw [][]byte) ([]memory.Record, error) {
	out := make([]memory.Record, 0, len(raw))
	for _, data := range raw {
		var it item
		if err := json.Unmarshal(data, &it); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		out = append(out, it.record())
	}
	return out, nil
}
