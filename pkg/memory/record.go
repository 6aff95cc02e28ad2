// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory implements long-term, semantically searchable memory for
// agent runs. Each finished run is stored as a Record holding the goal, the
// plan, the observations and the final result, together with an embedding of
// a short synopsis. Records are retrieved by session (recent history) or by
// vector similarity through a cascade of progressively weaker strategies.
package memory

import (
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for Record.Timestamp.
// Lexical order of formatted timestamps equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp formats t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is one persisted agent run.
type Record struct {
	SessionID    string         `json:"session_id" bson:"session_id"`
	Timestamp    string         `json:"timestamp" bson:"timestamp"`
	Goal         string         `json:"goal" bson:"goal"`
	Plan         []string       `json:"plan" bson:"plan"`
	Observations []string       `json:"observations" bson:"observations"`
	Result       string         `json:"result" bson:"result"`
	Embedding    []float32      `json:"embedding,omitempty" bson:"embedding,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`

	// Score is the similarity to the query when the record was served by a
	// similarity tier. It is never persisted.
	Score float64 `json:"score,omitempty" bson:"-"`
}

// Interaction is the input of Store.StoreInteraction.
type Interaction struct {
	SessionID    string
	Goal         string
	Plan         []string
	Observations []string
	Result       string
	Metadata     map[string]any
}

// Synopsis is the text embedded for a stored interaction.
func (i Interaction) Synopsis() string {
	return "Goal: " + i.Goal + "\nResult: " + i.Result + "\nPlan: " + strings.Join(i.Plan, " -> ")
}

// Context is the memory handed to the planner before a run.
type Context struct {
	RecentHistory       []Record `json:"recent_history"`
	SimilarInteractions []Record `json:"similar_interactions"`
}

// Empty reports whether nothing was retrieved.
func (c *Context) Empty() bool {
	return c == nil || (len(c.RecentHistory) == 0 && len(c.SimilarInteractions) == 0)
}

// withoutEmbeddings returns copies of records with the embedding cleared.
func withoutEmbeddings(records []Record) []Record {
	if len(records) == 0 {
		return []Record{}
	}
	out := make([]Record, len(records))
	for i, r := range records {
		r.Embedding = nil
		out[i] = r
	}
	return out
}
