// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemory is a simple in-process Backend. It has no vector index, so
// similarity queries fall through to the brute-force tier.
type InMemory struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemory creates an empty in-memory backend.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// ClientType implements Backend.
func (m *InMemory) ClientType() ClientType { return ClientTypeInMemory }

// Insert appends rec.
func (m *InMemory) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Score = 0
	m.records = append(m.records, cloneRecord(rec))
	return nil
}

// QueryBySession returns up to limit records of sessionID, newest first.
func (m *InMemory) QueryBySession(_ context.Context, sessionID string, limit int) ([]Record, error) {
	return m.newest(limit, func(r Record) bool { return r.SessionID == sessionID }), nil
}

// QuerySimilar always reports ErrNativeSearchUnavailable.
func (m *InMemory) QuerySimilar(context.Context, []float32, int, float64) ([]Record, error) {
	return nil, ErrNativeSearchUnavailable
}

// QueryAll returns every record.
func (m *InMemory) QueryAll(context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

// QueryRecent returns up to limit records across sessions, newest first.
func (m *InMemory) QueryRecent(_ context.Context, limit int) ([]Record, error) {
	return m.newest(limit, func(Record) bool { return true }), nil
}

// Close is a no-op.
func (m *InMemory) Close(context.Context) error { return nil }

func (m *InMemory) newest(limit int, match func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if match(r) {
			out = append(out, cloneRecord(r))
		}
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortNewestFirst orders records by descending timestamp, keeping insertion
// order for equal timestamps reversed so the last inserted comes first.
func SortNewestFirst(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
}

func cloneRecord(r Record) Record {
	if r.Plan != nil {
		r.Plan = append(make([]string, 0, len(r.Plan)), r.Plan...)
	}
	if r.Observations != nil {
		r.Observations = append(make([]string, 0, len(r.Observations)), r.Observations...)
	}
	if r.Embedding != nil {
		r.Embedding = append(make([]float32, 0, len(r.Embedding)), r.Embedding...)
	}
	if r.Metadata != nil {
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}
