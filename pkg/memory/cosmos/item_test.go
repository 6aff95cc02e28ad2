// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package cosmos

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/telos/pkg/memory"
)

func TestItemID(t *testing.T) {
	at := time.Unix(1700000000, 123)
	if got := itemID("sess-1", at); got != "sess-1_1700000000000000123" {
		t.Errorf("unexpected id %q", got)
	}
	if got := itemID(`a/b\c?d#1`, at); got != "a%2Fb%5Cc%3Fd%231_1700000000000000123" {
		t.Errorf("reserved characters not escaped: %q", got)
	}
}

func TestNewItemKeepsRawSessionID(t *testing.T) {
	it := newItem(memory.Record{SessionID: "team/alpha#2"}, time.Unix(1, 0))
	if it.SessionID != "team/alpha#2" {
		t.Errorf("partition key must keep the session id, got %q", it.SessionID)
	}
	if strings.ContainsAny(it.ID, `/\?#`) {
		t.Errorf("id carries reserved characters: %q", it.ID)
	}
}

func TestNewItemCarriesIDAndEmbedding(t *testing.T) {
	rec := memory.Record{SessionID: "s", Goal: "g", Embedding: []float32{0.5, 0.25}}
	data, err := json.Marshal(newItem(rec, time.Unix(1, 0)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]any
	_ = json.Unmarshal(data, &doc)
	if doc["id"] != "s_1000000000" {
		t.Errorf("unexpected id %v", doc["id"])
	}
	if doc["session_id"] != "s" {
		t.Errorf("partition key field missing: %v", doc)
	}
	if emb, ok := doc["embedding"].([]any); !ok || len(emb) != 2 {
		t.Errorf("embedding not stored: %v", doc["embedding"])
	}
}

func TestDecodeItemsDropsStorageFields(t *testing.T) {
	raw := [][]byte{
		[]byte(`{"id":"s_1","_rid":"abc","_self":"dbs/x","_etag":"\"0\"","_attachments":"a/","_ts":1700000000,
			"session_id":"s","timestamp":"2026-01-01T00:00:00.000000Z","goal":"g","plan":["a","b"],
			"observations":["o"],"result":"r","embedding":[0.1,0.2],"metadata":{"decision":"CONTINUE"},
			"SimilarityScore":0.91}`),
		[]byte(`{"session_id":"s","timestamp":"2026-01-01T00:00:01.000000Z","goal":"no vector"}`),
	}

	recs, err := decodeItems(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	first := recs[0]
	if first.Goal != "g" || len(first.Plan) != 2 || first.Metadata["decision"] != "CONTINUE" {
		t.Errorf("unexpected record %+v", first)
	}
	if first.Score != 0.91 {
		t.Errorf("expected score 0.91, got %v", first.Score)
	}
	if len(first.Embedding) != 2 || first.Embedding[1] != float32(0.2) {
		t.Errorf("embedding not decoded: %v", first.Embedding)
	}
	if recs[1].Embedding != nil {
		t.Errorf("expected nil embedding for record without vector")
	}

	if _, err := decodeItems([][]byte{[]byte(`{"goal":`)}); err == nil {
		t.Error("expected decode error for malformed item")
	}
}

func TestQueriesAreParameterized(t *testing.T) {
	for name, q := range map[string]string{"session": sessionQuery, "similar": similarQuery} {
		if !strings.Contains(q, "TOP @limit") {
			t.Errorf("%s query must bound results with @limit: %s", name, q)
		}
		if strings.Contains(q, "c.embedding,") && !strings.Contains(q, "@embedding") {
			t.Errorf("%s query must take the vector as a parameter", name)
		}
	}
	if !strings.Contains(similarQuery, ">= @min_score") {
		t.Errorf("similar query must filter by min score: %s", similarQuery)
	}
	if strings.Contains(recentQuery, "*") || strings.Contains(recentQuery, "embedding") {
		t.Errorf("recent query must project record fields only: %s", recentQuery)
	}
	if !strings.Contains(sessionQuery, "ORDER BY c.timestamp DESC") {
		t.Errorf("session query must order newest first: %s", sessionQuery)
	}
}
