// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jllopis/telos/pkg/memory"
)

// document is the stored form of a memory.Record. Embeddings are stored as
// doubles.
type document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SessionID    string             `bson:"session_id"`
	Timestamp    string             `bson:"timestamp"`
	Goal         string             `bson:"goal"`
	Plan         []string           `bson:"plan"`
	Observations []string           `bson:"observations"`
	Result       string             `bson:"result"`
	Embedding    []float64          `bson:"embedding,omitempty"`
	Metadata     map[string]any     `bson:"metadata"`
}

// searchHit is one row of the similarity pipeline.
type searchHit struct {
	SimilarityScore float64  `bson:"similarityScore"`
	Document        document `bson:"document"`
}

func newDocument(rec memory.Record) document {
	emb := make([]float64, len(rec.Embedding))
	for i, v := range rec.Embedding {
		emb[i] = float64(v)
	}
	return document{
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

func (d document) record() memory.Record {
	rec := memory.Record{
		SessionID:    d.SessionID,
		Timestamp:    d.Timestamp,
		Goal:         d.Goal,
		Plan:         d.Plan,
		Observations: d.Observations,
		Result:       d.Result,
		Metadata:     d.Metadata,
	}
	if len(d.Embedding) > 0 {
		rec.Embedding = make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			rec.Embedding[i] = float32(v)
		}
	}
	return rec
}

func similarityPipeline(vector []float32, limit int) bson.A {
	vec := make(bson.A, len(vector))
	for i, v := range vector {
		vec[i] = float64(v)
	}
	return bson.A{
		bson.D{{Key: "$search", Value: bson.D{
			{Key: "cosmosSearch", Value: bson.D{
				{Key: "vector", Value: vec},
				{Key: "path", Value: "embedding"},
				{Key: "k", Value: limit},
			}},
			{Key: "returnStoredSource", Value: true},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "similarityScore", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
			{Key: "document", Value: "$$ROOT"},
		}}},
	}
}

func vectorIndexCommand(collection string, dimensions int) bson.D {
	return bson.D{
		{Key: "createIndexes", Value: collection},
		{Key: "indexes", Value: bson.A{
			bson.D{
				{Key: "name", Value: VectorIndexName},
				{Key: "key", Value: bson.D{{Key: "embedding", Value: "cosmosSearch"}}},
				{Key: "cosmosSearchOptions", Value: bson.D{
					{Key: "kind", Value: "vector-ivf"},
					{Key: "numLists", Value: 1},
					{Key: "similarity", Value: "COS"},
					{Key: "dimensions", Value: dimensions},
				}},
			},
		}},
	}
}

// hitsToRecords keeps hits scoring at least minScore, in server order, with
// embeddings removed.
func hitsToRecords(hits []searchHit, minScore float64) []memory.Record {
	out := make([]memory.Record, 0, len(hits))
	for _, h := range hits {
		if h.SimilarityScore < minScore {
			continue
		}
		rec := h.Document.record()
		rec.Embedding = nil
		rec.Score = h.SimilarityScore
		out = append(out, rec)
	}
	return out
}
