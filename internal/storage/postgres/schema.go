// Package postgres provides a PostgreSQL storage.VectorStore using pgvector.
package postgres

import (
	"fmt"
	"strings"
)

// schemaTemplate creates the record table. %d is the vector width, which
// pgvector needs for the column type and the HNSW indexes.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_records (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    content TEXT NOT NULL,
    tags JSONB NOT NULL,

    primary_emotion TEXT NOT NULL,
    emotion_confidence DOUBLE PRECISION NOT NULL,
    emotional_intensity DOUBLE PRECISION NOT NULL,
    secondary_emotions JSONB NOT NULL,

    tier TEXT NOT NULL,
    significance DOUBLE PRECISION NOT NULL,
    decay_resistance DOUBLE PRECISION NOT NULL,
    factors JSONB NOT NULL,
    last_accessed_at TIMESTAMPTZ NOT NULL,
    tier_updated_at TIMESTAMPTZ NOT NULL,
    last_sweep_at TIMESTAMPTZ,

    context_type TEXT NOT NULL,
    security_level TEXT NOT NULL,
    server_id TEXT NOT NULL DEFAULT '',
    channel_id TEXT NOT NULL DEFAULT '',
    is_private BOOLEAN NOT NULL DEFAULT FALSE,
    scope_key TEXT NOT NULL,

    vec_content vector(%[1]d) NOT NULL,
    vec_emotion vector(%[1]d) NOT NULL,
    vec_semantic vector(%[1]d) NOT NULL,
    vec_relationship vector(%[1]d) NOT NULL,
    vec_situational vector(%[1]d) NOT NULL,
    vec_personality vector(%[1]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_records_owner_scope ON memory_records(owner_id, scope_key);
CREATE INDEX IF NOT EXISTS idx_memory_records_owner_created ON memory_records(owner_id, created_at DESC);
`

// vectorIndexTemplate creates one HNSW cosine index per vector column.
const vectorIndexTemplate = `CREATE INDEX IF NOT EXISTS idx_memory_records_%[1]s ON memory_records USING hnsw (%[1]s vector_cosine_ops);`

// Schema returns the DDL for vectors of the given width.
func Schema(dims int) string {
	return fmt.Sprintf(schemaTemplate, dims)
}

// vectorIndexes returns the index DDL for every vector column.
func vectorIndexes() string {
	var b strings.Builder
	for _, dim := range dimensionOrder {
		fmt.Fprintf(&b, vectorIndexTemplate+"\n", vectorColumns[dim])
	}
	return b.String()
}
