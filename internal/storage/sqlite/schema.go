package sqlite

// Schema creates the record table. Timestamps are unix nanoseconds so that
// sweep updates can compare last_accessed_at exactly. Each named vector is a
// little-endian float32 BLOB of width dims.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_records (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    content TEXT NOT NULL,
    tags TEXT NOT NULL,

    primary_emotion TEXT NOT NULL,
    emotion_confidence REAL NOT NULL,
    emotional_intensity REAL NOT NULL,
    secondary_emotions TEXT NOT NULL,

    tier TEXT NOT NULL,
    significance REAL NOT NULL,
    decay_resistance REAL NOT NULL,
    factors TEXT NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    tier_updated_at INTEGER NOT NULL,
    last_sweep_at INTEGER,

    context_type TEXT NOT NULL,
    security_level TEXT NOT NULL,
    server_id TEXT NOT NULL DEFAULT '',
    channel_id TEXT NOT NULL DEFAULT '',
    is_private INTEGER NOT NULL DEFAULT 0,
    scope_key TEXT NOT NULL,

    dims INTEGER NOT NULL,
    vec_content BLOB NOT NULL,
    vec_emotion BLOB NOT NULL,
    vec_semantic BLOB NOT NULL,
    vec_relationship BLOB NOT NULL,
    vec_situational BLOB NOT NULL,
    vec_personality BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_records_owner_scope ON memory_records(owner_id, scope_key);
CREATE INDEX IF NOT EXISTS idx_memory_records_owner_created ON memory_records(owner_id, created_at);
`
