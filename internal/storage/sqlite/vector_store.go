// Package sqlite provides the default storage.VectorStore backed by SQLite
// through the CGO-free modernc driver. Vectors live in BLOB columns next to
// the record payload; similarity is computed in Go over the rows the SQL
// owner and scope filter admits.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/whisperengine-ai/whisperengine-sub002/internal/storage"
	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

var _ storage.VectorStore = (*VectorStore)(nil)

// metaColumns are the payload columns in scan order.
const metaColumns = `id, owner_id, created_at, content, tags,
	primary_emotion, emotion_confidence, emotional_intensity, secondary_emotions,
	tier, significance, decay_resistance, factors, last_accessed_at, tier_updated_at, last_sweep_at,
	context_type, security_level, server_id, channel_id, is_private, scope_key`

// vectorColumnList is the vector columns in types.AllDimensions order.
const vectorColumnList = `dims, vec_content, vec_emotion, vec_semantic, vec_relationship, vec_situational, vec_personality`

// VectorStore implements storage.VectorStore using SQLite.
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore opens a SQLite vector store with WAL self-healing.
// If the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewVectorStore(dsn string) (*VectorStore, error) {
	store, err := openVectorStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openVectorStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// openVectorStore opens a SQLite database, configures WAL mode, and creates the schema.
func openVectorStore(dsn string) (*VectorStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serialises writes and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &VectorStore{db: db}, nil
}

// Write upserts a record and its six vectors in a single statement. An
// existing row is only replaced when owner and scope match; its identity
// and context columns are never rewritten.
func (s *VectorStore) Write(ctx context.Context, r *types.MemoryRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal tags: %v", storage.ErrStoreWrite, err)
	}
	secondary, err := json.Marshal(nonNil(r.SecondaryEmotions))
	if err != nil {
		return fmt.Errorf("%w: failed to marshal secondary emotions: %v", storage.ErrStoreWrite, err)
	}
	factors, err := json.Marshal(r.Factors)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal factors: %v", storage.ErrStoreWrite, err)
	}

	var lastSweep sql.NullInt64
	if r.LastSweepAt != nil {
		lastSweep = sql.NullInt64{Int64: toNanos(*r.LastSweepAt), Valid: true}
	}

	args := []any{
		r.ID, r.OwnerID, toNanos(r.CreatedAt), r.Content, string(tags),
		r.PrimaryEmotion, r.EmotionConfidence, r.EmotionalIntensity, string(secondary),
		string(r.Tier), r.Significance, r.DecayResistance, string(factors),
		toNanos(r.LastAccessedAt), toNanos(r.TierUpdatedAt), lastSweep,
		string(r.ContextType), string(r.SecurityLevel), r.ServerID, r.ChannelID, r.IsPrivate, r.ScopeKey,
		storage.Width(r),
	}
	for _, dim := range types.AllDimensions {
		args = append(args, serializeVector(r.Vectors[dim]))
	}

	query := `INSERT INTO memory_records (` + metaColumns + `, ` + vectorColumnList + `)
		VALUES (` + buildInClause(len(args)) + `)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tags = excluded.tags,
			primary_emotion = excluded.primary_emotion,
			emotion_confidence = excluded.emotion_confidence,
			emotional_intensity = excluded.emotional_intensity,
			secondary_emotions = excluded.secondary_emotions,
			tier = excluded.tier,
			significance = excluded.significance,
			decay_resistance = excluded.decay_resistance,
			factors = excluded.factors,
			last_accessed_at = excluded.last_accessed_at,
			tier_updated_at = excluded.tier_updated_at,
			last_sweep_at = excluded.last_sweep_at,
			dims = excluded.dims,
			vec_content = excluded.vec_content,
			vec_emotion = excluded.vec_emotion,
			vec_semantic = excluded.vec_semantic,
			vec_relationship = excluded.vec_relationship,
			vec_situational = excluded.vec_situational,
			vec_personality = excluded.vec_personality
		WHERE memory_records.owner_id = excluded.owner_id
			AND memory_records.scope_key = excluded.scope_key`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreWrite, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrStoreWrite, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: record %s exists with a different owner or scope", storage.ErrInvalidInput, r.ID)
	}
	return nil
}

// vectorSearchMaxCandidates is the maximum number of rows scored during one
// search. Rows are selected newest first, so when an owner has more rows in
// the searched scopes the oldest ones are not considered; this is logged.
var vectorSearchMaxCandidates = 10_000

// Search scores the owner's rows in the allowed scopes against req.Vector
// using cosine similarity.
func (s *VectorStore) Search(ctx context.Context, req storage.SearchRequest) ([]storage.SearchHit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		return nil, nil
	}
	column := vectorColumns[req.Dimension]

	args := make([]any, 0, len(req.Scopes)+2)
	args = append(args, req.OwnerID)
	for _, scope := range req.Scopes {
		args = append(args, scope)
	}
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dims, `+column+`
		FROM memory_records
		WHERE owner_id = ? AND scope_key IN (`+buildInClause(len(req.Scopes))+`)
		ORDER BY created_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s search: %v", storage.ErrStoreQuery, req.Dimension, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		hits    []storage.SearchHit
		scanned int
	)
	for rows.Next() {
		scanned++
		var (
			id   string
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return nil, fmt.Errorf("%w: %s search: %v", storage.ErrStoreQuery, req.Dimension, err)
		}
		if dims != len(req.Vector) {
			continue
		}
		vec, err := deserializeVector(blob, dims)
		if err != nil {
			log.Printf("sqlite: skipping corrupt %s vector for %s: %v", req.Dimension, id, err)
			continue
		}
		hits = append(hits, storage.SearchHit{ID: id, Score: cosineSimilarity(req.Vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s search: %v", storage.ErrStoreQuery, req.Dimension, err)
	}
	if scanned >= vectorSearchMaxCandidates {
		log.Printf("sqlite: %s search for owner %s hit the %d candidate cap, older memories were not scored",
			req.Dimension, req.OwnerID, vectorSearchMaxCandidates)
	}

	storage.SortHits(hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Get retrieves a record with its vectors.
func (s *VectorStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+metaColumns+`, `+vectorColumnList+` FROM memory_records WHERE id = ?`, id)
	r, err := scanRecord(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	return r, nil
}

// GetMany retrieves records without vectors.
func (s *VectorStore) GetMany(ctx context.Context, ids []string) (map[string]*types.MemoryRecord, error) {
	out := make(map[string]*types.MemoryRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metaColumns+` FROM memory_records WHERE id IN (`+buildInClause(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		r, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
		}
		out[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	return out, nil
}

// Touch advances last_accessed_at for the given records.
func (s *VectorStore) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, toNanos(at))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memory_records SET last_accessed_at = MAX(last_accessed_at, ?)
		WHERE id IN (`+buildInClause(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("%w: touch: %v", storage.ErrStoreWrite, err)
	}
	return nil
}

// Delete hard-deletes a record owned by ownerID.
func (s *VectorStore) Delete(ctx context.Context, ownerID, id string) error {
	if id == "" || ownerID == "" {
		return fmt.Errorf("%w: record ID and owner ID are required", storage.ErrInvalidInput)
	}
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_records WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete record: %v", storage.ErrStoreWrite, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrStoreWrite, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListForSweep pages through records in ID order.
func (s *VectorStore) ListForSweep(ctx context.Context, afterID string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", storage.ErrInvalidInput)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metaColumns+` FROM memory_records WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.MemoryRecord
	for rows.Next() {
		r, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	return out, nil
}

// ApplySweep applies one aging decision, guarded by the last access time the
// decision was based on.
func (s *VectorStore) ApplySweep(ctx context.Context, u storage.SweepUpdate) error {
	var (
		result sql.Result
		err    error
	)
	if u.Evict {
		result, err = s.db.ExecContext(ctx,
			"DELETE FROM memory_records WHERE id = ? AND last_accessed_at = ?",
			u.ID, toNanos(u.SeenAccessedAt))
	} else {
		if !u.Tier.IsValid() {
			return fmt.Errorf("%w: unknown tier %q", storage.ErrInvalidInput, u.Tier)
		}
		result, err = s.db.ExecContext(ctx, `
			UPDATE memory_records
			SET tier = ?, decay_resistance = ?, tier_updated_at = ?, last_sweep_at = ?
			WHERE id = ? AND last_accessed_at = ?`,
			string(u.Tier), u.DecayResistance, toNanos(u.TierUpdatedAt), toNanos(u.SweptAt),
			u.ID, toNanos(u.SeenAccessedAt))
	}
	if err != nil {
		return fmt.Errorf("%w: sweep %s: %v", storage.ErrStoreWrite, u.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check rows affected: %v", storage.ErrStoreWrite, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM memory_records WHERE id = ?", u.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	return storage.ErrStale
}

// RecentContents returns the owner's newest record contents.
func (s *VectorStore) RecentContents(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT content FROM memory_records WHERE owner_id = ? ORDER BY created_at DESC, id LIMIT ?",
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrStoreQuery, err)
	}
	return n, nil
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so that the
// operator CLI can open the database after the server exits.
func (s *VectorStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected with metaColumns, optionally followed
// by vectorColumnList.
func scanRecord(row scanner, withVectors bool) (*types.MemoryRecord, error) {
	var (
		r                                types.MemoryRecord
		created, lastAccess, tierUpdated int64
		lastSweep                        sql.NullInt64
		tags, secondary, factors         string
		tier, contextType, level         string
		dims                             int
	)
	blobs := make([][]byte, len(types.AllDimensions))
	dest := []any{
		&r.ID, &r.OwnerID, &created, &r.Content, &tags,
		&r.PrimaryEmotion, &r.EmotionConfidence, &r.EmotionalIntensity, &secondary,
		&tier, &r.Significance, &r.DecayResistance, &factors, &lastAccess, &tierUpdated, &lastSweep,
		&contextType, &level, &r.ServerID, &r.ChannelID, &r.IsPrivate, &r.ScopeKey,
	}
	if withVectors {
		dest = append(dest, &dims)
		for i := range blobs {
			dest = append(dest, &blobs[i])
		}
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	r.CreatedAt = fromNanos(created)
	r.LastAccessedAt = fromNanos(lastAccess)
	r.TierUpdatedAt = fromNanos(tierUpdated)
	if lastSweep.Valid {
		t := fromNanos(lastSweep.Int64)
		r.LastSweepAt = &t
	}
	r.Tier = types.Tier(tier)
	r.ContextType = types.ContextType(contextType)
	r.SecurityLevel = types.SecurityLevel(level)

	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(secondary), &r.SecondaryEmotions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secondary emotions for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(factors), &r.Factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal factors for %s: %w", r.ID, err)
	}

	if withVectors {
		r.Vectors = make(types.Vectors, len(types.AllDimensions))
		for i, dim := range types.AllDimensions {
			vec, err := deserializeVector(blobs[i], dims)
			if err != nil {
				return nil, fmt.Errorf("%s vector for %s: %w", dim, r.ID, err)
			}
			r.Vectors[dim] = vec
		}
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
