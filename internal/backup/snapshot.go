// Package backup takes, prunes and restores point-in-time snapshots of the
// SQLite vector store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// snapshotPrefix marks files this package created, so pruning never touches
// anything else in the directory.
const snapshotPrefix = "memory-snapshot-"

// Config locates the database and its snapshot directory.
type Config struct {
	DBPath    string
	Dir       string
	Retention RetentionPolicy
}

// Snapshot describes one snapshot file.
type Snapshot struct {
	Path     string    `json:"path"`
	TakenAt  time.Time `json:"taken_at"`
	Size     int64     `json:"size"`
	Verified bool      `json:"verified"`
	Duration string    `json:"duration,omitempty"`
	Pruned   []string  `json:"pruned,omitempty"`
}

// Manager takes and restores snapshots of one database.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager validates cfg, fills retention defaults and creates the
// snapshot directory.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(filepath.Dir(cfg.DBPath), "snapshots")
	}
	cfg.Retention = cfg.Retention.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

// Take writes a verified snapshot and prunes old ones. A pruning failure is
// logged, not returned.
func (m *Manager) Take(ctx context.Context) (*Snapshot, error) {
	start := m.now()
	if _, err := os.Stat(m.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	name := snapshotPrefix + start.UTC().Format("20060102-150405.000000") + ".db"
	path := filepath.Join(m.cfg.Dir, name)
	if err := vacuumInto(ctx, m.cfg.DBPath, path); err != nil {
		return nil, err
	}
	if err := verify(ctx, path); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("snapshot verification failed: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	snap := &Snapshot{
		Path:     path,
		TakenAt:  start.UTC(),
		Size:     info.Size(),
		Verified: true,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}

	existing, err := m.List()
	if err != nil {
		log.Printf("backup: failed to list snapshots for pruning: %v", err)
		return snap, nil
	}
	for _, old := range prune(existing, m.cfg.Retention, m.now()) {
		if err := os.Remove(old); err != nil {
			log.Printf("backup: failed to prune %s: %v", filepath.Base(old), err)
			continue
		}
		snap.Pruned = append(snap.Pruned, old)
	}
	return snap, nil
}

// List returns the snapshots in the directory, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	return list(m.cfg.Dir)
}

// Restore replaces the database with a verified copy of snapshotPath. The
// store must not be open. The previous database is kept next to it with a
// .pre-restore suffix until the restore succeeds.
func (m *Manager) Restore(ctx context.Context, snapshotPath string) error {
	if err := verify(ctx, snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	previous := m.cfg.DBPath + ".pre-restore"
	hadPrevious := false
	if _, err := os.Stat(m.cfg.DBPath); err == nil {
		_ = os.Remove(previous)
		if err := vacuumInto(ctx, m.cfg.DBPath, previous); err != nil {
			return fmt.Errorf("failed to save current database: %w", err)
		}
		hadPrevious = true
	}

	if err := copyVerified(ctx, snapshotPath, m.cfg.DBPath); err != nil {
		if hadPrevious {
			if rbErr := copyVerified(ctx, previous, m.cfg.DBPath); rbErr != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", rbErr, err)
			}
			_ = os.Remove(previous)
			return fmt.Errorf("restore failed, rolled back to previous state: %w", err)
		}
		return err
	}
	if hadPrevious {
		_ = os.Remove(previous)
	}
	// Stale WAL files from the replaced database must not be replayed.
	_ = os.Remove(m.cfg.DBPath + "-wal")
	_ = os.Remove(m.cfg.DBPath + "-shm")

	log.Printf("backup: database restored from %s", snapshotPath)
	return nil
}
