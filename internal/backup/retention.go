package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionPolicy is how many snapshots to keep per age bucket. Snapshots
// older than a year are always pruned.
type RetentionPolicy struct {
	Hourly  int // younger than 24h (default: 24)
	Daily   int // 1 to 7 days (default: 7)
	Weekly  int // 7 to 30 days (default: 4)
	Monthly int // 30 to 365 days (default: 12)
}

func (p RetentionPolicy) withDefaults() RetentionPolicy {
	if p.Hourly == 0 {
		p.Hourly = 24
	}
	if p.Daily == 0 {
		p.Daily = 7
	}
	if p.Weekly == 0 {
		p.Weekly = 4
	}
	if p.Monthly == 0 {
		p.Monthly = 12
	}
	return p
}

func list(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var out []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Snapshot{
			Path:    filepath.Join(dir, name),
			TakenAt: takenAt(name, info.ModTime()),
			Size:    info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].TakenAt.After(out[j].TakenAt)
	})
	return out, nil
}

// takenAt reads the timestamp from the file name, falling back to the
// modification time for names it cannot parse.
func takenAt(name string, modTime time.Time) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".db")
	if t, err := time.Parse("20060102-150405.000000", stamp); err == nil {
		return t
	}
	return modTime
}

// prune returns the paths policy drops from snapshots, which must be sorted
// newest first.
func prune(snapshots []Snapshot, policy RetentionPolicy, now time.Time) []string {
	var drop []string
	kept := map[string]int{}
	for _, s := range snapshots {
		bucket, limit := "", 0
		switch age := now.Sub(s.TakenAt); {
		case age < 24*time.Hour:
			bucket, limit = "hourly", policy.Hourly
		case age < 7*24*time.Hour:
			bucket, limit = "daily", policy.Daily
		case age < 30*24*time.Hour:
			bucket, limit = "weekly", policy.Weekly
		case age < 365*24*time.Hour:
			bucket, limit = "monthly", policy.Monthly
		default:
			drop = append(drop, s.Path)
			continue
		}
		if kept[bucket] >= limit {
			drop = append(drop, s.Path)
			continue
		}
		kept[bucket]++
	}
	return drop
}
