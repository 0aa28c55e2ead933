package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the records table.
func (s *VectorStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE memory_records")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memory_records: %w", err)
	}
	return nil
}
