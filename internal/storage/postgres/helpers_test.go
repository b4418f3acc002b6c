package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the entity and message tables.
// It lives in the internal test file so it can reach the unexported db
// field while staying out of the production build.
func (s *EntityStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE attention_events, messages, entities RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
