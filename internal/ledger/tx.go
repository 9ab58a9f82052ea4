package ledger

import (
	"database/sql"
	"fmt"
)

// BeginTx opens a durable transaction for the Transfer Engine's COMMITTING
// step: two transaction inserts, two wallet updates, and one state
// transition must land together, or not at all. The store's single
// SQLite connection (see New) already serializes concurrent writers, so
// no additional locking is needed here; callers should commit or
// rollback exactly once, following the standard
// "defer rollback unless committed" idiom.
func (s *Store) BeginTx() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin durable transaction: %w", err)
	}
	return tx, nil
}
