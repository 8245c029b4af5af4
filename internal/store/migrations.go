package store

import "fmt"

// migrate creates all tables if they don't exist.
// Schema changes are additive and idempotent: ALTER TABLE steps check for
// column existence first so re-running against an older database is safe.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS relationships (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT NOT NULL,
			real_name         TEXT,
			relation_type     TEXT NOT NULL DEFAULT 'unknown',
			aliases           TEXT NOT NULL DEFAULT '[]',
			emotion_markers   TEXT NOT NULL DEFAULT '[]',
			relevant_contexts TEXT NOT NULL DEFAULT '[]',
			mention_count     INTEGER NOT NULL DEFAULT 1,
			last_mentioned_at DATETIME,
			mention_history   TEXT NOT NULL DEFAULT '[]',
			compact_profile   TEXT,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_relationships_user
			ON relationships(user_id)`,

		`CREATE INDEX IF NOT EXISTS idx_relationships_user_recency
			ON relationships(user_id, mention_count DESC, last_mentioned_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	return nil
}
