// Package store provides the SQLite storage layer for mentor360's
// relationship memory.
//
// All durable relationship records live in a single SQLite database file:
// one row per resolved person per user, with aliases, mention bookkeeping,
// and a bounded mention history kept as JSON columns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.mentor360/memory.db"

// HistoryLimit bounds mention_history to the most recent entries (FIFO).
const HistoryLimit = 12

// ExcerptLimit caps the stored excerpt length per history entry.
const ExcerptLimit = 240

// MentionEntry is one entry in a record's bounded mention history.
type MentionEntry struct {
	At      time.Time `json:"at"`
	Excerpt string    `json:"excerpt"`
}

// RelationshipRecord is the durable representation of one person as known
// to one user. It is created on first unmatched mention and mutated in
// place on every subsequent matched mention; this subsystem never deletes.
type RelationshipRecord struct {
	ID               int64
	UserID           string
	RealName         string
	RelationType     string
	Aliases          []string
	EmotionMarkers   []string
	RelevantContexts []string
	MentionCount     int
	LastMentionedAt  time.Time
	MentionHistory   []MentionEntry
	CompactProfile   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RecordUpdate holds the mutable fields written back on a merge.
// Emotion markers and relevant contexts are owned by other write paths
// and are not part of the consolidation update.
type RecordUpdate struct {
	RealName        string
	RelationType    string
	Aliases         []string
	MentionCount    int
	LastMentionedAt time.Time
	MentionHistory  []MentionEntry
}

// StoreStats holds observability counts about the store.
type StoreStats struct {
	UserCount   int64
	RecordCount int64
	DBSizeBytes int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the storage contract the consolidation engine depends on.
// All querying/mutating calls may fail transiently; callers report and
// skip, they never abort a message turn on a store error.
type Store interface {
	QueryRecords(ctx context.Context, userID string) ([]*RelationshipRecord, error)
	InsertRecord(ctx context.Context, r *RelationshipRecord) (int64, error)
	UpdateRecord(ctx context.Context, id int64, u RecordUpdate) error
	SetCompactProfile(ctx context.Context, id int64, profile string) error

	Stats(ctx context.Context) (*StoreStats, error)
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns observability counts for the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT user_id), COUNT(*) FROM relationships")
	if err := row.Scan(&stats.UserCount, &stats.RecordCount); err != nil {
		return nil, fmt.Errorf("counting relationships: %w", err)
	}

	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}

	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
