package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// QueryRecords returns all relationship records for a user, oldest first.
// Iteration order (id asc) is the deterministic tie-break order used by
// the match resolver.
func (s *SQLiteStore) QueryRecords(ctx context.Context, userID string) ([]*RelationshipRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(real_name, ''), relation_type,
			aliases, emotion_markers, relevant_contexts,
			mention_count, COALESCE(last_mentioned_at, created_at),
			mention_history, COALESCE(compact_profile, ''),
			created_at, updated_at
		FROM relationships
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var records []*RelationshipRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationship rows: %w", err)
	}

	return records, nil
}

// GetRecord returns a single record by id.
func (s *SQLiteStore) GetRecord(ctx context.Context, id int64) (*RelationshipRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(real_name, ''), relation_type,
			aliases, emotion_markers, relevant_contexts,
			mention_count, COALESCE(last_mentioned_at, created_at),
			mention_history, COALESCE(compact_profile, ''),
			created_at, updated_at
		FROM relationships
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying relationship %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating relationship row: %w", err)
		}
		return nil, fmt.Errorf("relationship %d not found", id)
	}
	return scanRecord(rows)
}

// InsertRecord inserts a new relationship record and returns its id.
func (s *SQLiteStore) InsertRecord(ctx context.Context, r *RelationshipRecord) (int64, error) {
	if r.UserID == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	if r.RelationType == "" {
		r.RelationType = "unknown"
	}
	if r.MentionCount < 1 {
		r.MentionCount = 1
	}

	aliases, err := marshalList(r.Aliases)
	if err != nil {
		return 0, fmt.Errorf("encoding aliases: %w", err)
	}
	markers, err := marshalList(r.EmotionMarkers)
	if err != nil {
		return 0, fmt.Errorf("encoding emotion markers: %w", err)
	}
	contexts, err := marshalList(r.RelevantContexts)
	if err != nil {
		return 0, fmt.Errorf("encoding relevant contexts: %w", err)
	}
	history, err := marshalHistory(r.MentionHistory)
	if err != nil {
		return 0, fmt.Errorf("encoding mention history: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships
			(user_id, real_name, relation_type, aliases, emotion_markers,
			 relevant_contexts, mention_count, last_mentioned_at,
			 mention_history, compact_profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.UserID, nullIfEmpty(r.RealName), r.RelationType, aliases, markers,
		contexts, r.MentionCount, r.LastMentionedAt.UTC(), history,
		nullIfEmpty(r.CompactProfile), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting relationship: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// UpdateRecord applies a consolidation update to an existing record.
// Emotion markers, relevant contexts, and the compact profile are left
// untouched; they belong to other write paths.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, id int64, u RecordUpdate) error {
	aliases, err := marshalList(u.Aliases)
	if err != nil {
		return fmt.Errorf("encoding aliases: %w", err)
	}
	history, err := marshalHistory(u.MentionHistory)
	if err != nil {
		return fmt.Errorf("encoding mention history: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE relationships
		SET real_name = ?, relation_type = ?, aliases = ?,
			mention_count = ?, last_mentioned_at = ?, mention_history = ?,
			updated_at = ?
		WHERE id = ?
	`,
		nullIfEmpty(u.RealName), u.RelationType, aliases,
		u.MentionCount, u.LastMentionedAt.UTC(), history,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating relationship %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("relationship %d not found", id)
	}
	return nil
}

// SetCompactProfile stores a regenerated profile summary on a record.
func (s *SQLiteStore) SetCompactProfile(ctx context.Context, id int64, profile string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE relationships
		SET compact_profile = ?, updated_at = ?
		WHERE id = ?
	`, nullIfEmpty(profile), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting compact profile for %d: %w", id, err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*RelationshipRecord, error) {
	var (
		r                                 RelationshipRecord
		aliases, markers, contexts, hist  string
		lastMentioned                     sqlTime
		createdAt, updated                time.Time
	)
	if err := rows.Scan(
		&r.ID, &r.UserID, &r.RealName, &r.RelationType,
		&aliases, &markers, &contexts,
		&r.MentionCount, &lastMentioned,
		&hist, &r.CompactProfile,
		&createdAt, &updated,
	); err != nil {
		return nil, fmt.Errorf("scanning relationship row: %w", err)
	}

	r.LastMentionedAt = time.Time(lastMentioned)
	r.CreatedAt = createdAt
	r.UpdatedAt = updated

	var err error
	if r.Aliases, err = unmarshalList(aliases); err != nil {
		return nil, fmt.Errorf("decoding aliases for %d: %w", r.ID, err)
	}
	if r.EmotionMarkers, err = unmarshalList(markers); err != nil {
		return nil, fmt.Errorf("decoding emotion markers for %d: %w", r.ID, err)
	}
	if r.RelevantContexts, err = unmarshalList(contexts); err != nil {
		return nil, fmt.Errorf("decoding relevant contexts for %d: %w", r.ID, err)
	}
	if r.MentionHistory, err = unmarshalHistory(hist); err != nil {
		return nil, fmt.Errorf("decoding mention history for %d: %w", r.ID, err)
	}

	return &r, nil
}

func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalHistory(entries []MentionEntry) (string, error) {
	if entries == nil {
		entries = []MentionEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalHistory(raw string) ([]MentionEntry, error) {
	if raw == "" {
		return nil, nil
	}
	var out []MentionEntry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// sqlTime scans a DATETIME value that may arrive as a string: the sqlite
// driver only maps declared DATETIME columns to time.Time, so expressions
// like COALESCE(last_mentioned_at, created_at) come back as text.
type sqlTime time.Time

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = sqlTime(v)
		return nil
	case string:
		for _, layout := range []string{
			"2006-01-02 15:04:05.999999999 -0700 MST",
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
		} {
			if parsed, err := time.Parse(layout, v); err == nil {
				*t = sqlTime(parsed)
				return nil
			}
		}
		return fmt.Errorf("cannot parse %q as time", v)
	case nil:
		*t = sqlTime(time.Time{})
		return nil
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
