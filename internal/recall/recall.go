// Package recall selects and renders the relationship context surfaced to
// the conversation: the people mentioned this turn first, then the most
// frequently and recently mentioned others, bounded to a small limit.
package recall

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JonDuardo/mentor360-back/internal/norm"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

// DefaultLimit bounds how many records are surfaced per turn.
const DefaultLimit = 3

// Select returns up to limit records for the user, mentioned-now records
// first (normalized name or alias intersects touched), then the rest by
// mention count and recency. A limit <= 0 falls back to DefaultLimit.
func Select(ctx context.Context, st store.Store, userID string, touched []string, limit int) ([]*store.RelationshipRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	records, err := st.QueryRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading relationship records: %w", err)
	}

	touchedSet := make(map[string]struct{}, len(touched))
	for _, t := range touched {
		if key := norm.Normalize(t); key != "" {
			touchedSet[key] = struct{}{}
		}
	}

	var mentioned, others []*store.RelationshipRecord
	for _, r := range records {
		if isMentioned(r, touchedSet) {
			mentioned = append(mentioned, r)
		} else {
			others = append(others, r)
		}
	}

	sort.SliceStable(others, func(i, j int) bool {
		if others[i].MentionCount != others[j].MentionCount {
			return others[i].MentionCount > others[j].MentionCount
		}
		return others[i].LastMentionedAt.After(others[j].LastMentionedAt)
	})

	out := append(mentioned, others...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func isMentioned(r *store.RelationshipRecord, touched map[string]struct{}) bool {
	if len(touched) == 0 {
		return false
	}
	if key := norm.Normalize(r.RealName); key != "" {
		if _, ok := touched[key]; ok {
			return true
		}
	}
	for _, alias := range r.Aliases {
		if key := norm.Normalize(alias); key != "" {
			if _, ok := touched[key]; ok {
				return true
			}
		}
	}
	return false
}

// Render emits one line per record, ready to embed in a prompt:
// name (or "(unnamed)"), bracketed relation type, alias list when present,
// and the compact profile on a follow-up line.
func Render(records []*store.RelationshipRecord) string {
	var sb strings.Builder
	for _, r := range records {
		name := r.RealName
		if name == "" {
			name = "(unnamed)"
		}
		sb.WriteString("- ")
		sb.WriteString(name)
		if r.RelationType != "" && r.RelationType != "unknown" {
			fmt.Fprintf(&sb, " [%s]", r.RelationType)
		}
		if len(r.Aliases) > 0 {
			fmt.Fprintf(&sb, " (apelidos: %s)", strings.Join(r.Aliases, ", "))
		}
		sb.WriteString("\n")
		if r.CompactProfile != "" {
			fmt.Fprintf(&sb, "  %s\n", r.CompactProfile)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SelectAndRender is the one-call surface used by the conversation layer:
// it returns a ready-to-embed context block, empty when the user has no
// records.
func SelectAndRender(ctx context.Context, st store.Store, userID string, touched []string) (string, error) {
	records, err := Select(ctx, st, userID, touched, DefaultLimit)
	if err != nil {
		return "", err
	}
	return Render(records), nil
}
