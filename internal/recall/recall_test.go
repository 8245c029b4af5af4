package recall

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, r *store.RelationshipRecord) {
	t.Helper()
	r.UserID = "user-1"
	if r.LastMentionedAt.IsZero() {
		r.LastMentionedAt = time.Now().UTC()
	}
	if _, err := st.InsertRecord(context.Background(), r); err != nil {
		t.Fatalf("seeding %q: %v", r.RealName, err)
	}
}

func TestSelect_OrderByCountAndRecency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, &store.RelationshipRecord{RealName: "Ana", MentionCount: 5})
	seed(t, st, &store.RelationshipRecord{RealName: "Bia", MentionCount: 1})
	seed(t, st, &store.RelationshipRecord{RealName: "Carla", MentionCount: 9})

	got, err := Select(ctx, st, "user-1", nil, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 || got[0].RealName != "Carla" || got[1].RealName != "Ana" {
		t.Fatalf("got %v, want [Carla Ana]", names(got))
	}
}

func TestSelect_RecencyBreaksCountTies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed(t, st, &store.RelationshipRecord{RealName: "Ana", MentionCount: 3, LastMentionedAt: base})
	seed(t, st, &store.RelationshipRecord{RealName: "Bia", MentionCount: 3, LastMentionedAt: base.Add(time.Hour)})

	got, err := Select(ctx, st, "user-1", nil, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got[0].RealName != "Bia" {
		t.Fatalf("got %v, want Bia first (more recent)", names(got))
	}
}

func TestSelect_MentionedNowFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st, &store.RelationshipRecord{RealName: "Ana", MentionCount: 50})
	seed(t, st, &store.RelationshipRecord{RealName: "Bia", Aliases: []string{"Bi"}, MentionCount: 1})

	// Touched via alias, normalized comparison.
	got, err := Select(ctx, st, "user-1", []string{"BI"}, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got[0].RealName != "Bia" {
		t.Fatalf("got %v, want mentioned-now record first despite low count", names(got))
	}
}

func TestSelect_DefaultLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"Ana", "Bia", "Carla", "Duda", "Eva"} {
		seed(t, st, &store.RelationshipRecord{RealName: n, MentionCount: 1})
	}

	got, err := Select(ctx, st, "user-1", nil, 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != DefaultLimit {
		t.Fatalf("len = %d, want %d", len(got), DefaultLimit)
	}
}

func TestRender(t *testing.T) {
	records := []*store.RelationshipRecord{
		{RealName: "Luciana Braga", RelationType: "esposa", Aliases: []string{"Lu"}, CompactProfile: "Esposa do usuário."},
		{RelationType: "amigo"},
		{RealName: "Pedro", RelationType: "unknown"},
	}

	out := Render(records)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("rendered %d lines, want 4:\n%s", len(lines), out)
	}
	if lines[0] != "- Luciana Braga [esposa] (apelidos: Lu)" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "  Esposa do usuário." {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "- (unnamed) [amigo]" {
		t.Errorf("line 2 = %q", lines[2])
	}
	if lines[3] != "- Pedro" {
		t.Errorf("line 3 = %q (unknown relation omitted)", lines[3])
	}
}

func TestSelectAndRender_Empty(t *testing.T) {
	st := newTestStore(t)
	out, err := SelectAndRender(context.Background(), st, "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
}

func names(records []*store.RelationshipRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.RealName
	}
	return out
}
