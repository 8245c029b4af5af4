package resolve

import (
	"testing"

	"github.com/JonDuardo/mentor360-back/internal/extract"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

func TestResolve_ExactName(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Luciana Braga", RelationType: "esposa"},
	}
	mention := extract.PersonMention{RealName: "luciana braga", RelationType: "esposa"}

	got := r.Resolve(mention, candidates)
	if got == nil || got.ID != 1 {
		t.Fatalf("Resolve = %+v, want record 1", got)
	}
}

func TestResolve_FullAliasMerge(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Luciana Braga", RelationType: "esposa", Aliases: []string{"Lu", "Lu Braga"}},
	}
	// Mentioned only by the multi-word alias, no real name.
	mention := extract.PersonMention{Aliases: []string{"Lu Braga"}, RelationType: "unknown"}

	got := r.Resolve(mention, candidates)
	if got == nil || got.ID != 1 {
		t.Fatalf("Resolve = %+v, want record 1 via full alias", got)
	}
}

func TestResolve_SingleAliasBelowThreshold(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Luciana Braga", RelationType: "amiga", Aliases: []string{"Lu"}},
	}
	// One single-token alias overlap scores 2, below the accept threshold.
	mention := extract.PersonMention{Aliases: []string{"Lu"}, RelationType: "amiga"}

	if got := r.Resolve(mention, candidates); got != nil {
		t.Fatalf("Resolve = %+v, want nil (weak nickname alone must not merge)", got)
	}
}

func TestResolve_ConflictGuard(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Luciana Braga", RelationType: "esposa", Aliases: []string{"Lu"}},
	}
	// Sister mention sharing only the weak nickname: conflict, no strong
	// evidence, candidate skipped entirely.
	mention := extract.PersonMention{RealName: "Luana", RelationType: "irma", Aliases: []string{"Lu"}}

	if got := r.Resolve(mention, candidates); got != nil {
		t.Fatalf("Resolve = %+v, want nil (group conflict without strong evidence)", got)
	}
}

func TestResolve_ConflictOverriddenByExactName(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Luciana Braga", RelationType: "esposa"},
	}
	mention := extract.PersonMention{RealName: "Luciana Braga", RelationType: "irma"}

	got := r.Resolve(mention, candidates)
	if got == nil || got.ID != 1 {
		t.Fatalf("Resolve = %+v, want record 1 (exact name overrides conflict)", got)
	}
}

func TestResolve_JaccardFallback(t *testing.T) {
	r := NewDefault()
	// {maria, silva, souza} vs {maria, souza}: Jaccard 2/3, merges with no
	// alias overlap at all.
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Maria Souza", RelationType: "amiga"},
	}
	mention := extract.PersonMention{RealName: "Maria Silva Souza", RelationType: "amiga"}

	got := r.Resolve(mention, candidates)
	if got == nil || got.ID != 1 {
		t.Fatalf("Resolve = %+v, want record 1 via Jaccard fallback", got)
	}

	// {maria, souza} vs {ana, souza}: Jaccard 1/3, stays separate.
	candidates = []*store.RelationshipRecord{
		{ID: 2, RealName: "Ana Souza", RelationType: "amiga"},
	}
	mention = extract.PersonMention{RealName: "Maria Souza", RelationType: "amiga"}
	if got := r.Resolve(mention, candidates); got != nil {
		t.Fatalf("Resolve = %+v, want nil (Jaccard 1/3 too low)", got)
	}
}

func TestResolve_JaccardOnlyWithoutOtherScore(t *testing.T) {
	r := NewDefault()
	// Once an alias has scored, the Jaccard fallback must not fire on top.
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "Maria Souza", RelationType: "amiga", Aliases: []string{"Ma"}},
	}
	mention := extract.PersonMention{RealName: "Maria Silva Souza", RelationType: "amiga", Aliases: []string{"Ma"}}

	// Single alias scores 2 and suppresses the fallback: total stays
	// below the accept threshold.
	if got := r.Resolve(mention, candidates); got != nil {
		t.Fatalf("Resolve = %+v, want nil", got)
	}
}

func TestResolve_FirstSeenTieBreak(t *testing.T) {
	r := NewDefault()
	candidates := []*store.RelationshipRecord{
		{ID: 1, RealName: "João Pedro", RelationType: "amigo"},
		{ID: 2, RealName: "João Pedro", RelationType: "amigo"},
	}
	mention := extract.PersonMention{RealName: "João Pedro", RelationType: "amigo"}

	got := r.Resolve(mention, candidates)
	if got == nil || got.ID != 1 {
		t.Fatalf("Resolve = %+v, want earliest candidate on tie", got)
	}
}

func TestResolve_NoCandidates(t *testing.T) {
	r := NewDefault()
	mention := extract.PersonMention{RealName: "Maria"}
	if got := r.Resolve(mention, nil); got != nil {
		t.Fatalf("Resolve = %+v, want nil", got)
	}
}

func TestTokenJaccard(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Maria Souza", "Maria Souza", 1.0},
		{"Maria Silva Souza", "Maria Souza", 2.0 / 3.0},
		{"Ana", "Beatriz", 0},
		{"", "Maria", 0},
	}
	for _, c := range cases {
		if got := tokenJaccard(c.a, c.b); got != c.want {
			t.Errorf("tokenJaccard(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
