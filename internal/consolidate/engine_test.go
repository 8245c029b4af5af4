package consolidate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/llm"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

// scriptedProvider serves canned extraction JSON and profile text.
// Extraction calls request JSON format; profile calls do not.
type scriptedProvider struct {
	mentionJSON  string
	mentionErr   error
	profileText  string
	profileErr   error
	mentionCalls int
	profileCalls int
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	if opts.Format == "json" {
		p.mentionCalls++
		if p.mentionErr != nil {
			return "", p.mentionErr
		}
		return p.mentionJSON, nil
	}
	p.profileCalls++
	if p.profileErr != nil {
		return "", p.profileErr
	}
	if p.profileText == "" {
		return "Resumo de teste.", nil
	}
	return p.profileText, nil
}

func (p *scriptedProvider) Name() string { return "mock/test" }

func newTestEngine(t *testing.T, provider llm.Provider) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	eng := NewEngine(st, provider, Opts{
		Reporter: func(format string, args ...any) { t.Logf("warning: "+format, args...) },
	})
	return eng, st
}

func TestProcessMentions_NewPerson(t *testing.T) {
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Luciana Braga", "aliases": ["Lu"], "relation_type": "esposa", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	touched, err := eng.ProcessMentions(ctx, "user-1", "almocei com a Lu hoje", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(touched) != 2 {
		t.Errorf("touched = %v, want name and alias", touched)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.RealName != "Luciana Braga" || r.RelationType != "esposa" {
		t.Errorf("record = %+v", r)
	}
	if r.MentionCount != 1 || len(r.MentionHistory) != 1 {
		t.Errorf("count = %d, history = %d, want 1 and 1", r.MentionCount, len(r.MentionHistory))
	}
	if r.CompactProfile == "" {
		t.Error("expected compact profile to be set")
	}
	if provider.profileCalls != 1 {
		t.Errorf("profile calls = %d, want 1", provider.profileCalls)
	}
}

func TestProcessMentions_IdempotentRemention(t *testing.T) {
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Luciana Braga", "aliases": [], "relation_type": "esposa", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := eng.ProcessMentions(ctx, "user-1", fmt.Sprintf("mensagem %d sobre a Luciana Braga", i), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	if records[0].MentionCount != 2 {
		t.Errorf("mention count = %d, want 2", records[0].MentionCount)
	}
	if len(records[0].MentionHistory) != 2 {
		t.Errorf("history entries = %d, want 2", len(records[0].MentionHistory))
	}
}

func TestProcessMentions_ConflictGuard(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "", "aliases": ["Lu"], "relation_type": "irma", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)

	if _, err := st.InsertRecord(ctx, &store.RelationshipRecord{
		UserID:          "user-1",
		RealName:        "Luciana Braga",
		RelationType:    "esposa",
		Aliases:         []string{"Lu"},
		MentionCount:    1,
		LastMentionedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	if _, err := eng.ProcessMentions(ctx, "user-1", "minha irmã Lu ligou", time.Now().UTC()); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (no merge across conflicting groups), got %d", len(records))
	}
}

func TestProcessMentions_HistoryBound(t *testing.T) {
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Luciana Braga", "aliases": [], "relation_type": "esposa", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		if _, err := eng.ProcessMentions(ctx, "user-1", fmt.Sprintf("mensagem %02d sobre a Luciana Braga", i), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	history := records[0].MentionHistory
	if len(history) != store.HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(history), store.HistoryLimit)
	}
	// Most recent 12 in chronological order: messages 03..14.
	for i, entry := range history {
		want := fmt.Sprintf("mensagem %02d sobre a Luciana Braga", i+3)
		if entry.Excerpt != want {
			t.Errorf("history[%d] = %q, want %q", i, entry.Excerpt, want)
		}
	}
	if records[0].MentionCount != 15 {
		t.Errorf("mention count = %d, want 15", records[0].MentionCount)
	}
}

func TestProcessMentions_KinshipRelativization(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Dona Marta", "aliases": [], "relation_type": "mãe", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)

	if _, err := st.InsertRecord(ctx, &store.RelationshipRecord{
		UserID:          "user-1",
		RealName:        "Ana Paula",
		RelationType:    "esposa",
		Aliases:         []string{"Ana"},
		MentionCount:    1,
		LastMentionedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seeding spouse: %v", err)
	}

	if _, err := eng.ProcessMentions(ctx, "user-1", "hoje visitei a mãe da Ana", time.Now().UTC()); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	marta := records[1]
	if marta.RealName != "Dona Marta" {
		t.Fatalf("unexpected second record: %+v", marta)
	}
	if marta.RelationType != "sogra" {
		t.Errorf("relation type = %q, want sogra", marta.RelationType)
	}
}

func TestProcessMentions_SameMessageSelfCollision(t *testing.T) {
	// Two mentions of the same new person in one message must consolidate
	// into a single record via the batch working set.
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [
			{"real_name": "Pedro Lima", "aliases": [], "relation_type": "amigo", "note": ""},
			{"real_name": "Pedro Lima", "aliases": ["Pedrão"], "relation_type": "amigo", "note": ""}
		]}`,
	}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()

	if _, err := eng.ProcessMentions(ctx, "user-1", "saí com o Pedro Lima, o Pedrão", time.Now().UTC()); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].MentionCount != 2 {
		t.Errorf("mention count = %d, want 2", records[0].MentionCount)
	}
	if len(records[0].Aliases) != 1 || records[0].Aliases[0] != "Pedrão" {
		t.Errorf("aliases = %v, want [Pedrão]", records[0].Aliases)
	}
}

func TestProcessMentions_ExtractionFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{mentionErr: fmt.Errorf("model unavailable")}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()

	touched, err := eng.ProcessMentions(ctx, "user-1", "almocei com a Lu", time.Now().UTC())
	if err != nil {
		t.Fatalf("extraction failure must degrade, got error: %v", err)
	}
	if touched != nil {
		t.Errorf("touched = %v, want nil", touched)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestProcessMentions_ProfileFailureDoesNotAbort(t *testing.T) {
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Ana", "aliases": [], "relation_type": "amiga", "note": ""}]}`,
		profileErr:  fmt.Errorf("rate limited"),
	}
	eng, st := newTestEngine(t, provider)
	ctx := context.Background()

	if _, err := eng.ProcessMentions(ctx, "user-1", "a Ana passou aqui", time.Now().UTC()); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CompactProfile != "" {
		t.Errorf("profile = %q, want empty after summarization failure", records[0].CompactProfile)
	}
}

func TestProcessMentions_NameUpgrade(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		mentionJSON: `{"mentions": [{"real_name": "Luciana Braga Souza", "aliases": [], "relation_type": "", "note": ""}]}`,
	}
	eng, st := newTestEngine(t, provider)

	if _, err := st.InsertRecord(ctx, &store.RelationshipRecord{
		UserID:          "user-1",
		RealName:        "Luciana Braga",
		RelationType:    "esposa",
		MentionCount:    1,
		LastMentionedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	if _, err := eng.ProcessMentions(ctx, "user-1", "falei com a Luciana Braga Souza", time.Now().UTC()); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := st.QueryRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("querying records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record (Jaccard merge), got %d", len(records))
	}
	if records[0].RealName != "Luciana Braga Souza" {
		t.Errorf("real name = %q, want the longer name", records[0].RealName)
	}
	if records[0].RelationType != "esposa" {
		t.Errorf("relation type = %q, want esposa kept (unknown observation)", records[0].RelationType)
	}
}

func TestProcessMentions_EmptyUser(t *testing.T) {
	eng, _ := newTestEngine(t, &scriptedProvider{mentionJSON: `{"mentions": []}`})
	if _, err := eng.ProcessMentions(context.Background(), "", "oi", time.Now().UTC()); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestMergeHelpers(t *testing.T) {
	if got := preferName("Luciana Braga", "Lu"); got != "Luciana Braga" {
		t.Errorf("preferName kept %q", got)
	}
	if got := preferName("", "Lu"); got != "Lu" {
		t.Errorf("preferName = %q, want Lu", got)
	}
	if got := preferName("Ana", "Bia"); got != "Ana" {
		t.Errorf("preferName tie = %q, want existing", got)
	}
	if got := preferRelation("esposa", "unknown"); got != "esposa" {
		t.Errorf("preferRelation = %q, want esposa", got)
	}
	if got := preferRelation("mae", "sogra"); got != "sogra" {
		t.Errorf("preferRelation = %q, want sogra", got)
	}
}
