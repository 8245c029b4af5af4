// Package consolidate runs the per-message memory pipeline: extract person
// mentions from a raw message, relativize kinship against known spouses,
// resolve each mention to an existing relationship record or create a new
// one, and regenerate compact profiles for every record touched.
//
// The pipeline is partial-failure tolerant. Extraction, store, and
// summarization errors are reported through the Reporter hook and the
// affected step is skipped; a message turn is never aborted because memory
// consolidation had a problem.
package consolidate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/extract"
	"github.com/JonDuardo/mentor360-back/internal/kinship"
	"github.com/JonDuardo/mentor360-back/internal/llm"
	"github.com/JonDuardo/mentor360-back/internal/norm"
	"github.com/JonDuardo/mentor360-back/internal/resolve"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

// Reporter receives non-fatal warnings from the pipeline.
type Reporter func(format string, args ...any)

func stderrReporter(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// Opts configures an Engine. Zero values fall back to defaults.
type Opts struct {
	// Weights overrides the resolver scoring parameters.
	Weights resolve.Weights
	// ProfileProvider handles profile summarization; defaults to the
	// extraction provider.
	ProfileProvider llm.Provider
	// Reporter receives warnings; defaults to stderr.
	Reporter Reporter
}

// DefaultOpts returns the default engine options.
func DefaultOpts() Opts {
	return Opts{Weights: resolve.DefaultWeights()}
}

// Engine is the per-message consolidation pipeline. Safe for concurrent
// use; messages for the same user are serialized.
type Engine struct {
	store     store.Store
	extractor llm.Provider
	profiler  llm.Provider
	resolver  *resolve.Resolver
	report    Reporter

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewEngine creates an Engine backed by st, using provider for mention
// extraction (and profile summarization unless opts overrides it).
func NewEngine(st store.Store, provider llm.Provider, opts Opts) *Engine {
	if opts.Weights == (resolve.Weights{}) {
		opts.Weights = resolve.DefaultWeights()
	}
	if opts.ProfileProvider == nil {
		opts.ProfileProvider = provider
	}
	if opts.Reporter == nil {
		opts.Reporter = stderrReporter
	}
	return &Engine{
		store:     st,
		extractor: provider,
		profiler:  opts.ProfileProvider,
		resolver:  resolve.New(opts.Weights),
		report:    opts.Reporter,
		userLocks: map[string]*sync.Mutex{},
	}
}

// userLock returns the mutex serializing consolidation for one user.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}

// ProcessMentions runs the full pipeline for one message and returns the
// names and aliases of every person touched this turn, deduplicated. The
// returned slice feeds the context selector ("mentioned now").
//
// The user's records are loaded once into a working set; inserts and
// merges are applied to that set as they succeed, so two mentions of the
// same new person within one message consolidate into one record instead
// of colliding.
func (e *Engine) ProcessMentions(ctx context.Context, userID, text string, now time.Time) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	mentions, err := extract.Mentions(ctx, e.extractor, text)
	if err != nil {
		// Extraction failure degrades to "no mentions this turn".
		e.report("mention extraction failed: %v", err)
		return nil, nil
	}
	if len(mentions) == 0 {
		return nil, nil
	}

	working, err := e.store.QueryRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading relationship records: %w", err)
	}

	mentions = kinship.Relativize(text, mentions, kinship.Spouses(working))

	excerpt := excerptOf(text)
	var touched []string
	dirty := map[int64]*store.RelationshipRecord{}

	for _, m := range mentions {
		match := e.resolver.Resolve(m, working)
		if match == nil {
			rec := newRecord(userID, m, now, excerpt)
			id, err := e.store.InsertRecord(ctx, rec)
			if err != nil {
				e.report("inserting record for %q: %v", displayName(m), err)
				continue
			}
			rec.ID = id
			working = append(working, rec)
			dirty[id] = rec
		} else {
			upd := mergeUpdate(match, m, now, excerpt)
			if err := e.store.UpdateRecord(ctx, match.ID, upd); err != nil {
				e.report("updating record %d: %v", match.ID, err)
				continue
			}
			applyUpdate(match, upd)
			dirty[match.ID] = match
		}

		if m.RealName != "" {
			touched = append(touched, m.RealName)
		}
		touched = append(touched, m.Aliases...)
	}

	e.refreshProfiles(ctx, dirty)

	return norm.DedupKeepFirst(touched), nil
}

// refreshProfiles regenerates the compact profile of every record touched
// this turn. Best-effort: a summarization or store failure leaves the
// stored profile unchanged.
func (e *Engine) refreshProfiles(ctx context.Context, dirty map[int64]*store.RelationshipRecord) {
	for id, rec := range dirty {
		profile, err := extract.CompactProfile(ctx, e.profiler, extract.ProfileInput{
			RealName:         rec.RealName,
			RelationType:     rec.RelationType,
			Aliases:          rec.Aliases,
			EmotionMarkers:   rec.EmotionMarkers,
			RelevantContexts: rec.RelevantContexts,
		})
		if err != nil {
			e.report("compacting profile for record %d: %v", id, err)
			continue
		}
		if err := e.store.SetCompactProfile(ctx, id, profile); err != nil {
			e.report("storing profile for record %d: %v", id, err)
			continue
		}
		rec.CompactProfile = profile
	}
}

// newRecord builds the initial record for an unmatched mention.
func newRecord(userID string, m extract.PersonMention, now time.Time, excerpt string) *store.RelationshipRecord {
	relType := m.RelationType
	if relType == "" {
		relType = "unknown"
	}
	return &store.RelationshipRecord{
		UserID:          userID,
		RealName:        m.RealName,
		RelationType:    relType,
		Aliases:         norm.DedupKeepFirst(m.Aliases),
		MentionCount:    1,
		LastMentionedAt: now,
		MentionHistory:  []store.MentionEntry{{At: now, Excerpt: excerpt}},
	}
}

// mergeUpdate computes the merged state of an existing record after a new
// mention of the same person.
func mergeUpdate(existing *store.RelationshipRecord, m extract.PersonMention, now time.Time, excerpt string) store.RecordUpdate {
	aliases := make([]string, 0, len(existing.Aliases)+len(m.Aliases))
	aliases = append(aliases, existing.Aliases...)
	aliases = append(aliases, m.Aliases...)

	return store.RecordUpdate{
		RealName:        preferName(existing.RealName, m.RealName),
		RelationType:    preferRelation(existing.RelationType, m.RelationType),
		Aliases:         norm.DedupKeepFirst(aliases),
		MentionCount:    existing.MentionCount + 1,
		LastMentionedAt: now,
		MentionHistory:  appendHistory(existing.MentionHistory, store.MentionEntry{At: now, Excerpt: excerpt}),
	}
}

// preferName keeps the more complete of the two names: a non-empty name
// beats an empty one, a strictly longer name beats a shorter one, and ties
// keep the existing value.
func preferName(existing, observed string) string {
	if existing == "" {
		return observed
	}
	if observed == "" {
		return existing
	}
	if len([]rune(observed)) > len([]rune(existing)) {
		return observed
	}
	return existing
}

// preferRelation takes the newly observed type when present, so later
// corrections (e.g. a relativized "sogra") win over an earlier guess.
// An empty or "unknown" observation counts as absent.
func preferRelation(existing, observed string) string {
	key := norm.Normalize(observed)
	if key == "" || key == "unknown" {
		return existing
	}
	return observed
}

// appendHistory appends an entry and evicts the oldest beyond the cap.
func appendHistory(history []store.MentionEntry, entry store.MentionEntry) []store.MentionEntry {
	history = append(history, entry)
	if len(history) > store.HistoryLimit {
		history = history[len(history)-store.HistoryLimit:]
	}
	return history
}

// applyUpdate writes the merged fields back onto the working-set record so
// later mentions in the same message resolve against current state.
func applyUpdate(rec *store.RelationshipRecord, u store.RecordUpdate) {
	rec.RealName = u.RealName
	rec.RelationType = u.RelationType
	rec.Aliases = u.Aliases
	rec.MentionCount = u.MentionCount
	rec.LastMentionedAt = u.LastMentionedAt
	rec.MentionHistory = u.MentionHistory
	rec.UpdatedAt = u.LastMentionedAt
}

// excerptOf trims the message down to the stored history excerpt size.
func excerptOf(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= store.ExcerptLimit {
		return text
	}
	return string(runes[:store.ExcerptLimit])
}

func displayName(m extract.PersonMention) string {
	if m.RealName != "" {
		return m.RealName
	}
	if len(m.Aliases) > 0 {
		return m.Aliases[0]
	}
	return "(unnamed)"
}
