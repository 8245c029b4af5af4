// Package resolve links an extracted person mention to an existing
// relationship record, or decides a new person is being introduced.
// Candidates are scored on name and alias evidence; a category conflict
// (e.g. spouse vs sibling) blocks weak matches unless strong evidence
// overrides it.
package resolve

import (
	"strings"

	"github.com/JonDuardo/mentor360-back/internal/extract"
	"github.com/JonDuardo/mentor360-back/internal/kinship"
	"github.com/JonDuardo/mentor360-back/internal/norm"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

// Weights holds the scoring parameters. The defaults were tuned
// empirically; changing them is a policy decision that should be
// re-validated against the resolver test scenarios, not a bug fix.
type Weights struct {
	ExactName   int     // real_name equals candidate real_name
	FullAlias   int     // multi-word mention alias equals a candidate alias
	SingleAlias int     // single-token alias overlap, conflict-gated
	Jaccard     int     // token-set name similarity fallback
	JaccardMin  float64 // minimum Jaccard similarity to count
	Accept      int     // minimum total score to accept a match
}

// DefaultWeights returns the calibrated scoring parameters: any one
// strong signal (exact name, full alias, or a high name-token overlap)
// clears the accept threshold alone; a bare nickname collision never
// does. JaccardMin sits just under 2/3 so that dropping or adding one
// middle name ("Maria Silva Souza" vs "Maria Souza") still matches.
func DefaultWeights() Weights {
	return Weights{
		ExactName:   6,
		FullAlias:   5,
		SingleAlias: 2,
		Jaccard:     5,
		JaccardMin:  0.65,
		Accept:      5,
	}
}

type Resolver struct {
	weights Weights
}

func New(weights Weights) *Resolver {
	return &Resolver{weights: weights}
}

func NewDefault() *Resolver {
	return New(DefaultWeights())
}

// Resolve scores the mention against every candidate and returns the best
// match, or nil when no candidate clears the accept threshold (a new
// person). Ties go to the earlier candidate, so callers should pass
// candidates in a stable order (the store returns them by insertion).
func (r *Resolver) Resolve(mention extract.PersonMention, candidates []*store.RelationshipRecord) *store.RelationshipRecord {
	bestScore := 0
	var best *store.RelationshipRecord

	for _, cand := range candidates {
		score, ok := r.score(mention, cand)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}

	if best == nil || bestScore < r.weights.Accept {
		return nil
	}
	return best
}

// score computes the match score for one candidate. The second return is
// false when the candidate is skipped outright: its relationship category
// conflicts with the mention's and no strong evidence overrides it.
func (r *Resolver) score(mention extract.PersonMention, cand *store.RelationshipRecord) (int, bool) {
	conflict := kinship.ConflictTypes(cand.RelationType, mention.RelationType)
	score := 0
	strong := false

	if mention.RealName != "" && cand.RealName != "" && norm.Equal(mention.RealName, cand.RealName) {
		score += r.weights.ExactName
		strong = true
	}

	for _, alias := range mention.Aliases {
		multiWord := strings.Contains(strings.TrimSpace(alias), " ")
		for _, candAlias := range cand.Aliases {
			if !norm.Equal(alias, candAlias) {
				continue
			}
			if multiWord {
				score += r.weights.FullAlias
				strong = true
			} else if !conflict {
				score += r.weights.SingleAlias
			}
			break
		}
	}

	if score == 0 && mention.RealName != "" && cand.RealName != "" {
		if tokenJaccard(mention.RealName, cand.RealName) >= r.weights.JaccardMin {
			score += r.weights.Jaccard
		}
	}

	if conflict && !strong {
		return 0, false
	}
	return score, true
}

// tokenJaccard measures similarity between two names as the Jaccard index
// of their normalized token sets.
func tokenJaccard(a, b string) float64 {
	setA := norm.TokenSet(a)
	setB := norm.TokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
