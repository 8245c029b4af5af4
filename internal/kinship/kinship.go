// Package kinship classifies relationship labels into coarse family groups
// and corrects parent mentions into in-law mentions when the message ties
// them to the user's spouse ("mãe da Ana" where Ana is the user's wife).
package kinship

import (
	"regexp"
	"strings"

	"github.com/JonDuardo/mentor360-back/internal/extract"
	"github.com/JonDuardo/mentor360-back/internal/norm"
	"github.com/JonDuardo/mentor360-back/internal/store"
)

// Group is a coarse relationship category used for conflict checks.
type Group int

const (
	GroupOther Group = iota
	GroupConjugal
	GroupSibling
	GroupParental
	GroupChildren
)

func (g Group) String() string {
	switch g {
	case GroupConjugal:
		return "conjugal"
	case GroupSibling:
		return "sibling"
	case GroupParental:
		return "parental"
	case GroupChildren:
		return "children"
	default:
		return "other"
	}
}

// Lexicons are keyed by normalized labels (lower-case, diacritics stripped),
// covering the Portuguese vocabulary the extractor emits plus English
// equivalents.
var groupLexicon = map[string]Group{
	// conjugal
	"esposa":      GroupConjugal,
	"esposo":      GroupConjugal,
	"marido":      GroupConjugal,
	"mulher":      GroupConjugal,
	"companheira": GroupConjugal,
	"companheiro": GroupConjugal,
	"namorada":    GroupConjugal,
	"namorado":    GroupConjugal,
	"noiva":       GroupConjugal,
	"noivo":       GroupConjugal,
	"conjuge":     GroupConjugal,
	"parceira":    GroupConjugal,
	"parceiro":    GroupConjugal,
	"wife":        GroupConjugal,
	"husband":     GroupConjugal,
	"spouse":      GroupConjugal,
	"partner":     GroupConjugal,
	"girlfriend":  GroupConjugal,
	"boyfriend":   GroupConjugal,

	// sibling
	"irma":    GroupSibling,
	"irmao":   GroupSibling,
	"sister":  GroupSibling,
	"brother": GroupSibling,
	"sibling": GroupSibling,

	// parental (includes in-laws and step-parents)
	"mae":           GroupParental,
	"pai":           GroupParental,
	"sogra":         GroupParental,
	"sogro":         GroupParental,
	"madrasta":      GroupParental,
	"padrasto":      GroupParental,
	"mother":        GroupParental,
	"father":        GroupParental,
	"mom":           GroupParental,
	"dad":           GroupParental,
	"mother-in-law": GroupParental,
	"father-in-law": GroupParental,
	"stepmother":    GroupParental,
	"stepfather":    GroupParental,

	// children
	"filha":        GroupChildren,
	"filho":        GroupChildren,
	"enteada":      GroupChildren,
	"enteado":      GroupChildren,
	"daughter":     GroupChildren,
	"son":          GroupChildren,
	"stepdaughter": GroupChildren,
	"stepson":      GroupChildren,
}

// GroupOf maps a free-text relationship label to its group. Unknown or
// empty labels map to GroupOther.
func GroupOf(relationType string) Group {
	key := norm.Normalize(relationType)
	if g, ok := groupLexicon[key]; ok {
		return g
	}
	return GroupOther
}

// Conflict reports whether two groups are mutually exclusive for the same
// person. Only conjugal vs sibling and conjugal vs parental conflict: a
// person cannot be both your spouse and your sibling, or both your spouse
// and your parent. GroupOther never conflicts with anything.
func Conflict(a, b Group) bool {
	if a == b {
		return false
	}
	if a == GroupConjugal {
		return b == GroupSibling || b == GroupParental
	}
	if b == GroupConjugal {
		return a == GroupSibling || a == GroupParental
	}
	return false
}

// ConflictTypes is Conflict applied to raw relationship labels.
func ConflictTypes(typeA, typeB string) bool {
	return Conflict(GroupOf(typeA), GroupOf(typeB))
}

// Spouses filters a user's records down to those with a conjugal
// relationship type.
func Spouses(records []*store.RelationshipRecord) []*store.RelationshipRecord {
	var out []*store.RelationshipRecord
	for _, r := range records {
		if GroupOf(r.RelationType) == GroupConjugal {
			out = append(out, r)
		}
	}
	return out
}

// parentOfPattern matches "mãe da Ana", "pai do João", "mother of Ana" with
// a bounded name capture of one or two word tokens. Best-effort: multi-clause
// or punctuation-heavy sentences may slip past it, which is acceptable.
var parentOfPattern = regexp.MustCompile(`(?i)\b(m[ãa]e|mother|pai|father)\s+(?:d[aeo]|of)\s+(\p{L}+(?:\s+\p{L}+)?)`)

// Relativize corrects plain parent mentions into in-law mentions when the
// raw text contains "mãe/pai de <name>" and <name> matches one of the
// user's spouse records by whole-token name or alias. Without spouse
// records it is a passthrough. The remap only ever narrows parent → in-law,
// never the reverse.
func Relativize(rawText string, mentions []extract.PersonMention, spouses []*store.RelationshipRecord) []extract.PersonMention {
	if len(spouses) == 0 || len(mentions) == 0 {
		return mentions
	}

	matched := false
	for _, m := range parentOfPattern.FindAllStringSubmatch(rawText, -1) {
		if nameMatchesSpouse(m[2], spouses) {
			matched = true
			break
		}
	}
	if !matched {
		return mentions
	}

	out := make([]extract.PersonMention, len(mentions))
	copy(out, mentions)
	for i := range out {
		switch norm.Normalize(out[i].RelationType) {
		case "mae", "mother":
			out[i].RelationType = "sogra"
		case "pai", "father":
			out[i].RelationType = "sogro"
		}
	}
	return out
}

// nameMatchesSpouse requires a whole-token match against a spouse's real
// name or aliases. The regex capture may drag in a trailing word, so the
// first token alone is also tried.
func nameMatchesSpouse(captured string, spouses []*store.RelationshipRecord) bool {
	candidates := []string{captured}
	if fields := strings.Fields(captured); len(fields) > 1 {
		candidates = append(candidates, fields[0])
	}
	for _, cand := range candidates {
		for _, s := range spouses {
			if norm.Equal(cand, s.RealName) {
				return true
			}
			for _, alias := range s.Aliases {
				if norm.Equal(cand, alias) {
					return true
				}
			}
		}
	}
	return false
}
