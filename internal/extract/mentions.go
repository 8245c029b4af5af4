// Package extract provides the LLM-facing adapters for mentor360's
// relationship memory: person-mention extraction from raw messages and
// compact profile generation for stored records.
//
// Both adapters treat the model as an unreliable collaborator: responses
// are fence-stripped, parsed defensively, and sanitized; malformed output
// degrades to empty results instead of failing the message turn.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/llm"
	"github.com/JonDuardo/mentor360-back/internal/norm"
)

const (
	// mentionTimeout is the max time for a single extraction LLM call.
	mentionTimeout = 30 * time.Second

	// maxNoteLength caps the free-text note carried on a mention.
	maxNoteLength = 200
)

const mentionSystemPrompt = `Você é um sistema de extração de menções a pessoas para um mentor conversacional. Você recebe uma mensagem do usuário e deve identificar todas as pessoas da vida pessoal dele que são mencionadas (esposa, irmão, mãe, amigos, colegas, etc).

REGRAS:
- Extraia apenas pessoas da vida do usuário, nunca figuras públicas ou personagens
- "real_name" é o nome próprio quando presente ("Luciana Braga"); vazio se só houver apelido ou parentesco
- "aliases" lista os termos usados no texto para se referir à pessoa ("Lu", "minha esposa")
- "relation_type" é o parentesco/vínculo em uma palavra quando identificável (esposa, marido, irma, irmao, mae, pai, filho, filha, sogra, sogro, amigo, colega, chefe) ou "unknown"
- "note" é um contexto curto opcional sobre a menção
- Se a mensagem não mencionar ninguém, retorne uma lista vazia

Retorne SOMENTE um objeto JSON:
{
  "mentions": [
    {"real_name": "Luciana Braga", "aliases": ["Lu", "minha esposa"], "relation_type": "esposa", "note": "almoçaram juntos"}
  ]
}`

// PersonMention is one person reference extracted from a single message.
// It is ephemeral: the consolidation engine links it to a durable record
// or creates one, then discards it.
type PersonMention struct {
	RealName     string   `json:"real_name"`
	Aliases      []string `json:"aliases"`
	RelationType string   `json:"relation_type"`
	Note         string   `json:"note"`
}

// Empty reports whether the mention carries no usable identity at all.
func (m PersonMention) Empty() bool {
	return m.RealName == "" && len(m.Aliases) == 0
}

// mentionResponse is the JSON the LLM returns.
type mentionResponse struct {
	Mentions []PersonMention `json:"mentions"`
}

// Mentions extracts person mentions from a raw message.
// Returns an error only for transport/parse failures; callers treat any
// error as "no mentions found" and report it, never abort the turn.
func Mentions(ctx context.Context, provider llm.Provider, text string) ([]PersonMention, error) {
	if provider == nil {
		return nil, fmt.Errorf("LLM provider is nil")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, mentionTimeout)
	defer cancel()

	response, err := provider.Complete(extractCtx, buildMentionPrompt(text), llm.CompletionOpts{
		Temperature: 0.1,
		MaxTokens:   1024,
		Format:      "json",
		System:      mentionSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM mention extraction: %w", err)
	}

	mentions, err := parseMentionResponse(response)
	if err != nil {
		return nil, err
	}
	return sanitizeMentions(mentions), nil
}

// buildMentionPrompt constructs the user message for extraction.
func buildMentionPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Extraia as menções a pessoas. Retorne JSON apenas.\n\nMENSAGEM:\n")
	sb.WriteString(text)
	return sb.String()
}

// parseMentionResponse parses the LLM's JSON (with markdown stripping).
func parseMentionResponse(raw string) ([]PersonMention, error) {
	cleaned := stripCodeFences(raw)

	var resp mentionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON from LLM: %w\nraw: %s", err, truncateForError(raw, 300))
	}
	return resp.Mentions, nil
}

// sanitizeMentions enforces the mention invariants: no empty aliases,
// case/diacritic-insensitive alias dedup, defaulted relation type,
// bounded note, and no fully-empty mentions.
func sanitizeMentions(mentions []PersonMention) []PersonMention {
	out := make([]PersonMention, 0, len(mentions))
	for _, m := range mentions {
		m.RealName = strings.TrimSpace(m.RealName)
		m.Aliases = norm.DedupKeepFirst(m.Aliases)
		m.RelationType = strings.TrimSpace(strings.ToLower(m.RelationType))
		if m.RelationType == "" {
			m.RelationType = "unknown"
		}
		m.Note = strings.TrimSpace(m.Note)
		if len([]rune(m.Note)) > maxNoteLength {
			m.Note = string([]rune(m.Note)[:maxNoteLength])
		}
		if m.Empty() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// stripCodeFences removes a surrounding markdown code fence, if any.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		cleaned = strings.Join(lines[start:end], "\n")
	}
	return strings.TrimSpace(cleaned)
}

// truncateForError truncates a string for error message inclusion.
func truncateForError(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
