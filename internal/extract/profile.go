package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/llm"
)

const (
	// profileTimeout is the max time for a single profile compaction call.
	profileTimeout = 20 * time.Second

	// maxProfileLength caps the stored summary; anything longer is cut at
	// the last sentence boundary that fits.
	maxProfileLength = 400
)

const profileSystemPrompt = `Você é um sistema de resumo de perfis para um mentor conversacional. Você recebe fatos conhecidos sobre uma pessoa da vida do usuário e deve produzir um resumo factual de 1 a 2 frases, em português, na terceira pessoa.

REGRAS:
- Apenas fatos fornecidos; nunca invente detalhes
- Sem saudações, sem listas, sem aspas: apenas as frases do resumo`

// ProfileInput carries the record fields the compactor summarizes.
// It mirrors the durable record without importing the storage layer.
type ProfileInput struct {
	RealName         string
	RelationType     string
	Aliases          []string
	EmotionMarkers   []string
	RelevantContexts []string
}

// CompactProfile generates a 1-2 sentence summary of a relationship record.
// Empty output or any error is a soft failure: the caller keeps whatever
// profile is already stored.
func CompactProfile(ctx context.Context, provider llm.Provider, in ProfileInput) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("LLM provider is nil")
	}

	profileCtx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()

	response, err := provider.Complete(profileCtx, buildProfilePrompt(in), llm.CompletionOpts{
		Temperature: 0.2,
		MaxTokens:   256,
		System:      profileSystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("LLM profile compaction: %w", err)
	}

	profile := strings.TrimSpace(stripCodeFences(response))
	if profile == "" {
		return "", fmt.Errorf("empty profile from LLM")
	}
	if len([]rune(profile)) > maxProfileLength {
		runes := []rune(profile)[:maxProfileLength]
		if cut := strings.LastIndexAny(string(runes), ".!?"); cut > 0 {
			runes = []rune(string(runes)[:cut+1])
		}
		profile = string(runes)
	}
	return profile, nil
}

// buildProfilePrompt renders the known facts as a short brief.
func buildProfilePrompt(in ProfileInput) string {
	var sb strings.Builder
	sb.WriteString("Resuma esta pessoa em 1-2 frases.\n\nFATOS:\n")

	name := in.RealName
	if name == "" {
		name = "(sem nome)"
	}
	fmt.Fprintf(&sb, "- nome: %s\n", name)
	if in.RelationType != "" && in.RelationType != "unknown" {
		fmt.Fprintf(&sb, "- vínculo: %s\n", in.RelationType)
	}
	if len(in.Aliases) > 0 {
		fmt.Fprintf(&sb, "- apelidos: %s\n", strings.Join(in.Aliases, ", "))
	}
	if len(in.EmotionMarkers) > 0 {
		fmt.Fprintf(&sb, "- marcadores emocionais: %s\n", strings.Join(in.EmotionMarkers, ", "))
	}
	if len(in.RelevantContexts) > 0 {
		fmt.Fprintf(&sb, "- contextos: %s\n", strings.Join(in.RelevantContexts, ", "))
	}

	return sb.String()
}
