// Package config resolves mentor360's runtime configuration from three
// layers with per-value provenance: the YAML config file, environment
// variables, and CLI flags (lowest to highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a configuration value plus where it came from, so
// `mentor360 config` style surfaces can explain the effective setup.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI-level overrides.
type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIDBPath  string
}

// ResolvedConfig is the fully layered configuration.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath          ResolvedValue `json:"db_path"`
	LLMProvider     ResolvedValue `json:"llm_provider"`
	LLMExtractModel ResolvedValue `json:"llm_extract_model"`
	LLMProfileModel ResolvedValue `json:"llm_profile_model"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider        string `yaml:"provider"`
		APIKey          string `yaml:"api_key"`
		ExtractModel    string `yaml:"extract_model"`
		ExtractProvider string `yaml:"extract_provider"`
		ProfileModel    string `yaml:"profile_model"`
		ProfileProvider string `yaml:"profile_provider"`
	} `yaml:"llm"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mentor360", "config.yaml")
}

// ResolveConfig layers config file < env < CLI and records provenance for
// every value. A missing config file is not an error.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMExtractModel, firstNonEmpty(cfg.LLM.ExtractModel, cfg.LLM.ExtractProvider), SourceConfig, path)
		apply(&out.LLMProfileModel, firstNonEmpty(cfg.LLM.ProfileModel, cfg.LLM.ProfileProvider), SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			providers := map[string]struct{}{}
			for _, v := range []string{cfg.LLM.Provider, cfg.LLM.ExtractModel, cfg.LLM.ProfileModel} {
				if p := providerOf(v); p != "" {
					providers[p] = struct{}{}
				}
			}
			if len(providers) == 0 {
				providers["default"] = struct{}{}
			}
			for p := range providers {
				out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
			}
		}
	}

	applyEnv(&out.DBPath, "MENTOR360_DB")
	applyEnv(&out.DBPath, "MENTOR360_DB_PATH")

	applyEnv(&out.LLMProvider, "MENTOR360_LLM")
	applyEnv(&out.LLMExtractModel, "MENTOR360_LLM_EXTRACT")
	applyEnv(&out.LLMProfileModel, "MENTOR360_LLM_PROFILE")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
		"ANTHROPIC_API_KEY":  "anthropic",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// EffectiveLLMModel resolves the provider/model spec for one purpose
// ("extract" or "profile"), falling back to the general provider and then
// to the built-in default.
func (r ResolvedConfig) EffectiveLLMModel(purpose, fallback string) ResolvedValue {
	purpose = strings.ToLower(strings.TrimSpace(purpose))

	candidates := []ResolvedValue{}
	switch purpose {
	case "extract":
		candidates = append(candidates, r.LLMExtractModel)
	case "profile":
		candidates = append(candidates, r.LLMProfileModel)
	}
	candidates = append(candidates, r.LLMProvider)

	for _, c := range candidates {
		if strings.TrimSpace(c.Value) == "" {
			continue
		}
		if strings.Contains(c.Value, "/") {
			return c
		}
		if fallback != "" && strings.HasPrefix(strings.ToLower(fallback), strings.ToLower(strings.TrimSpace(c.Value))+"/") {
			return ResolvedValue{Value: fallback, Source: c.Source, From: c.From}
		}
	}

	if strings.TrimSpace(fallback) != "" {
		return ResolvedValue{Value: fallback, Source: SourceDefault, From: "built-in default"}
	}
	return ResolvedValue{}
}

// APIKeyForProvider returns the key for a provider or "provider/model"
// spec, falling back to the file-level default key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
