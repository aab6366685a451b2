package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "QUILL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "provider.base_url", typ: kString, env: "QUILL_PROVIDER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.BaseURL },
	},
	{
		key: "provider.command", typ: kString, env: "QUILL_PROVIDER_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Provider.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Command },
	},
	{
		key: "provider.dir", typ: kString, env: "QUILL_PROVIDER_DIR",
		apply:   func(cfg *Config, v any) { cfg.Provider.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Dir },
	},
	{
		key: "provider.health_timeout", typ: kString, env: "QUILL_PROVIDER_HEALTH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Provider.HealthTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.HealthTimeout },
	},
	{
		key: "provider.retry_attempts", typ: kInt, env: "QUILL_PROVIDER_RETRY_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Provider.RetryAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Provider.RetryAttempts },
	},
	{
		key: "provider.retry_gap", typ: kString, env: "QUILL_PROVIDER_RETRY_GAP",
		apply:   func(cfg *Config, v any) { cfg.Provider.RetryGap = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.RetryGap },
	},
	{
		key: "provider.generation_timeout", typ: kString, env: "QUILL_PROVIDER_GENERATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Provider.GenerationTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.GenerationTimeout },
	},
	{
		key: "provider.title_timeout", typ: kString, env: "QUILL_PROVIDER_TITLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Provider.TitleTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.TitleTimeout },
	},
	{
		key: "generation.provider", typ: kString, env: "QUILL_GENERATION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "generation.model", typ: kString, env: "QUILL_GENERATION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.temperature", typ: kFloat, env: "QUILL_GENERATION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.Temperature },
	},
	{
		key: "generation.max_tokens", typ: kInt, env: "QUILL_GENERATION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxTokens },
	},
	{
		key: "generation.word_count_min", typ: kInt, env: "QUILL_GENERATION_WORD_COUNT_MIN",
		apply:   func(cfg *Config, v any) { cfg.Generation.WordCountMin = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.WordCountMin },
	},
	{
		key: "generation.word_count_max", typ: kInt, env: "QUILL_GENERATION_WORD_COUNT_MAX",
		apply:   func(cfg *Config, v any) { cfg.Generation.WordCountMax = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.WordCountMax },
	},
	{
		key: "generation.style", typ: kString, env: "QUILL_GENERATION_STYLE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Style = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Style },
	},
	{
		key: "generation.tone", typ: kString, env: "QUILL_GENERATION_TONE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Tone = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Tone },
	},
	{
		key: "generation.research_depth", typ: kInt, env: "QUILL_GENERATION_RESEARCH_DEPTH",
		apply:   func(cfg *Config, v any) { cfg.Generation.ResearchDepth = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.ResearchDepth },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QUILL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "QUILL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
