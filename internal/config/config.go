package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server     ServerConfig
	Provider   ProviderConfig
	Generation GenerationDefaults
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

// ProviderConfig locates the external content/research provider and sets
// the orchestrator's patience with it. Command is the child-process
// command line the supervisor spawns; leave it empty when the provider is
// managed outside the orchestrator.
type ProviderConfig struct {
	BaseURL           string
	Command           string
	Dir               string
	HealthTimeout     string
	RetryAttempts     int
	RetryGap          string
	GenerationTimeout string
	TitleTimeout      string
}

// GenerationDefaults seed new agents and are restored on reset.
type GenerationDefaults struct {
	Provider      string
	Model         string
	Temperature   float64
	MaxTokens     int
	WordCountMin  int
	WordCountMax  int
	Style         string
	Tone          string
	ResearchDepth int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Provider: ProviderConfig{
			BaseURL:           "http://127.0.0.1:5100",
			Command:           "",
			HealthTimeout:     "5s",
			RetryAttempts:     3,
			RetryGap:          "2s",
			GenerationTimeout: "120s",
			TitleTimeout:      "30s",
		},
		Generation: GenerationDefaults{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Temperature:   0.7,
			MaxTokens:     4096,
			WordCountMin:  500,
			WordCountMax:  1500,
			Style:         "informative",
			Tone:          "professional",
			ResearchDepth: 3,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "quill-data"
		}
	}
	return filepath.Join(dir, "quill")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/quill/config.json, then applies QUILL_* environment
// variable overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
