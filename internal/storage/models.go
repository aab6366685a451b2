package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded status write found the agent but
// its current status was not one of the allowed source states.
var ErrConflict = errors.New("status conflict")

// GenerationConfig holds an agent's stored content-generation settings.
// Job triggers may override a subset of these for a single run; the
// override values are merged back into the stored config at job start
// (trigger-time defaults update).
type GenerationConfig struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	Temperature     float64  `json:"temperature"`
	MaxTokens       int      `json:"max_tokens"`
	Topics          []string `json:"topics"`
	WordCountMin    int      `json:"word_count_min"`
	WordCountMax    int      `json:"word_count_max"`
	Style           string   `json:"style"`
	Tone            string   `json:"tone"`
	Instructions    string   `json:"instructions"`
	ResearchDepth   int      `json:"research_depth"`
	ResearchEnabled bool     `json:"research_enabled"`
}

// Analytics is the rolling per-agent aggregate, recomputed incrementally
// after each job. AverageGenerationSeconds is a running mean weighted by
// prior count, never recomputed from full history.
type Analytics struct {
	TotalArtifacts           int            `json:"total_artifacts"`
	TotalWordCount           int            `json:"total_word_count"`
	AverageWordCount         int            `json:"average_word_count"`
	SuccessRatePercent       int            `json:"success_rate_percent"`
	AverageGenerationSeconds float64        `json:"average_generation_seconds"`
	TopicDistribution        map[string]int `json:"topic_distribution"`
	LastUpdateTime           time.Time      `json:"last_update_time"`
}

// Agent is a configured content-producing entity. Status is mutated only
// through the state machine's guarded writes; LastError and LastErrorTime
// are set and cleared together in the same write that changes the status.
// Zero-value LastErrorTime / RegistrationDate mean "not set".
type Agent struct {
	ID               int64
	Name             string
	Status           string
	Config           GenerationConfig
	LastError        string
	LastErrorTime    time.Time
	Analytics        Analytics
	IsRegistered     bool
	RegistrationDate time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Artifact is one job's output. It is inserted once as a placeholder at
// job start (status "researching", empty body) and finalized in place;
// a failed job leaves it in status "failed" rather than deleting it.
type Artifact struct {
	ID                string
	AgentID           int64
	Title             string
	Body              string
	WordCount         int
	Status            string // "researching", "completed", "failed"
	GeneratedAt       time.Time
	TopicFocus        []string
	Style             string
	GenerationSeconds float64
	ResearchSeconds   float64
	ErrorCount        int
	CreatedAt         time.Time
}

// ResearchRecord stores the raw research material the provider returned
// for one artifact, tagged with the provider-issued vector reference id.
type ResearchRecord struct {
	ID         string
	ArtifactID string
	Content    string
	SourceID   string
	CreatedAt  time.Time
}
