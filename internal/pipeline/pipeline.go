// Package pipeline runs the content generation job: admission, provider
// research, persistence, title derivation, finalization, and the
// analytics rollup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillforge/quill/internal/agent"
	"github.com/quillforge/quill/internal/analytics"
	"github.com/quillforge/quill/internal/provider"
	"github.com/quillforge/quill/internal/storage"
)

// ErrValidation marks malformed job parameters, rejected before any state
// transition touches the agent.
var ErrValidation = errors.New("invalid job parameters")

// ErrProviderUnavailable marks a failed health probe at job start. The
// probe is not retried inline: a cold provider is a hard failure of that
// job and the agent is left in the error state.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ProcessSupervisor is the supervisor surface the pipeline touches.
type ProcessSupervisor interface {
	EnsureRunning() error
}

// Overrides are one-shot job parameters. Non-zero fields replace the
// agent's stored defaults for this job AND are persisted into the stored
// config at job start (trigger-time defaults update).
type Overrides struct {
	Topics       []string `json:"topics,omitempty"`
	WordCountMin int      `json:"word_count_min,omitempty"`
	WordCountMax int      `json:"word_count_max,omitempty"`
	Style        string   `json:"style,omitempty"`
	Tone         string   `json:"tone,omitempty"`
}

// Deps wires the pipeline to its collaborators.
type Deps struct {
	Store      *storage.Store
	Machine    *agent.Machine
	Gate       *provider.Gate
	Client     *provider.Client
	Analytics  *analytics.Aggregator
	Supervisor ProcessSupervisor // optional

	GenerationTimeout time.Duration // bound on the provider research call (default 120s)
	TitleTimeout      time.Duration // bound on the title sub-call (default 30s)
}

// Pipeline drives one generation job per agent at a time. Stages after
// the health probe run sequentially; admission control is entirely the
// state machine's guard on the researching transition.
type Pipeline struct {
	store      *storage.Store
	machine    *agent.Machine
	gate       *provider.Gate
	client     *provider.Client
	analytics  *analytics.Aggregator
	supervisor ProcessSupervisor

	genTimeout   time.Duration
	titleTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	if deps.GenerationTimeout <= 0 {
		deps.GenerationTimeout = 120 * time.Second
	}
	if deps.TitleTimeout <= 0 {
		deps.TitleTimeout = 30 * time.Second
	}
	return &Pipeline{
		store:        deps.Store,
		machine:      deps.Machine,
		gate:         deps.Gate,
		client:       deps.Client,
		analytics:    deps.Analytics,
		supervisor:   deps.Supervisor,
		genTimeout:   deps.GenerationTimeout,
		titleTimeout: deps.TitleTimeout,
		logger:       slog.Default(),
	}
}

// Job is an admitted generation job: the agent has transitioned to
// researching and the artifact placeholder exists.
type Job struct {
	AgentID    int64
	ArtifactID string
	Config     storage.GenerationConfig
	started    time.Time
}

// Start admits a job: it validates parameters, probes the provider (one
// attempt, no backoff), and atomically moves the agent into researching
// with the merged config and the artifact placeholder. Failures here are
// surfaced synchronously, so the agent is never left researching with
// no in-flight work.
func (p *Pipeline) Start(ctx context.Context, agentID int64, ov Overrides) (*Job, error) {
	if err := validateOverrides(ov); err != nil {
		return nil, err
	}

	ag, err := p.store.GetAgent(agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent %d: %w", agentID, err)
	}

	merged := mergeConfig(ag.Config, ov)
	if len(merged.Topics) == 0 {
		return nil, fmt.Errorf("%w: agent has no topics configured", ErrValidation)
	}

	// Give a crashed provider a chance to come back before probing. The
	// probe still decides this job's fate.
	if p.supervisor != nil {
		if err := p.supervisor.EnsureRunning(); err != nil {
			p.logger.Warn("provider spawn failed", "error", err)
		}
	}

	if err := p.gate.Probe(ctx); err != nil {
		if failErr := p.machine.Fail(agentID, "provider unavailable"); failErr != nil {
			p.logger.Error("marking agent failed after probe", "agent_id", agentID, "error", failErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	placeholder := storage.Artifact{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		Status:     "researching",
		TopicFocus: merged.Topics,
		Style:      merged.Style,
	}
	if err := p.machine.StartJob(agentID, merged, placeholder); err != nil {
		return nil, err
	}

	return &Job{
		AgentID:    agentID,
		ArtifactID: placeholder.ID,
		Config:     merged,
		started:    time.Now(),
	}, nil
}

// Execute runs an admitted job to completion or failure. No mid-job
// cancellation: the job finishes on its own timeouts.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	cfg := job.Config
	topic := cfg.Topics[0]

	req := provider.ResearchRequest{
		Topic:        topic,
		WordCount:    targetWordCount(cfg),
		Instructions: buildInstructions(cfg),
	}

	genCtx, cancel := context.WithTimeout(ctx, p.genTimeout)
	result, err := p.client.Research(genCtx, req)
	cancel()
	if err != nil {
		return p.fail(job, "research", err)
	}
	researchSeconds := time.Since(job.started).Seconds()

	if err := p.machine.MarkGenerating(job.AgentID); err != nil {
		return p.fail(job, "generating transition", err)
	}

	record := storage.ResearchRecord{
		ID:         uuid.New().String(),
		ArtifactID: job.ArtifactID,
		Content:    result.RawResearch,
		SourceID:   result.SourceID,
	}
	if err := p.store.SaveResearchRecord(record); err != nil {
		return p.fail(job, "research persistence", err)
	}

	title := p.deriveTitle(ctx, result.Content, topic)

	finalized := storage.Artifact{
		ID:                job.ArtifactID,
		AgentID:           job.AgentID,
		Title:             title,
		Body:              result.Content,
		WordCount:         len(strings.Fields(result.Content)),
		Status:            "completed",
		GeneratedAt:       time.Now(),
		TopicFocus:        cfg.Topics,
		Style:             cfg.Style,
		GenerationSeconds: time.Since(job.started).Seconds(),
		ResearchSeconds:   researchSeconds,
		ErrorCount:        0,
	}
	if err := p.store.FinalizeArtifact(finalized); err != nil {
		return p.fail(job, "artifact finalization", err)
	}

	if err := p.machine.MarkCompleted(job.AgentID); err != nil {
		return p.fail(job, "completed transition", err)
	}
	if err := p.machine.FinishIdle(job.AgentID); err != nil {
		return p.fail(job, "idle transition", err)
	}

	if err := p.analytics.RecordSuccess(job.AgentID, finalized, finalized.GenerationSeconds); err != nil {
		// The job itself succeeded; a rollup failure is logged, not fatal.
		p.logger.Error("analytics rollup failed", "agent_id", job.AgentID, "error", err)
	}

	p.logger.Info("generation job completed",
		"agent_id", job.AgentID,
		"artifact_id", job.ArtifactID,
		"word_count", finalized.WordCount,
		"seconds", finalized.GenerationSeconds,
	)
	return nil
}

// Run performs a full job synchronously: Start then Execute.
func (p *Pipeline) Run(ctx context.Context, agentID int64, ov Overrides) error {
	job, err := p.Start(ctx, agentID, ov)
	if err != nil {
		return err
	}
	return p.Execute(ctx, job)
}

// deriveTitle asks the provider for an SEO title over a content prefix.
// Any failure recovers locally to the deterministic template; the title
// sub-call never fails the job.
func (p *Pipeline) deriveTitle(ctx context.Context, content, topic string) string {
	titleCtx, cancel := context.WithTimeout(ctx, p.titleTimeout)
	defer cancel()

	title, err := p.client.GenerateTitle(titleCtx, runePrefix(content, titlePrefixRunes), topic)
	if err != nil {
		p.logger.Warn("title generation failed, using fallback", "topic", topic, "error", err)
		return FallbackTitle(topic)
	}
	return title
}

// fail is the terminal path for a job that already entered researching:
// the agent goes to error with the provider's message verbatim, the
// placeholder is left in a failed state (never deleted), and the failure
// is folded into the analytics aggregate.
func (p *Pipeline) fail(job *Job, stage string, cause error) error {
	msg := cause.Error()
	var callErr *provider.CallError
	if errors.As(cause, &callErr) {
		msg = callErr.Body
	}

	if err := p.machine.Fail(job.AgentID, msg); err != nil {
		p.logger.Error("marking agent failed", "agent_id", job.AgentID, "error", err)
	}
	if err := p.store.MarkArtifactFailed(job.ArtifactID); err != nil {
		p.logger.Error("marking artifact failed", "artifact_id", job.ArtifactID, "error", err)
	}
	if err := p.analytics.RecordFailure(job.AgentID); err != nil {
		p.logger.Error("analytics rollup failed", "agent_id", job.AgentID, "error", err)
	}

	p.logger.Warn("generation job failed", "agent_id", job.AgentID, "stage", stage, "error", cause)
	return fmt.Errorf("%s: %w", stage, cause)
}

func validateOverrides(ov Overrides) error {
	if ov.WordCountMin < 0 || ov.WordCountMax < 0 {
		return fmt.Errorf("%w: word count bounds must be positive", ErrValidation)
	}
	min, max := ov.WordCountMin, ov.WordCountMax
	if min > 0 && max > 0 && min > max {
		return fmt.Errorf("%w: word count lower bound exceeds upper bound", ErrValidation)
	}
	for _, t := range ov.Topics {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: empty topic", ErrValidation)
		}
	}
	return nil
}

// mergeConfig folds the one-shot overrides into the stored config. The
// result is persisted by the researching transition, so triggering a job
// updates the agent's defaults to the last-used parameters.
func mergeConfig(cfg storage.GenerationConfig, ov Overrides) storage.GenerationConfig {
	if len(ov.Topics) > 0 {
		cfg.Topics = ov.Topics
	}
	if ov.WordCountMin > 0 {
		cfg.WordCountMin = ov.WordCountMin
	}
	if ov.WordCountMax > 0 {
		cfg.WordCountMax = ov.WordCountMax
	}
	if ov.Style != "" {
		cfg.Style = ov.Style
	}
	if ov.Tone != "" {
		cfg.Tone = ov.Tone
	}
	return cfg
}

// targetWordCount picks the request target from the configured bounds.
func targetWordCount(cfg storage.GenerationConfig) int {
	min, max := cfg.WordCountMin, cfg.WordCountMax
	if min <= 0 && max <= 0 {
		return 1000
	}
	if min <= 0 {
		return max
	}
	if max <= 0 || max < min {
		return min
	}
	return (min + max) / 2
}
