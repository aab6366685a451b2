// Package analytics incrementally recomputes each agent's rolling
// statistics after a job finishes. It is the only writer of the
// analytics aggregate.
package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/quillforge/quill/internal/storage"
)

// Aggregator updates the per-agent rolling aggregate once per completed
// job. All averages are running means weighted by prior count; full
// history is never re-read.
type Aggregator struct {
	store *storage.Store
}

// New creates an Aggregator over the given store.
func New(store *storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecordSuccess folds a finalized artifact into the agent's aggregate.
// Must be called exactly once per successful job.
func (a *Aggregator) RecordSuccess(agentID int64, art storage.Artifact, elapsedSeconds float64) error {
	ag, err := a.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("loading agent %d: %w", agentID, err)
	}

	st := ag.Analytics
	prevCount := st.TotalArtifacts
	newCount := prevCount + 1

	st.TotalArtifacts = newCount
	st.TotalWordCount += art.WordCount
	st.AverageWordCount = int(math.Round(float64(st.TotalWordCount) / float64(newCount)))
	st.AverageGenerationSeconds = (st.AverageGenerationSeconds*float64(prevCount) + elapsedSeconds) / float64(newCount)
	st.SuccessRatePercent = int(math.Round((float64(st.SuccessRatePercent)*float64(prevCount) + 100) / float64(newCount)))

	if st.TopicDistribution == nil {
		st.TopicDistribution = make(map[string]int)
	}
	for _, topic := range art.TopicFocus {
		st.TopicDistribution[topic]++
	}
	st.LastUpdateTime = time.Now()

	if err := a.store.UpdateAgentAnalytics(agentID, st); err != nil {
		return fmt.Errorf("updating analytics for agent %d: %w", agentID, err)
	}
	return nil
}

// RecordFailure degrades the agent's success rate without incrementing
// TotalArtifacts: a failed job produced no artifact, so the word-count
// denominator stays untouched. The rate formula divides by prevCount+1
// while the success path divides by the incremented total. The two
// "attempt count" denominators differ on purpose; do not unify them.
func (a *Aggregator) RecordFailure(agentID int64) error {
	ag, err := a.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("loading agent %d: %w", agentID, err)
	}

	st := ag.Analytics
	prevCount := st.TotalArtifacts
	st.SuccessRatePercent = int(math.Round(float64(st.SuccessRatePercent) * float64(prevCount) / float64(prevCount+1)))
	st.LastUpdateTime = time.Now()

	if err := a.store.UpdateAgentAnalytics(agentID, st); err != nil {
		return fmt.Errorf("updating analytics for agent %d: %w", agentID, err)
	}
	return nil
}
