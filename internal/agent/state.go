// Package agent owns the authoritative agent status field and the legal
// transitions between states. No other component writes status directly;
// every mutation goes through Machine, which validates the source state
// and fails the request (not the agent) when a transition is illegal.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/quillforge/quill/internal/storage"
)

// Agent lifecycle states.
const (
	StatusIdle         = "idle"
	StatusInitializing = "initializing"
	StatusReady        = "ready"
	StatusResearching  = "researching"
	StatusGenerating   = "generating"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// ErrInvalidTransition is returned when the agent's current status is not
// a legal source state for the requested trigger.
var ErrInvalidTransition = errors.New("invalid status transition")

// startable are the states from which a job may be triggered. An agent
// already researching or generating refuses a second trigger; this guard
// is the system's only job admission control.
var startable = []string{StatusIdle, StatusReady}

var allStatuses = []string{
	StatusIdle, StatusInitializing, StatusReady,
	StatusResearching, StatusGenerating, StatusCompleted, StatusError,
}

// Machine performs guarded status transitions against the store.
// defaults is the generation config applied on reset.
type Machine struct {
	store    *storage.Store
	defaults storage.GenerationConfig
}

// NewMachine creates a Machine backed by the given store. defaults is the
// config restored by Reset.
func NewMachine(store *storage.Store, defaults storage.GenerationConfig) *Machine {
	return &Machine{store: store, defaults: defaults}
}

// DefaultConfig returns the Machine's reset config.
func (m *Machine) DefaultConfig() storage.GenerationConfig {
	return m.defaults
}

// StartJob moves an idle/ready agent into researching, persisting the
// merged config, clearing the error fields, and inserting the artifact
// placeholder in one atomic write. A stale error is therefore never
// observable alongside an active job.
func (m *Machine) StartJob(id int64, merged storage.GenerationConfig, placeholder storage.Artifact) error {
	return m.guard(m.store.StartJob(id, startable, StatusResearching, merged, placeholder), id, "start")
}

// MarkGenerating records that the provider call succeeded and content is
// being assembled.
func (m *Machine) MarkGenerating(id int64) error {
	return m.guard(m.store.SetStatus(id, []string{StatusResearching}, StatusGenerating), id, "generate")
}

// MarkCompleted records job completion. The completed state is written
// before the revert to idle so pollers can observe it.
func (m *Machine) MarkCompleted(id int64) error {
	return m.guard(m.store.SetStatus(id, []string{StatusResearching, StatusGenerating}, StatusCompleted), id, "complete")
}

// FinishIdle reverts a completed agent to idle, clearing error fields in
// the same write.
func (m *Machine) FinishIdle(id int64) error {
	return m.guard(m.store.SetStatusClearError(id, []string{StatusCompleted}, StatusIdle), id, "finish")
}

// Fail forces the agent into the error state with the given message. Any
// stage failure is terminal for the running job, so no source-state guard
// applies; the error fields are written atomically with the status.
func (m *Machine) Fail(id int64, msg string) error {
	return m.store.SetStatusError(id, StatusError, msg, time.Now())
}

// Reset forces an errored agent back to ready with default config,
// clearing lastError and lastErrorTime.
func (m *Machine) Reset(id int64) error {
	return m.guard(m.store.ResetAgent(id, []string{StatusError}, StatusReady, m.defaults), id, "reset")
}

// Pause moves an idle/ready agent to idle. Pausing an already-idle agent
// is a no-op.
func (m *Machine) Pause(id int64) error {
	return m.guard(m.store.SetStatus(id, startable, StatusIdle), id, "pause")
}

// BeginInitialize marks an agent as initializing during process boot.
// Agents may have been left in any state by a previous run (including a
// stale researching after a crash), so no source guard applies.
func (m *Machine) BeginInitialize(id int64) error {
	return m.guard(m.store.SetStatus(id, allStatuses, StatusInitializing), id, "initialize")
}

// FinishInitialize completes boot initialization: ready when the provider
// probe succeeded, error with the probe failure message otherwise.
func (m *Machine) FinishInitialize(id int64, probeErr error) error {
	if probeErr != nil {
		return m.store.SetStatusError(id, StatusError, probeErr.Error(), time.Now())
	}
	return m.guard(m.store.SetStatusClearError(id, []string{StatusInitializing}, StatusReady), id, "initialize")
}

func (m *Machine) guard(err error, id int64, trigger string) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: agent %d cannot %s from its current status", ErrInvalidTransition, id, trigger)
	}
	return err
}
