package agent

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/quillforge/quill/internal/storage"
)

// Prober is the health-gate surface boot initialization depends on.
type Prober interface {
	ProbeWithRetry(ctx context.Context) error
}

// InitializeAll walks every stored agent through the boot transition:
// initializing, then ready after a successful health probe, or error with
// the probe failure after retries are exhausted. The probe targets one
// shared provider, so it runs once; the per-agent writes fan out.
func InitializeAll(ctx context.Context, m *Machine, store *storage.Store, gate Prober) error {
	agents, err := store.ListAgents()
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}

	for _, a := range agents {
		if err := m.BeginInitialize(a.ID); err != nil {
			return fmt.Errorf("marking agent %d initializing: %w", a.ID, err)
		}
	}

	probeErr := gate.ProbeWithRetry(ctx)
	if probeErr != nil {
		slog.Warn("provider probe failed during boot, agents will start in error state", "error", probeErr)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range agents {
		g.Go(func() error {
			if err := m.FinishInitialize(a.ID, probeErr); err != nil {
				return fmt.Errorf("finishing initialization of agent %d: %w", a.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("agents initialized", "count", len(agents), "healthy", probeErr == nil)
	return nil
}
