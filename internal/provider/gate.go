package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrUnhealthy is returned when the provider is unreachable or one of its
// required sub-dependencies reports down.
var ErrUnhealthy = errors.New("provider unhealthy")

// requiredServices are the provider sub-dependencies that must report up
// before a job is committed: its data-store connection and its
// language-model connection. A bare 200 from /health is not enough.
var requiredServices = []string{"store", "model"}

// Gate probes the provider's readiness before an agent is committed to a
// job. It owns the retry/backoff policy: boot initialization tolerates a
// slow-starting provider (ProbeWithRetry), a job start does not (Probe,
// single attempt).
type Gate struct {
	client       *Client
	probeTimeout time.Duration
	attempts     int
	gap          time.Duration
	logger       *slog.Logger
}

// NewGate creates a Gate over the given client. probeTimeout bounds each
// probe request (default 5s); attempts and gap configure the boot-time
// retry policy (defaults 3 attempts, 2s apart).
func NewGate(client *Client, probeTimeout time.Duration, attempts int, gap time.Duration) *Gate {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	if gap <= 0 {
		gap = 2 * time.Second
	}
	return &Gate{
		client:       client,
		probeTimeout: probeTimeout,
		attempts:     attempts,
		gap:          gap,
		logger:       slog.Default(),
	}
}

// Probe issues one bounded readiness request. Healthy requires every
// required service to explicitly report true.
func (g *Gate) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	hs, err := g.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	var down []string
	for _, name := range requiredServices {
		if !hs.Services[name] {
			down = append(down, name)
		}
	}
	if len(down) > 0 {
		sort.Strings(down)
		return fmt.Errorf("%w: services down: %v", ErrUnhealthy, down)
	}
	return nil
}

// ProbeWithRetry probes sequentially until a probe succeeds or attempts
// are exhausted. Used only at agent initialization; each failure is
// logged with its attempt number.
func (g *Gate) ProbeWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		lastErr = g.Probe(ctx)
		if lastErr == nil {
			return nil
		}
		g.logger.Warn("provider probe failed", "attempt", attempt, "max_attempts", g.attempts, "error", lastErr)

		if attempt == g.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.gap):
		}
	}
	return lastErr
}
