package training

import (
	"context"
	"fmt"
	"sync"

	"github.com/cragclub/backend/internal/telemetry/metrics"
	"github.com/cragclub/backend/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Tracker hands out a per-user Manager, so concurrent users never share the
// open session slot. Managers are created lazily, restoring the user's
// history from the repo on first use.
type Tracker struct {
	repo           sessionsRepo
	metricsManager *metrics.Manager

	mutex    sync.Mutex
	managers map[string]*Manager
}

func NewTracker(repo sessionsRepo, metricsManager *metrics.Manager) *Tracker {
	return &Tracker{
		repo:           repo,
		metricsManager: metricsManager,
		managers:       map[string]*Manager{},
	}
}

func (t *Tracker) ManagerFor(ctx context.Context, userID string) (_ *Manager, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "training.tracker.managerFor")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if m, ok := t.managers[userID]; ok {
		return m, nil
	}

	sessions, err := t.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load sessions for user %s: %w", userID, err)
	}

	m := NewManager(userID, sessions, t.repo, t.metricsManager)
	t.managers[userID] = m
	return m, nil
}

// Close stops all managers' background persistence workers.
func (t *Tracker) Close() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, m := range t.managers {
		m.Close()
	}
	t.managers = map[string]*Manager{}
}
