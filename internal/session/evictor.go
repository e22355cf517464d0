package session

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Evictable is a store that can drop abandoned sessions.
type Evictable interface {
	EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// Pruner drops other per-call buffers that outlive their session, such as
// in-memory transcripts.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) int
}

// EvictionReporter receives the number of sessions removed per sweep.
type EvictionReporter interface {
	ObserveEvictions(n int)
}

// Evictor periodically removes sessions for calls that were abandoned
// before completing.
type Evictor struct {
	store    Evictable
	logger   *logging.Logger
	interval time.Duration
	maxAge   time.Duration
	pruners  []Pruner
	reporter EvictionReporter
}

// NewEvictor creates an eviction worker with a 1h interval and 24h max age.
func NewEvictor(store Evictable, logger *logging.Logger) *Evictor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evictor{
		store:    store,
		logger:   logger,
		interval: time.Hour,
		maxAge:   24 * time.Hour,
	}
}

// WithInterval sets the sweep interval.
func (e *Evictor) WithInterval(interval time.Duration) *Evictor {
	if interval > 0 {
		e.interval = interval
	}
	return e
}

// WithMaxAge sets how old a session must be before it is evicted. Keep it far
// above the length of any real call so eviction never races a live turn.
func (e *Evictor) WithMaxAge(maxAge time.Duration) *Evictor {
	if maxAge > 0 {
		e.maxAge = maxAge
	}
	return e
}

// WithPruner registers an extra buffer to prune on each sweep.
func (e *Evictor) WithPruner(p Pruner) *Evictor {
	if p != nil {
		e.pruners = append(e.pruners, p)
	}
	return e
}

// WithReporter registers a sink for eviction counts.
func (e *Evictor) WithReporter(r EvictionReporter) *Evictor {
	e.reporter = r
	return e
}

// Start runs the sweep loop. Blocks until context is cancelled.
func (e *Evictor) Start(ctx context.Context) {
	e.logger.Info("starting session evictor",
		"interval", e.interval.String(),
		"max_age", e.maxAge.String(),
	)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("session evictor shutting down")
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.logger.Error("session eviction failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of sessions evicted.
func (e *Evictor) RunOnce(ctx context.Context) (int, error) {
	return e.Sweep(ctx, e.maxAge)
}

// Sweep evicts sessions older than maxAge and prunes registered buffers with
// the same cutoff. Operators trigger it directly with a custom age.
func (e *Evictor) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = e.maxAge
	}
	n, err := e.store.EvictOlderThan(ctx, maxAge)
	if e.reporter != nil && n > 0 {
		e.reporter.ObserveEvictions(n)
	}
	pruned := 0
	for _, p := range e.pruners {
		pruned += p.Prune(ctx, maxAge)
	}
	if n > 0 || pruned > 0 {
		e.logger.Info("session sweep complete", "evicted", n, "pruned", pruned, "max_age", maxAge.String())
	}
	return n, err
}
