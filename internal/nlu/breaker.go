package nlu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// BreakerConfig tunes a BreakerExtractor.
type BreakerConfig struct {
	Name string
	// Timeout bounds a single extraction call. Zero disables it.
	Timeout time.Duration
	// Failures is the number of consecutive failures that opens the circuit.
	Failures    uint32
	OpenTimeout time.Duration
	Logger      *logging.Logger
}

// BreakerExtractor guards another extractor with a per-call deadline and a
// circuit breaker. While the circuit is open calls fail immediately.
type BreakerExtractor struct {
	inner   dialogue.Extractor
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*dialogue.Extraction]
}

func NewBreakerExtractor(inner dialogue.Extractor, cfg BreakerConfig) *BreakerExtractor {
	if inner == nil {
		panic("nlu: wrapped extractor cannot be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "extraction"
	}
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	logger := cfg.Logger
	threshold := cfg.Failures

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("extraction circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerExtractor{
		inner:   inner,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker[*dialogue.Extraction](settings),
	}
}

// Extract implements dialogue.Extractor.
func (b *BreakerExtractor) Extract(ctx context.Context, req dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
	ext, err := b.breaker.Execute(func() (*dialogue.Extraction, error) {
		callCtx := ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}
		return b.inner.Extract(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, dialogue.ErrExtractionFailed) {
			return nil, err
		}
		// gobreaker.ErrOpenState and ErrTooManyRequests land here too.
		return nil, fmt.Errorf("%w: %v", dialogue.ErrExtractionFailed, err)
	}
	return ext, nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerExtractor) State() string {
	return b.breaker.State().String()
}
