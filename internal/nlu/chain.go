package nlu

import (
	"context"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// FallbackExtractor answers with fallback whenever primary fails, including
// when a circuit breaker around primary is open.
type FallbackExtractor struct {
	primary  dialogue.Extractor
	fallback dialogue.Extractor
	logger   *logging.Logger
}

func NewFallbackExtractor(primary, fallback dialogue.Extractor, logger *logging.Logger) *FallbackExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackExtractor{primary: primary, fallback: fallback, logger: logger}
}

// Extract implements dialogue.Extractor.
func (f *FallbackExtractor) Extract(ctx context.Context, req dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
	ext, err := f.primary.Extract(ctx, req)
	if err == nil || f.fallback == nil || ctx.Err() != nil {
		return ext, err
	}
	f.logger.Warn("primary extractor failed, using fallback", "error", err.Error())
	return f.fallback.Extract(ctx, req)
}
