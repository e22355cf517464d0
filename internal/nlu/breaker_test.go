package nlu

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func TestBreakerExtractor_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	failing := dialogue.ExtractorFunc(func(context.Context, dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
		calls.Add(1)
		return nil, errors.New("bedrock throttled")
	})
	ext := NewBreakerExtractor(failing, BreakerConfig{Failures: 2, OpenTimeout: time.Minute, Logger: logging.Discard()})

	for i := 0; i < 2; i++ {
		_, err := ext.Extract(context.Background(), extractionRequest("hi", ""))
		assert.ErrorIs(t, err, dialogue.ErrExtractionFailed)
	}
	assert.Equal(t, "open", ext.State())

	_, err := ext.Extract(context.Background(), extractionRequest("hi", ""))
	assert.ErrorIs(t, err, dialogue.ErrExtractionFailed)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the extractor")
}

func TestBreakerExtractor_AppliesTimeout(t *testing.T) {
	slow := dialogue.ExtractorFunc(func(ctx context.Context, _ dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ext := NewBreakerExtractor(slow, BreakerConfig{Timeout: 10 * time.Millisecond, Logger: logging.Discard()})

	_, err := ext.Extract(context.Background(), extractionRequest("hi", ""))
	assert.ErrorIs(t, err, dialogue.ErrExtractionFailed)
	assert.ErrorContains(t, err, "deadline exceeded")
}

func TestBreakerExtractor_PassesThroughSuccess(t *testing.T) {
	ext := NewBreakerExtractor(NewKeywordExtractor(), BreakerConfig{Logger: logging.Discard()})
	got, err := ext.Extract(context.Background(), extractionRequest("book acupuncture", ""))
	require.NoError(t, err)
	assert.Equal(t, dialogue.ServiceAcupuncture, got.ServiceType)
	assert.Equal(t, "closed", ext.State())
}
