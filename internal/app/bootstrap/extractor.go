package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/internal/nlu"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

const (
	ProviderKeyword       = "keyword"
	ProviderBedrock       = "bedrock"
	ProviderGemini        = "gemini"
	ProviderBedrockGemini = "bedrock+gemini"
)

// ErrUnknownProvider is returned for an EXTRACTOR_PROVIDER value that names
// no known backend.
var ErrUnknownProvider = errors.New("bootstrap: unknown extractor provider")

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return strings.Contains(cfg.ExtractorProvider, ProviderBedrock) ||
		cfg.NotifyProvider == "ses" ||
		strings.TrimSpace(cfg.TranscriptBucket) != ""
}

// BuildExtractor wires the entity extractor named by cfg.ExtractorProvider.
// Model-backed extractors run behind a circuit breaker and, unless disabled,
// fall back to keyword matching. The returned func releases provider clients.
func BuildExtractor(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (dialogue.Extractor, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	keyword := nlu.NewKeywordExtractor()
	provider := strings.TrimSpace(cfg.ExtractorProvider)
	if provider == "" || provider == ProviderKeyword {
		logger.Info("using keyword extractor")
		return keyword, noop, nil
	}

	var (
		client nlu.LLMClient
		model  string
		closer = noop
	)
	switch provider {
	case ProviderBedrock, ProviderBedrockGemini:
		model = strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return nil, noop, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for %s extraction", provider)
		}
		client = nlu.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		if provider == ProviderBedrockGemini {
			gemini, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				return nil, noop, err
			}
			client = nlu.NewFallbackLLMClient(client, gemini, logger)
			closer = gemini.Close
		}
	case ProviderGemini:
		gemini, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, err
		}
		client, model, closer = gemini, cfg.GeminiModelID, gemini.Close
	default:
		return nil, noop, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}

	var extractor dialogue.Extractor = nlu.NewLLMExtractor(nlu.LLMExtractorConfig{
		Client:      client,
		Model:       model,
		MaxTokens:   int32(cfg.ExtractionMaxTokens),
		Temperature: float32(cfg.ExtractionTemperature),
		Logger:      logger,
	})
	failures := cfg.BreakerFailures
	if failures < 0 {
		failures = 0
	}
	extractor = nlu.NewBreakerExtractor(extractor, nlu.BreakerConfig{
		Name:        provider,
		Timeout:     cfg.ExtractionTimeout,
		Failures:    uint32(failures),
		OpenTimeout: cfg.BreakerOpenTimeout,
		Logger:      logger,
	})
	if cfg.KeywordFallback {
		extractor = nlu.NewFallbackExtractor(extractor, keyword, logger)
	}
	logger.Info("using LLM extractor", "provider", provider, "model", model, "keyword_fallback", cfg.KeywordFallback)
	return extractor, closer, nil
}
