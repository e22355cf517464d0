package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// LLMExtractorConfig configures an LLMExtractor.
type LLMExtractorConfig struct {
	Client      LLMClient
	Model       string
	MaxTokens   int32
	Temperature float32
	// Fallback, when set, answers whenever the model call or its output fails.
	Fallback dialogue.Extractor
	Logger   *logging.Logger
}

// LLMExtractor asks a language model for a strict-JSON reading of the
// utterance and validates the result.
type LLMExtractor struct {
	client      LLMClient
	model       string
	maxTokens   int32
	temperature float32
	fallback    dialogue.Extractor
	logger      *logging.Logger
}

// wireExtraction is the JSON shape the model is instructed to return.
type wireExtraction struct {
	Intent        *string  `json:"intent"`
	ServiceType   *string  `json:"service_type"`
	Location      *string  `json:"location"`
	PreferredDate *string  `json:"preferred_date"`
	PatientName   *string  `json:"patient_name"`
	PatientPhone  *string  `json:"patient_phone"`
	Corrections   []string `json:"corrections"`
}

func NewLLMExtractor(cfg LLMExtractorConfig) *LLMExtractor {
	if cfg.Client == nil {
		panic("nlu: llm client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	return &LLMExtractor{
		client:      cfg.Client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		fallback:    cfg.Fallback,
		logger:      cfg.Logger,
	}
}

// Extract implements dialogue.Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, req dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
	ext, err := e.extract(ctx, req)
	if err == nil {
		return ext, nil
	}
	if e.fallback == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", dialogue.ErrExtractionFailed, err)
	}
	e.logger.Warn("llm extraction failed, using keyword fallback", "error", err.Error())
	return e.fallback.Extract(ctx, req)
}

func (e *LLMExtractor) extract(ctx context.Context, req dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{SystemPrompt(req)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: req.Text}},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("llm extraction completed",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return decodeExtraction(resp.Text, req.Text)
}

// decodeExtraction parses model output, tolerating markdown code fences.
func decodeExtraction(content, rawText string) (*dialogue.Extraction, error) {
	content = stripCodeFences(content)
	if content == "" {
		return nil, errors.New("empty model output")
	}
	var wire wireExtraction
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if wire.Intent == nil {
		return nil, errors.New("model output is missing intent")
	}
	intent, ok := dialogue.ParseIntent(*wire.Intent)
	if !ok {
		return nil, fmt.Errorf("model returned unknown intent %q", *wire.Intent)
	}

	ext := &dialogue.Extraction{
		Intent:        intent,
		ServiceType:   dialogue.ServiceType(deref(wire.ServiceType)),
		Location:      dialogue.Location(deref(wire.Location)),
		PreferredDate: deref(wire.PreferredDate),
		PatientName:   deref(wire.PatientName),
		PatientPhone:  deref(wire.PatientPhone),
		RawText:       rawText,
	}
	for _, c := range wire.Corrections {
		ext.Corrections = append(ext.Corrections, dialogue.SlotName(c))
	}
	ext.Sanitize()
	return ext, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
