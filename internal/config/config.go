package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Telephony
	TwilioAuthToken       string
	TwilioValidateRequest bool

	// Clinic directory and dialogue
	ClinicDataPath string
	SearchDays     int
	MaxOffers      int

	// Call sessions
	SessionBackend   string // memory | redis
	SessionTTL       time.Duration
	EvictionInterval time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool

	// Persistence for appointments and the turn audit log
	DatabaseURL string

	// Entity extraction
	ExtractorProvider     string // keyword | bedrock | gemini | bedrock+gemini
	ExtractionTimeout     time.Duration
	KeywordFallback       bool
	BreakerFailures       int
	BreakerOpenTimeout    time.Duration
	BedrockModelID        string
	GeminiAPIKey          string
	GeminiModelID         string
	ExtractionMaxTokens   int
	ExtractionTemperature float64

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Google Calendar sync
	GoogleCalendarCredentialsJSON string
	GoogleCalendarID              string

	// Booking notifications
	NotifyProvider    string // sendgrid | ses | stub
	NotifyRecipients  []string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	SESConfigSet      string

	// Transcript archive
	TranscriptBucket string

	// Admin surface
	AdminJWTSecret string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TwilioAuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateRequest: getEnvAsBool("TWILIO_VALIDATE_REQUESTS", true),

		ClinicDataPath: getEnv("CLINIC_DATA_PATH", ""),
		SearchDays:     getEnvAsInt("SLOT_SEARCH_DAYS", 1),
		MaxOffers:      getEnvAsInt("MAX_OFFERS", 3),

		SessionBackend:   strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		EvictionInterval: getEnvAsDuration("SESSION_EVICTION_INTERVAL", time.Hour),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ExtractorProvider:     strings.ToLower(strings.TrimSpace(getEnv("EXTRACTOR_PROVIDER", "keyword"))),
		ExtractionTimeout:     getEnvAsDuration("EXTRACTION_TIMEOUT", 8*time.Second),
		KeywordFallback:       getEnvAsBool("EXTRACTION_KEYWORD_FALLBACK", true),
		BreakerFailures:       getEnvAsInt("EXTRACTION_BREAKER_FAILURES", 5),
		BreakerOpenTimeout:    getEnvAsDuration("EXTRACTION_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		ExtractionMaxTokens:   getEnvAsInt("EXTRACTION_MAX_TOKENS", 400),
		ExtractionTemperature: getEnvAsFloat("EXTRACTION_TEMPERATURE", 0),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		GoogleCalendarCredentialsJSON: getEnv("GOOGLE_CALENDAR_CREDENTIALS_JSON", ""),
		GoogleCalendarID:              getEnv("GOOGLE_CALENDAR_ID", "primary"),

		NotifyProvider:    strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_PROVIDER", "stub"))),
		NotifyRecipients:  getEnvAsList("NOTIFY_RECIPIENTS"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Front Desk"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Clinic Front Desk"),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),

		TranscriptBucket: getEnv("TRANSCRIPT_BUCKET", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// UsesRedisSessions reports whether call sessions should live in Redis.
func (c *Config) UsesRedisSessions() bool {
	return c != nil && c.SessionBackend == "redis"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
