package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database (optional; the JSON file store is used when unset)
	DatabaseURL string

	// JWT
	JWTSecret string

	// LLM
	GroqAPIKey     string
	LLMModel       string
	LLMBaseURL     string
	LLMTemperature float64
	LLMMaxRetries  int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTokenFile    string

	// OAuth - Microsoft
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenantID     string
	MicrosoftTokenFile    string

	// Sheet
	SpreadsheetID string
	SheetRange    string

	// Cache
	CachePath    string
	CacheTTL     time.Duration
	DraftsPath   string
	PollInterval time.Duration
	FetchLimit   int

	// Classifier weight overrides
	KeywordWeight        float64
	DomainHintWeight     float64
	SenderOverrideWeight float64
	UrgencyBoost         float64

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 5),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/oauth/google/callback"),
		GoogleTokenFile:    getEnv("GOOGLE_TOKEN_FILE", "google_token.json"),

		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),
		MicrosoftTokenFile:    getEnv("MICROSOFT_TOKEN_FILE", "microsoft_token.json"),

		SpreadsheetID: getEnv("SPREADSHEET_ID", ""),
		SheetRange:    getEnv("SHEET_RANGE", "Summaries"),

		CachePath:    getEnv("CACHE_PATH", "summary_cache.json"),
		CacheTTL:     time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)) * time.Hour,
		DraftsPath:   getEnv("DRAFTS_PATH", "reply_drafts.json"),
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SEC", 300)) * time.Second,
		FetchLimit:   getEnvInt("FETCH_LIMIT", 25),

		KeywordWeight:        getEnvFloat("CLASSIFIER_KEYWORD_WEIGHT", 2),
		DomainHintWeight:     getEnvFloat("CLASSIFIER_DOMAIN_WEIGHT", 1),
		SenderOverrideWeight: getEnvFloat("CLASSIFIER_SENDER_WEIGHT", 6),
		UrgencyBoost:         getEnvFloat("CLASSIFIER_URGENCY_BOOST", 4),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
