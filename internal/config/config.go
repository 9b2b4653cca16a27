package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Language model
	BedrockModelID    string
	GeminiAPIKey      string
	GeminiModelID     string
	LLMTimeout        time.Duration
	LLMScoringEnabled bool

	// Recommendation
	SendThreshold       int
	WaitThreshold       int
	RecentContactWindow time.Duration
	AIScoreWeight       float64

	// Draft assembly
	BatchConcurrency   int
	BlockSeparator     string
	SendIdempotencyTTL time.Duration

	// Collaborators
	ActivityTable          string
	ActivityQueueURL       string
	TemplateSnapshotBucket string
	TemplateCacheTTL       time.Duration
	SystemTemplatesPath    string
	CORSAllowedOrigins     []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 8*time.Second),
		LLMScoringEnabled: getEnvAsBool("LLM_SCORING_ENABLED", false),

		SendThreshold:       getEnvAsInt("SEND_THRESHOLD", 70),
		WaitThreshold:       getEnvAsInt("WAIT_THRESHOLD", 40),
		RecentContactWindow: getEnvAsDuration("RECENT_CONTACT_WINDOW", 24*time.Hour),
		AIScoreWeight:       getEnvAsFloat("AI_SCORE_WEIGHT", 0.5),

		BatchConcurrency:   getEnvAsInt("BATCH_CONCURRENCY", 4),
		BlockSeparator:     unescape(getEnv("BLOCK_SEPARATOR", `\n\n`)),
		SendIdempotencyTTL: getEnvAsDuration("SEND_IDEMPOTENCY_TTL", 24*time.Hour),

		ActivityTable:          getEnv("ACTIVITY_TABLE", ""),
		ActivityQueueURL:       getEnv("ACTIVITY_QUEUE_URL", ""),
		TemplateSnapshotBucket: getEnv("TEMPLATE_SNAPSHOT_BUCKET", ""),
		TemplateCacheTTL:       getEnvAsDuration("TEMPLATE_CACHE_TTL", 5*time.Minute),
		SystemTemplatesPath:    getEnv("SYSTEM_TEMPLATES_PATH", ""),
		CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// LLMConfigured reports whether any language-model provider is set up.
func (c *Config) LLMConfigured() bool {
	return c.BedrockModelID != "" || c.GeminiAPIKey != ""
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// unescape turns \n and \t written in an env file into real characters.
func unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(s)
}
