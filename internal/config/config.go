package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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

	// LLM providers
	LLMProvider         string
	LLMFallbackProvider string
	LLMTimeout          time.Duration
	BedrockModelID      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	OpenAIAPIKey        string
	OpenAIModel         string

	// Agent loop
	AgentMaxRounds  int
	HistoryWindow   int
	HistoryTTL      time.Duration
	SlotStepMinutes int
	MaxRangeDays    int

	// Business snapshot cache (ristretto L1, Redis L2)
	BusinessCacheLocalTTL  time.Duration
	BusinessCacheRemoteTTL time.Duration

	// Telegram channel
	TelegramAPIBaseURL      string
	TelegramDefaultBotToken string
	SenderRatePerSecond     float64
	SenderBurst             int
	WebhookRatePerSecond    float64
	WebhookBurst            int
	// SenderDryRun logs outbound messages instead of calling Telegram.
	SenderDryRun bool
	// TelegramWebhookSecret derives each bot's webhook secret_token.
	TelegramWebhookSecret string
	// PublicBaseURL is where Telegram reaches this API.
	PublicBaseURL string

	// Automation
	CronSecret           string
	AutomationSchedule   string
	ReminderLeads        []time.Duration
	ReviewDelay          time.Duration
	ReviewLookback       time.Duration
	ReactivationIdle     time.Duration
	ReactivationCooldown time.Duration
	AutomationBatchSize  int
	AutomationBatchDelay time.Duration
	SendWindowStart      string
	SendWindowEnd        string

	AdminJWTSecret string

	// Owner e-mail: "sendgrid", "ses" or "stub"
	EmailProvider string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	SESFromEmail string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		AgentMaxRounds:  getEnvAsInt("AGENT_MAX_ROUNDS", 5),
		HistoryWindow:   getEnvAsInt("HISTORY_WINDOW", 20),
		HistoryTTL:      getEnvAsDuration("HISTORY_TTL", 7*24*time.Hour),
		SlotStepMinutes: getEnvAsInt("SLOT_STEP_MINUTES", 30),
		MaxRangeDays:    getEnvAsInt("MAX_AVAILABILITY_DAYS", 14),

		BusinessCacheLocalTTL:  getEnvAsDuration("BUSINESS_CACHE_LOCAL_TTL", 30*time.Second),
		BusinessCacheRemoteTTL: getEnvAsDuration("BUSINESS_CACHE_REMOTE_TTL", 5*time.Minute),

		TelegramAPIBaseURL:      getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		TelegramDefaultBotToken: getEnv("TELEGRAM_DEFAULT_BOT_TOKEN", ""),
		SenderRatePerSecond:     getEnvAsFloat("SENDER_RATE_PER_SECOND", 25),
		SenderBurst:             getEnvAsInt("SENDER_BURST", 5),
		WebhookRatePerSecond:    getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:            getEnvAsInt("WEBHOOK_BURST", 40),
		SenderDryRun:            getEnvAsBool("SENDER_DRY_RUN", false),
		TelegramWebhookSecret:   getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		PublicBaseURL:           getEnv("PUBLIC_BASE_URL", ""),

		CronSecret:           getEnv("CRON_SECRET", ""),
		AutomationSchedule:   getEnv("AUTOMATION_SCHEDULE", "*/15 * * * *"),
		ReminderLeads:        getEnvAsDurations("REMINDER_LEADS", []time.Duration{24 * time.Hour, 2 * time.Hour}),
		ReviewDelay:          getEnvAsDuration("REVIEW_DELAY", 2*time.Hour),
		ReviewLookback:       getEnvAsDuration("REVIEW_LOOKBACK", 72*time.Hour),
		ReactivationIdle:     getEnvAsDuration("REACTIVATION_IDLE", 30*24*time.Hour),
		ReactivationCooldown: getEnvAsDuration("REACTIVATION_COOLDOWN", 30*24*time.Hour),
		AutomationBatchSize:  getEnvAsInt("AUTOMATION_BATCH_SIZE", 10),
		AutomationBatchDelay: getEnvAsDuration("AUTOMATION_BATCH_DELAY", time.Second),
		SendWindowStart:      getEnv("SEND_WINDOW_START", "09:00"),
		SendWindowEnd:        getEnv("SEND_WINDOW_END", "21:00"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		EmailProvider: strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Staffix"),

		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
	}
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

// getEnvAsDurations parses a comma-separated duration list. Any bad entry
// falls back to the default list as a whole.
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			return defaultValue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
