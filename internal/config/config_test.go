package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "LLM_PROVIDER", "REMINDER_LEADS", "AGENT_MAX_ROUNDS", "REACTIVATION_IDLE", "EMAIL_PROVIDER", "BUSINESS_CACHE_LOCAL_TTL"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "bedrock", cfg.LLMProvider)
	assert.Equal(t, 5, cfg.AgentMaxRounds)
	assert.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour}, cfg.ReminderLeads)
	assert.Equal(t, 720*time.Hour, cfg.ReactivationIdle)
	assert.Equal(t, "*/15 * * * *", cfg.AutomationSchedule)
	assert.Equal(t, "sendgrid", cfg.EmailProvider)
	assert.Equal(t, 30*time.Second, cfg.BusinessCacheLocalTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", " OpenAI ")
	t.Setenv("AGENT_MAX_ROUNDS", "3")
	t.Setenv("REMINDER_LEADS", "48h, 1h")
	t.Setenv("REVIEW_DELAY", "90m")
	t.Setenv("SENDER_RATE_PER_SECOND", "2.5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EMAIL_PROVIDER", "SES")
	t.Setenv("WEBHOOK_BURST", "7")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("PUBLIC_BASE_URL", "https://api.staffix.io")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 3, cfg.AgentMaxRounds)
	assert.Equal(t, []time.Duration{48 * time.Hour, time.Hour}, cfg.ReminderLeads)
	assert.Equal(t, 90*time.Minute, cfg.ReviewDelay)
	assert.InDelta(t, 2.5, cfg.SenderRatePerSecond, 0.0001)
	assert.True(t, cfg.RedisTLS)
	assert.Equal(t, "ses", cfg.EmailProvider)
	assert.Equal(t, 7, cfg.WebhookBurst)
	assert.Equal(t, "hook-secret", cfg.TelegramWebhookSecret)
	assert.Equal(t, "https://api.staffix.io", cfg.PublicBaseURL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AGENT_MAX_ROUNDS", "many")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("REMINDER_LEADS", "24h,tomorrow")

	cfg := Load()

	assert.Equal(t, 5, cfg.AgentMaxRounds)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour}, cfg.ReminderLeads)
}
