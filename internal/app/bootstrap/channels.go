package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/antonbillionaire/staffix/internal/business"
	appconfig "github.com/antonbillionaire/staffix/internal/config"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/telegram"
	"github.com/antonbillionaire/staffix/internal/notify"
	"github.com/antonbillionaire/staffix/internal/observability/metrics"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

const channelTelegram = "telegram"

// TokenResolver looks bot tokens up in a store that still carries them.
// Cached snapshots strip the token, so this must be the uncached store.
func TokenResolver(store business.Reader) telegram.TokenResolver {
	return func(ctx context.Context, businessID string) (string, error) {
		b, err := store.GetBusiness(ctx, businessID)
		if errors.Is(err, business.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(b.BotToken), nil
	}
}

// BuildTelegramClient creates the Bot API client used for sending and for
// webhook registration.
func BuildTelegramClient(cfg *appconfig.Config, resolve telegram.TokenResolver, logger *logging.Logger) *telegram.Client {
	return telegram.New(telegram.Config{
		BaseURL:      cfg.TelegramAPIBaseURL,
		DefaultToken: cfg.TelegramDefaultBotToken,
		Resolve:      resolve,
		MaxRetries:   2,
		Logger:       logger,
	})
}

// BuildSender creates the outbound Telegram sender and applies the standard
// wrappers: rate limiting first, metrics outermost.
func BuildSender(cfg *appconfig.Config, resolve telegram.TokenResolver, m *metrics.MessagingMetrics, logger *logging.Logger) messaging.Sender {
	if logger == nil {
		logger = logging.Default()
	}
	var base messaging.Sender
	if cfg.SenderDryRun {
		logger.Warn("SENDER_DRY_RUN set; outbound messages are only logged")
		base = messaging.NewLogSender(logger)
	} else {
		base = BuildTelegramClient(cfg, resolve, logger)
	}
	sender := messaging.NewRateLimitedSender(base, cfg.SenderRatePerSecond, cfg.SenderBurst)
	return messaging.NewMeteredSender(sender, channelTelegram, m)
}

// BuildEmailSender picks the owner e-mail transport. Missing credentials
// degrade to the stub sender so notifications never block startup.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) == "" {
			logger.Warn("SES_FROM_EMAIL not set; owner e-mail disabled")
			return notify.NewStubEmailSender(logger)
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("ses unavailable; owner e-mail disabled", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "sendgrid":
		// NewSendGridSender yields nil without a key; keep the interface non-nil.
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			return sg
		}
		logger.Warn("SENDGRID_API_KEY not set; owner e-mail disabled")
		return notify.NewStubEmailSender(logger)
	default:
		return notify.NewStubEmailSender(logger)
	}
}
