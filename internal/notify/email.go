package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/antonbillionaire/staffix/pkg/logging"
)

// ErrInvalidEmail rejects an owner notification before any provider call.
var ErrInvalidEmail = errors.New("notify: invalid email")

const (
	defaultFromName = "Staffix"

	CategoryBookingCreated   = "booking-created"
	CategoryBookingCancelled = "booking-cancelled"
)

// EmailSender delivers owner notifications.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one notification to a business owner. BusinessID and
// Category are attached as provider metadata for bounce and open tracking.
type EmailMessage struct {
	To         string
	ToName     string
	Subject    string
	Body       string
	HTML       string
	BusinessID string
	Category   string
}

func (m EmailMessage) validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q", ErrInvalidEmail, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidEmail)
	}
	if m.Body == "" && m.HTML == "" {
		return fmt.Errorf("%w: body required", ErrInvalidEmail)
	}
	return nil
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers owner notifications through the SendGrid v3 API.
type SendGridSender struct {
	client    sendGridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key; callers pick the stub.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		sgmail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		html,
	)
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}
	if msg.BusinessID != "" && len(message.Personalizations) > 0 {
		message.Personalizations[0].SetCustomArg("business_id", msg.BusinessID)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected owner email", "business_id", msg.BusinessID, "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Debug("owner email accepted by sendgrid", "business_id", msg.BusinessID, "category", msg.Category)
	return nil
}

// StubEmailSender writes owner notifications to the log. It backs
// EMAIL_PROVIDER=stub and providers missing credentials.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("owner email not sent, no provider configured",
		"business_id", msg.BusinessID, "category", msg.Category, "subject", msg.Subject)
	return nil
}
