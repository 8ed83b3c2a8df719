// Package messaging is the outbound channel boundary: a Sender delivers one
// text to one chat and reports the outcome.
package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/antonbillionaire/staffix/pkg/logging"
)

var (
	// ErrRateLimited means no send slot was available before the deadline.
	ErrRateLimited = errors.New("messaging: rate limited")
	// ErrNotConfigured means the business has no usable channel credentials.
	ErrNotConfigured = errors.New("messaging: channel not configured")
)

// Outbound is one message to a client chat.
type Outbound struct {
	BusinessID string
	ChannelID  string
	Text       string
}

// SendResult reports a single delivery attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Err       error
}

// Failed builds an unsuccessful result.
func Failed(err error) SendResult {
	return SendResult{Err: err}
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg Outbound) SendResult
}

// LogSender only logs messages. Used in development when no channel is
// configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Outbound) SendResult {
	if strings.TrimSpace(msg.ChannelID) == "" {
		return Failed(errors.New("messaging: channel id required"))
	}
	s.logger.Info("outbound message (log sender)",
		"business_id", msg.BusinessID,
		"channel_id", msg.ChannelID,
		"length", len(msg.Text),
	)
	return SendResult{Success: true, MessageID: "log"}
}
