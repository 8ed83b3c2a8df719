package messaging

import (
	"context"
	"errors"

	"github.com/antonbillionaire/staffix/internal/observability/metrics"
)

// MeteredSender counts outbound sends per channel.
type MeteredSender struct {
	next    Sender
	channel string
	metrics *metrics.MessagingMetrics
}

func NewMeteredSender(next Sender, channel string, m *metrics.MessagingMetrics) *MeteredSender {
	if next == nil {
		panic("messaging: sender required")
	}
	return &MeteredSender{next: next, channel: channel, metrics: m}
}

func (s *MeteredSender) Send(ctx context.Context, msg Outbound) SendResult {
	res := s.next.Send(ctx, msg)
	status := "sent"
	switch {
	case res.Success:
	case errors.Is(res.Err, ErrRateLimited):
		status = "rate_limited"
	case errors.Is(res.Err, ErrNotConfigured):
		status = "not_configured"
	default:
		status = "failed"
	}
	s.metrics.ObserveOutbound(s.channel, status)
	return res
}
