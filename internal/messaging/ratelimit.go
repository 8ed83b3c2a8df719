package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedSender caps the outbound send rate of the wrapped sender.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond sends with the given burst.
func NewRateLimitedSender(next Sender, perSecond float64, burst int) *RateLimitedSender {
	if next == nil {
		panic("messaging: sender required")
	}
	if perSecond <= 0 {
		perSecond = 25
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSender{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token. If none is available before ctx ends the message
// fails with ErrRateLimited and nothing is sent.
func (s *RateLimitedSender) Send(ctx context.Context, msg Outbound) SendResult {
	if err := s.limiter.Wait(ctx); err != nil {
		return Failed(fmt.Errorf("%w: %v", ErrRateLimited, err))
	}
	return s.next.Send(ctx, msg)
}
