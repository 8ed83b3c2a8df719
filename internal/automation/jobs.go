package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/compliance"
)

// reminderKind is the claim kind for one lead, e.g. "reminder:24h".
func reminderKind(lead time.Duration) string {
	return kindReminder + ":" + formatLead(lead)
}

func formatLead(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}

// dueLeads returns the leads (sorted ascending) already reached for a booking
// starting at start. The first one is the reminder to send; the rest are
// superseded.
func dueLeads(leads []time.Duration, start, now time.Time) []time.Duration {
	until := start.Sub(now)
	for i, lead := range leads {
		if until <= lead {
			return leads[i:]
		}
	}
	return nil
}

func (s *Scheduler) remindersFor(ctx context.Context, biz *business.Business, now time.Time, sum *JobSummary) error {
	maxLead := s.cfg.ReminderLeads[len(s.cfg.ReminderLeads)-1]
	upcoming, err := s.bookings.UpcomingBookings(ctx, biz.ID, now, now.Add(maxLead))
	if err != nil {
		return fmt.Errorf("list upcoming bookings: %w", err)
	}

	var items []delivery
	for _, b := range upcoming {
		sum.Processed++
		due := dueLeads(s.cfg.ReminderLeads, b.Start, now)
		if len(due) == 0 {
			sum.Skipped++
			continue
		}
		client, err := s.lookupClient(ctx, b.ClientID)
		if err != nil {
			s.itemFailed(sum, b.ID, err)
			continue
		}
		if client == nil {
			sum.Skipped++
			continue
		}

		kind := reminderKind(due[0])
		claimed, err := s.runs.Claim(ctx, kind, b.ID)
		if err != nil {
			s.itemFailed(sum, b.ID, err)
			continue
		}
		if !claimed {
			sum.Skipped++
			continue
		}
		for _, lead := range due[1:] {
			if _, err := s.runs.Claim(ctx, reminderKind(lead), b.ID); err != nil {
				s.logger.Warn("claim superseded reminder failed", "booking_id", b.ID, "lead", formatLead(lead), "error", err)
			}
		}

		local := biz.Local(b.Start)
		text, err := renderMessage(s.renderer, kindReminder, biz.Language, messageData{
			ClientName:   client.Name,
			BusinessName: biz.Name,
			ServiceName:  s.serviceName(ctx, biz.ID, b.ServiceID),
			Date:         localDate(local),
			Time:         localClock(local),
		})
		if err != nil {
			s.releaseLogged(ctx, kind, b.ID)
			s.itemFailed(sum, b.ID, err)
			continue
		}
		items = append(items, s.bookingDelivery(biz.ID, client.ChannelID, text, b, kind, now))
	}
	s.deliver(ctx, items, sum)
	return nil
}

func (s *Scheduler) reviewsFor(ctx context.Context, biz *business.Business, now time.Time, sum *JobSummary) error {
	ended, err := s.bookings.EndedBookings(ctx, biz.ID, now.Add(-s.cfg.ReviewLookback), now.Add(-s.cfg.ReviewDelay))
	if err != nil {
		return fmt.Errorf("list ended bookings: %w", err)
	}
	if len(ended) == 0 {
		return nil
	}
	if !s.cfg.Window.Allows(biz.Local(now), compliance.PurposeMarketing) {
		sum.Processed += len(ended)
		sum.Skipped += len(ended)
		return nil
	}

	var items []delivery
	for _, b := range ended {
		sum.Processed++
		client, err := s.lookupClient(ctx, b.ClientID)
		if err != nil {
			s.itemFailed(sum, b.ID, err)
			continue
		}
		if client == nil {
			sum.Skipped++
			continue
		}
		claimed, err := s.runs.Claim(ctx, kindReview, b.ID)
		if err != nil {
			s.itemFailed(sum, b.ID, err)
			continue
		}
		if !claimed {
			sum.Skipped++
			continue
		}
		if b.Status == bookings.StatusConfirmed {
			if err := s.bookings.MarkCompleted(ctx, b.ID); err != nil {
				s.releaseLogged(ctx, kindReview, b.ID)
				s.itemFailed(sum, b.ID, err)
				continue
			}
		}
		text, err := renderMessage(s.renderer, kindReview, biz.Language, messageData{
			ClientName:   client.Name,
			BusinessName: biz.Name,
			ServiceName:  s.serviceName(ctx, biz.ID, b.ServiceID),
		})
		if err != nil {
			s.releaseLogged(ctx, kindReview, b.ID)
			s.itemFailed(sum, b.ID, err)
			continue
		}
		items = append(items, s.bookingDelivery(biz.ID, client.ChannelID, text, b, kindReview, now))
	}
	s.deliver(ctx, items, sum)
	return nil
}

func (s *Scheduler) reactivationFor(ctx context.Context, biz *business.Business, now time.Time, sum *JobSummary) error {
	cooldownBefore := now.Add(-s.cfg.ReactivationCooldown)
	idle, err := s.clients.ListIdle(ctx, biz.ID, now.Add(-s.cfg.ReactivationIdle), cooldownBefore)
	if err != nil {
		return fmt.Errorf("list idle clients: %w", err)
	}
	if len(idle) == 0 {
		return nil
	}
	if !s.cfg.Window.Allows(biz.Local(now), compliance.PurposeMarketing) {
		sum.Processed += len(idle)
		sum.Skipped += len(idle)
		return nil
	}

	var items []delivery
	for _, c := range idle {
		sum.Processed++
		if c.ChannelID == "" {
			sum.Skipped++
			continue
		}
		prev, claimed, err := s.clients.ClaimReactivation(ctx, c.ID, now, cooldownBefore)
		if err != nil {
			s.itemFailed(sum, c.ID, err)
			continue
		}
		if !claimed {
			sum.Skipped++
			continue
		}
		text, err := renderMessage(s.renderer, kindReactivation, biz.Language, messageData{
			ClientName:   c.Name,
			BusinessName: biz.Name,
		})
		if err != nil {
			s.releaseReactivation(ctx, c.ID, now, prev)
			s.itemFailed(sum, c.ID, err)
			continue
		}
		clientID := c.ID
		items = append(items, delivery{
			targetID: clientID,
			out:      messaging.Outbound{BusinessID: biz.ID, ChannelID: c.ChannelID, Text: text},
			onFail: func(ctx context.Context, err error) {
				s.releaseReactivation(ctx, clientID, now, prev)
				if noteErr := s.clients.AppendNote(ctx, clientID, failureNote(kindReactivation, now, err)); noteErr != nil {
					s.logger.Error("record failure on client failed", "client_id", clientID, "error", noteErr)
				}
			},
		})
	}
	s.deliver(ctx, items, sum)
	return nil
}

func (s *Scheduler) bookingDelivery(businessID, channelID, text string, b bookings.Booking, kind string, now time.Time) delivery {
	return delivery{
		targetID: b.ID,
		out:      messaging.Outbound{BusinessID: businessID, ChannelID: channelID, Text: text},
		onFail: func(ctx context.Context, err error) {
			s.releaseLogged(ctx, kind, b.ID)
			if noteErr := s.bookings.AppendNote(ctx, b.ID, failureNote(kind, now, err)); noteErr != nil {
				s.logger.Error("record failure on booking failed", "booking_id", b.ID, "error", noteErr)
			}
		},
	}
}

func (s *Scheduler) releaseReactivation(ctx context.Context, clientID string, at time.Time, prev *time.Time) {
	if err := s.clients.ReleaseReactivation(ctx, clientID, at, prev); err != nil {
		s.logger.Error("release reactivation failed", "client_id", clientID, "error", err)
	}
}

func (s *Scheduler) itemFailed(sum *JobSummary, targetID string, err error) {
	sum.Failed++
	s.logger.Error("automation item failed", "job", sum.Job, "target_id", targetID, "error", err)
}
