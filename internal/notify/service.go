package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// ClientLookup resolves the client named in a booking.
type ClientLookup interface {
	Get(ctx context.Context, clientID string) (*clients.Client, error)
}

const sendTimeout = 10 * time.Second

// Service e-mails business owners when the assistant creates or cancels a
// booking. Failures are logged and never reach the conversation.
type Service struct {
	email      EmailSender
	businesses business.Reader
	clients    ClientLookup
	logger     *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, businesses business.Reader, clientLookup ClientLookup, logger *logging.Logger) *Service {
	if businesses == nil {
		panic("notify: business reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		businesses: businesses,
		clients:    clientLookup,
		logger:     logger,
	}
}

func (s *Service) BookingCreated(ctx context.Context, b bookings.Booking) {
	s.notify(ctx, b, "New booking", CategoryBookingCreated)
}

func (s *Service) BookingCancelled(ctx context.Context, b bookings.Booking) {
	s.notify(ctx, b, "Booking cancelled", CategoryBookingCancelled)
}

func (s *Service) notify(ctx context.Context, b bookings.Booking, title, category string) {
	if s.email == nil {
		return
	}
	logger := s.logger.With("business_id", b.BusinessID, "booking_id", b.ID)

	biz, err := s.businesses.GetBusiness(ctx, b.BusinessID)
	if err != nil {
		logger.Error("notify: load business failed", "error", err)
		return
	}
	if strings.TrimSpace(biz.OwnerEmail) == "" {
		logger.Debug("notify: no owner email, skipping")
		return
	}

	msg := s.bookingEmail(ctx, biz, b, title)
	msg.Category = category
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := s.email.Send(sendCtx, msg); err != nil {
		logger.Error("notify: failed to send owner email", "error", err, "to", biz.OwnerEmail)
		return
	}
	logger.Info("notify: owner email sent", "subject", msg.Subject)
}

func (s *Service) bookingEmail(ctx context.Context, biz *business.Business, b bookings.Booking, title string) EmailMessage {
	serviceName, staffName := b.ServiceID, b.StaffID
	if services, err := s.businesses.ListServices(ctx, biz.ID); err == nil {
		for _, svc := range services {
			if svc.ID == b.ServiceID {
				serviceName = svc.Name
			}
		}
	}
	if staff, err := s.businesses.ListStaff(ctx, biz.ID); err == nil {
		for _, st := range staff {
			if st.ID == b.StaffID {
				staffName = st.Name
			}
		}
	}

	clientName, clientPhone := "", ""
	if s.clients != nil {
		if c, err := s.clients.Get(ctx, b.ClientID); err == nil {
			clientName, clientPhone = c.Name, c.Phone
		}
	}
	if clientName == "" {
		clientName = "A client"
	}

	local := biz.Local(b.Start)
	when := local.Format("Monday, 02 Jan 2006 15:04")
	subject := fmt.Sprintf("%s: %s, %s", title, serviceName, when)

	var body strings.Builder
	fmt.Fprintf(&body, "%s at %s.\n\n", title, biz.Name)
	fmt.Fprintf(&body, "Client: %s\n", clientName)
	if clientPhone != "" {
		fmt.Fprintf(&body, "Phone: %s\n", clientPhone)
	}
	fmt.Fprintf(&body, "Service: %s\n", serviceName)
	fmt.Fprintf(&body, "Staff: %s\n", staffName)
	fmt.Fprintf(&body, "Time: %s (%s)\n", when, biz.Timezone)
	fmt.Fprintf(&body, "Booking ID: %s\n", b.ID)
	body.WriteString("\nStaffix assistant")

	return EmailMessage{
		To:         biz.OwnerEmail,
		ToName:     biz.Name,
		Subject:    subject,
		Body:       body.String(),
		BusinessID: biz.ID,
	}
}
