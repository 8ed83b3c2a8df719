package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
	"github.com/antonbillionaire/staffix/internal/timezone"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// ClientContext is what the assistant knows about the person it talks to.
type ClientContext struct {
	ClientID   string
	Name       string
	Phone      string
	Notes      string
	VisitCount int
	IsNew      bool
}

// NewClientContext is the default for a client with no stored facts.
func NewClientContext() ClientContext {
	return ClientContext{IsNew: true}
}

// BusinessContext is the tenant data a prompt is grounded on.
type BusinessContext struct {
	BusinessID    string
	Name          string
	Description   string
	Language      string
	Timezone      string
	OffsetMinutes int
	Hours         business.BusinessHours
	Services      []business.Service
	Staff         []business.Staff
	FAQ           []business.FAQEntry
	// Now is the build time in business-local wall clock.
	Now time.Time
}

// VisitCounter reports how many past visits a client has.
type VisitCounter interface {
	CountVisits(ctx context.Context, businessID, clientID string, before time.Time) (int, error)
}

// ContextBuilder assembles client and business context for a turn.
type ContextBuilder struct {
	businesses business.Reader
	clients    clients.Repository
	visits     VisitCounter
	logger     *logging.Logger
	now        func() time.Time
}

// NewContextBuilder wires the builder. visits may be nil.
func NewContextBuilder(businesses business.Reader, clientRepo clients.Repository, visits VisitCounter, logger *logging.Logger) *ContextBuilder {
	if businesses == nil {
		panic("conversation: business reader required")
	}
	if clientRepo == nil {
		panic("conversation: clients repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ContextBuilder{
		businesses: businesses,
		clients:    clientRepo,
		visits:     visits,
		logger:     logger,
		now:        time.Now,
	}
}

// BuildClientContext never fails: missing clients and store errors degrade
// to the new-client default.
func (b *ContextBuilder) BuildClientContext(ctx context.Context, businessID, clientID string) ClientContext {
	if clientID == "" {
		return NewClientContext()
	}
	c, err := b.clients.Get(ctx, clientID)
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			b.logger.Warn("client context unavailable", "business_id", businessID, "client_id", clientID, "error", err)
		}
		return NewClientContext()
	}
	if c.BusinessID != businessID {
		return NewClientContext()
	}

	out := ClientContext{
		ClientID: c.ID,
		Name:     c.Name,
		Phone:    c.Phone,
		Notes:    c.Notes,
		IsNew:    c.MessageCount == 0,
	}
	if b.visits != nil {
		visits, err := b.visits.CountVisits(ctx, businessID, clientID, b.now().UTC())
		if err != nil {
			b.logger.Warn("visit count unavailable", "business_id", businessID, "client_id", clientID, "error", err)
		} else {
			out.VisitCount = visits
			out.IsNew = out.IsNew && visits == 0
		}
	}
	return out
}

// BuildBusinessContext loads tenant data as of now; business.ErrNotFound
// when absent.
func (b *ContextBuilder) BuildBusinessContext(ctx context.Context, businessID string, now time.Time) (BusinessContext, error) {
	biz, err := b.businesses.GetBusiness(ctx, businessID)
	if err != nil {
		if errors.Is(err, business.ErrNotFound) {
			return BusinessContext{}, err
		}
		return BusinessContext{}, fmt.Errorf("conversation: load business: %w", err)
	}
	services, err := b.businesses.ListServices(ctx, businessID)
	if err != nil {
		return BusinessContext{}, fmt.Errorf("conversation: load services: %w", err)
	}
	staff, err := b.businesses.ListStaff(ctx, businessID)
	if err != nil {
		return BusinessContext{}, fmt.Errorf("conversation: load staff: %w", err)
	}
	faq, err := b.businesses.ListFAQ(ctx, businessID)
	if err != nil {
		// FAQ is optional grounding.
		b.logger.Warn("faq unavailable", "business_id", businessID, "error", err)
		faq = nil
	}

	offset, _ := timezone.Offset(biz.Timezone)
	out := BusinessContext{
		BusinessID:    biz.ID,
		Name:          biz.Name,
		Description:   biz.Description,
		Language:      biz.Language,
		Timezone:      biz.Timezone,
		OffsetMinutes: offset,
		Hours:         biz.Hours,
		FAQ:           faq,
		Now:           timezone.ToLocal(now, biz.Timezone),
	}
	for _, svc := range services {
		if svc.Active {
			out.Services = append(out.Services, svc)
		}
	}
	for _, st := range staff {
		if st.Active {
			out.Staff = append(out.Staff, st)
		}
	}
	return out, nil
}

// WithExtracted overlays facts found in the current message.
func (c ClientContext) WithExtracted(fields ExtractedFields) ClientContext {
	merged := MergeClientFacts(clients.Facts{Name: c.Name, Phone: c.Phone}, fields)
	c.Name = merged.Name
	c.Phone = merged.Phone
	return c
}

// UpdateClientAfterMessage merges extracted facts into the stored client,
// stamps the interaction time and bumps the message count.
func (b *ContextBuilder) UpdateClientAfterMessage(ctx context.Context, clientID string, fields ExtractedFields, at time.Time) error {
	c, err := b.clients.Get(ctx, clientID)
	if err != nil {
		return err
	}
	merged := MergeClientFacts(clients.Facts{Name: c.Name, Phone: c.Phone}, fields)
	if err := b.clients.RecordInteraction(ctx, clientID, merged, at.UTC()); err != nil {
		return fmt.Errorf("conversation: update client: %w", err)
	}
	return nil
}

// UpdateConversationMessageCount increments the counter. It is not
// idempotent: every call counts.
func (b *ContextBuilder) UpdateConversationMessageCount(ctx context.Context, conversationID string) (int, error) {
	n, err := b.clients.IncrementConversation(ctx, conversationID, b.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("conversation: update conversation count: %w", err)
	}
	return n, nil
}
