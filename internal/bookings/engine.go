package bookings

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

var bookingsTracer = otel.Tracer("staffix.internal.bookings")

const (
	defaultSlotStep     = 30 * time.Minute
	defaultMaxRangeDays = 14
)

// Engine owns availability search and booking state transitions.
type Engine struct {
	reader       business.Reader
	repo         Repository
	step         time.Duration
	maxRangeDays int
	now          func() time.Time
	logger       *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSlotStep sets the grid used to enumerate candidate starts.
func WithSlotStep(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.step = step
		}
	}
}

// WithMaxRangeDays caps the number of days one availability query may span.
func WithMaxRangeDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.maxRangeDays = days
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs a booking engine.
func NewEngine(reader business.Reader, repo Repository, opts ...Option) *Engine {
	if reader == nil {
		panic("bookings: business reader required")
	}
	if repo == nil {
		panic("bookings: repository required")
	}
	e := &Engine{
		reader:       reader,
		repo:         repo,
		step:         defaultSlotStep,
		maxRangeDays: defaultMaxRangeDays,
		now:          time.Now,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetServicesList returns the active services of a business.
func (e *Engine) GetServicesList(ctx context.Context, businessID string) ([]business.Service, error) {
	if _, err := e.business(ctx, businessID); err != nil {
		return nil, err
	}
	services, err := e.reader.ListServices(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list services: %w", err)
	}
	return services, nil
}

// GetStaffList returns the active staff of a business in position order.
func (e *Engine) GetStaffList(ctx context.Context, businessID string) ([]business.Staff, error) {
	if _, err := e.business(ctx, businessID); err != nil {
		return nil, err
	}
	staff, err := e.reader.ListStaff(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list staff: %w", err)
	}
	return staff, nil
}

// AvailabilityQuery selects slots for one service. From and To are local
// calendar dates, both inclusive. StaffID is optional.
type AvailabilityQuery struct {
	BusinessID string
	ServiceID  string
	StaffID    string
	From       time.Time
	To         time.Time
}

// CheckAvailability returns a lazy sequence of free slots ordered by start
// time, ties broken by staff position. Time-off and bookings are read once
// when the call is made.
func (e *Engine) CheckAvailability(ctx context.Context, q AvailabilityQuery) (iter.Seq[Slot], error) {
	from := calendarDate(q.From)
	to := calendarDate(q.To)
	if to.Before(from) {
		return nil, invalid("date_to", "must not be before date_from")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > e.maxRangeDays {
		return nil, invalid("date_to", fmt.Sprintf("range may span at most %d days", e.maxRangeDays))
	}

	p, err := e.plan(ctx, q.BusinessID, q.ServiceID, q.StaffID, from, to)
	if err != nil {
		return nil, err
	}
	return p.slots(from, to), nil
}

// CreateRequest asks for a booking starting at Start (UTC).
type CreateRequest struct {
	BusinessID string
	ServiceID  string
	StaffID    string
	ClientID   string
	Start      time.Time
	Notes      string
}

// CreateBooking validates the slot and inserts it atomically. A slot taken
// since it was listed yields ErrSlotConflict and nothing is written.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("staffix.business_id", req.BusinessID),
		attribute.String("staffix.staff_id", req.StaffID),
		attribute.String("staffix.service_id", req.ServiceID),
	)

	if strings.TrimSpace(req.ClientID) == "" {
		return nil, invalid("client_id", "required")
	}
	if strings.TrimSpace(req.StaffID) == "" {
		return nil, invalid("staff_id", "required")
	}
	start := req.Start.UTC()
	if start.IsZero() {
		return nil, invalid("start_time", "required")
	}

	biz, err := e.business(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	localDay := calendarDate(biz.Local(start))
	p, err := e.plan(ctx, req.BusinessID, req.ServiceID, req.StaffID, localDay, localDay)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !start.After(p.now) {
		return nil, invalid("start_time", "must be in the future")
	}
	if !p.withinHours(start) {
		return nil, invalid("start_time", "outside business hours")
	}
	if !p.free(req.StaffID, start) {
		return nil, ErrSlotConflict
	}

	end := start.Add(p.service.Duration())
	b := &Booking{
		BusinessID:   req.BusinessID,
		StaffID:      req.StaffID,
		ServiceID:    req.ServiceID,
		ClientID:     req.ClientID,
		Start:        start,
		End:          end,
		BlockedUntil: end.Add(biz.Buffer()),
		Status:       StatusConfirmed,
		Notes:        strings.TrimSpace(req.Notes),
	}
	if err := e.repo.InsertIfFree(ctx, b); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("bookings: create: %w", err)
	}
	e.logger.Info("booking created",
		"business_id", b.BusinessID, "booking_id", b.ID, "staff_id", b.StaffID, "start", b.Start)
	return b, nil
}

// SuggestAlternatives lists up to limit free slots near a rejected request,
// preferring the requested staff member and day.
func (e *Engine) SuggestAlternatives(ctx context.Context, req CreateRequest, limit int) ([]Slot, error) {
	biz, err := e.business(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	day := calendarDate(biz.Local(req.Start))
	seq, err := e.CheckAvailability(ctx, AvailabilityQuery{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		StaffID:    req.StaffID,
		From:       day,
		To:         day.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, err
	}
	alts := Collect(seq, limit)
	if len(alts) > 0 || req.StaffID == "" {
		return alts, nil
	}
	req.StaffID = ""
	return e.SuggestAlternatives(ctx, req, limit)
}

// GetClientBookings lists every booking of a client ordered by start.
func (e *Engine) GetClientBookings(ctx context.Context, businessID, clientID string) ([]Booking, error) {
	out, err := e.repo.ListByClient(ctx, businessID, clientID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list client bookings: %w", err)
	}
	return out, nil
}

// CancelBooking cancels a booking owned by clientID. Cancelling twice
// returns the already-cancelled record with changed=false.
func (e *Engine) CancelBooking(ctx context.Context, businessID, bookingID, clientID string) (*Booking, bool, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("staffix.business_id", businessID),
		attribute.String("staffix.booking_id", bookingID),
	)

	b, changed, err := e.repo.Cancel(ctx, businessID, bookingID, clientID, e.now().UTC())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrValidation) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("bookings: cancel: %w", err)
	}
	if changed {
		e.logger.Info("booking cancelled", "business_id", businessID, "booking_id", bookingID)
	}
	return b, changed, nil
}

// UpcomingBookings returns confirmed bookings starting in (from, to].
func (e *Engine) UpcomingBookings(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	return e.repo.ListStartingBetween(ctx, businessID, from, to)
}

// EndedBookings returns confirmed or completed bookings that ended in [from, to].
func (e *Engine) EndedBookings(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	return e.repo.ListEndedBetween(ctx, businessID, from, to)
}

// MarkCompleted moves a confirmed booking to completed.
func (e *Engine) MarkCompleted(ctx context.Context, bookingID string) error {
	return e.repo.MarkCompleted(ctx, bookingID, e.now().UTC())
}

// AppendNote adds a line to the booking notes.
func (e *Engine) AppendNote(ctx context.Context, bookingID, note string) error {
	return e.repo.AppendNote(ctx, bookingID, note)
}

// CountVisits counts non-cancelled bookings of a client that started before t.
func (e *Engine) CountVisits(ctx context.Context, businessID, clientID string, before time.Time) (int, error) {
	return e.repo.CountVisits(ctx, businessID, clientID, before)
}

// ServiceByID finds an active service.
func (e *Engine) ServiceByID(ctx context.Context, businessID, serviceID string) (business.Service, error) {
	services, err := e.reader.ListServices(ctx, businessID)
	if err != nil {
		return business.Service{}, fmt.Errorf("bookings: list services: %w", err)
	}
	for _, svc := range services {
		if svc.ID == serviceID {
			return svc, nil
		}
	}
	return business.Service{}, ErrNotFound
}

// plan loads everything needed to judge slots for one service over the
// local dates [from, to].
func (e *Engine) plan(ctx context.Context, businessID, serviceID, staffID string, from, to time.Time) (*planner, error) {
	biz, err := e.business(ctx, businessID)
	if err != nil {
		return nil, err
	}
	svc, err := e.ServiceByID(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.DurationMinutes <= 0 {
		return nil, invalid("service_id", "service has no duration")
	}
	staff, err := e.reader.ListStaff(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list staff: %w", err)
	}

	var candidates []business.Staff
	for _, st := range staff {
		if staffID != "" && st.ID != staffID {
			continue
		}
		if !st.Offers(svc.ID) {
			if staffID != "" {
				return nil, invalid("staff_id", "staff member does not offer this service")
			}
			continue
		}
		candidates = append(candidates, st)
	}
	if staffID != "" && len(candidates) == 0 {
		return nil, ErrNotFound
	}

	// Pad the window by a day on each side so every fixed offset and any
	// buffer is covered.
	windowStart := from.AddDate(0, 0, -1)
	windowEnd := to.AddDate(0, 0, 2)
	offs, err := e.reader.ListTimeOff(ctx, businessID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("bookings: list time off: %w", err)
	}
	ids := make([]string, 0, len(candidates))
	for _, st := range candidates {
		ids = append(ids, st.ID)
	}
	var booked []Booking
	if len(ids) > 0 {
		booked, err = e.repo.ListBlocking(ctx, businessID, ids, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("bookings: list blocking: %w", err)
		}
	}
	return newPlanner(biz, svc, candidates, offs, booked, e.now().UTC(), e.step), nil
}

func (e *Engine) business(ctx context.Context, businessID string) (*business.Business, error) {
	biz, err := e.reader.GetBusiness(ctx, businessID)
	if errors.Is(err, business.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load business: %w", err)
	}
	return biz, nil
}

// calendarDate strips the clock and location, keeping the calendar fields.
func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
