package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/tenancy"
	"github.com/antonbillionaire/staffix/internal/timezone"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// BookingReader is the slice of the booking engine the admin API reads.
type BookingReader interface {
	GetClientBookings(ctx context.Context, businessID, clientID string) ([]bookings.Booking, error)
	CheckAvailability(ctx context.Context, q bookings.AvailabilityQuery) (iter.Seq[bookings.Slot], error)
}

// AdminBookingsHandler serves read-only booking endpoints for operators.
// The business id comes from the tenancy scope set by the router.
type AdminBookingsHandler struct {
	engine     BookingReader
	businesses business.Reader
	logger     *logging.Logger
}

// NewAdminBookingsHandler creates a new admin bookings handler.
func NewAdminBookingsHandler(engine BookingReader, businesses business.Reader, logger *logging.Logger) *AdminBookingsHandler {
	if engine == nil || businesses == nil {
		panic("handlers: booking engine and business reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBookingsHandler{engine: engine, businesses: businesses, logger: logger}
}

// BookingResponse is a booking with times in UTC and business-local form.
type BookingResponse struct {
	ID         string `json:"id"`
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	ClientID   string `json:"client_id"`
	Status     string `json:"status"`
	Start      string `json:"start"`
	End        string `json:"end"`
	LocalStart string `json:"local_start"`
	Notes      string `json:"notes,omitempty"`
}

// SlotResponse is one free slot.
type SlotResponse struct {
	StaffID    string `json:"staff_id"`
	StaffName  string `json:"staff_name"`
	Start      string `json:"start"`
	LocalStart string `json:"local_start"`
}

const (
	defaultSlotLimit = 50
	maxSlotLimit     = 500
	localLayout      = "2006-01-02T15:04"
)

// ListClientBookings handles GET /admin/businesses/{businessID}/bookings?client_id=.
func (h *AdminBookingsHandler) ListClientBookings(w http.ResponseWriter, r *http.Request) {
	biz, ok := h.scopedBusiness(w, r)
	if !ok {
		return
	}
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if clientID == "" {
		http.Error(w, "missing client_id", http.StatusBadRequest)
		return
	}

	list, err := h.engine.GetClientBookings(r.Context(), biz.ID, clientID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	out := make([]BookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, BookingResponse{
			ID:         b.ID,
			StaffID:    b.StaffID,
			ServiceID:  b.ServiceID,
			ClientID:   b.ClientID,
			Status:     string(b.Status),
			Start:      b.Start.UTC().Format(time.RFC3339),
			End:        b.End.UTC().Format(time.RFC3339),
			LocalStart: biz.Local(b.Start).Format(localLayout),
			Notes:      b.Notes,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

// Availability handles GET /admin/businesses/{businessID}/availability.
// from is required; to defaults to from; limit caps the number of slots.
func (h *AdminBookingsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	biz, ok := h.scopedBusiness(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		http.Error(w, "missing service_id", http.StatusBadRequest)
		return
	}
	from, err := timezone.ParseDate(q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = timezone.ParseDate(raw); err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
	}
	limit := defaultSlotLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSlotLimit)
	}

	seq, err := h.engine.CheckAvailability(r.Context(), bookings.AvailabilityQuery{
		BusinessID: biz.ID,
		ServiceID:  serviceID,
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
		From:       from,
		To:         to,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	slots := bookings.Collect(seq, limit)
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			StaffID:    s.StaffID,
			StaffName:  s.StaffName,
			Start:      s.Start.UTC().Format(time.RFC3339),
			LocalStart: biz.Local(s.Start).Format(localLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"timezone": biz.Timezone, "slots": out})
}

func (h *AdminBookingsHandler) scopedBusiness(w http.ResponseWriter, r *http.Request) (*business.Business, bool) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing business scope", http.StatusBadRequest)
		return nil, false
	}
	biz, err := h.businesses.GetBusiness(r.Context(), businessID)
	if errors.Is(err, business.ErrNotFound) {
		http.Error(w, "business not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("admin: load business failed", "business_id", businessID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return biz, true
}

func (h *AdminBookingsHandler) writeEngineError(w http.ResponseWriter, err error) {
	var verr *bookings.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, bookings.ErrNotFound), errors.Is(err, business.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error("admin: booking engine failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
