package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/telegram"
	"github.com/antonbillionaire/staffix/internal/tenancy"
)

// Sunday 2026-03-01 00:00 UTC.
var handlerNow = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func newAdminHandler(t *testing.T) (*AdminBookingsHandler, *bookings.Engine) {
	t.Helper()
	store := business.NewMemoryStore()
	day := &business.DayHours{Open: "09:00", Close: "18:00"}
	store.PutBusiness(business.Business{
		ID:       "biz",
		Name:     "Barbershop Aziz",
		Timezone: "Asia/Tashkent",
		Hours:    business.BusinessHours{Monday: day},
	})
	store.AddService(business.Service{ID: "cut", BusinessID: "biz", Name: "Haircut", DurationMinutes: 60, Active: true})
	store.AddStaff(business.Staff{ID: "aziz", BusinessID: "biz", Name: "Aziz", Active: true})

	engine := bookings.NewEngine(store, bookings.NewMemoryRepository(),
		bookings.WithClock(func() time.Time { return handlerNow }),
		bookings.WithSlotStep(time.Hour),
	)
	return NewAdminBookingsHandler(engine, store, nil), engine
}

func scoped(req *http.Request, businessID string) *http.Request {
	return req.WithContext(tenancy.WithBusinessID(req.Context(), businessID))
}

func TestListClientBookings(t *testing.T) {
	h, engine := newAdminHandler(t)
	_, err := engine.CreateBooking(context.Background(), bookings.CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "ali",
		Start: time.Date(2026, time.March, 2, 5, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ListClientBookings(rec, scoped(httptest.NewRequest(http.MethodGet, "/admin/businesses/biz/bookings?client_id=ali", nil), "biz"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Bookings []BookingResponse `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bookings, 1)
	assert.Equal(t, "2026-03-02T10:00", body.Bookings[0].LocalStart)
	assert.Equal(t, "2026-03-02T05:00:00Z", body.Bookings[0].Start)
}

func TestListClientBookingsRequiresClient(t *testing.T) {
	h, _ := newAdminHandler(t)
	rec := httptest.NewRecorder()
	h.ListClientBookings(rec, scoped(httptest.NewRequest(http.MethodGet, "/", nil), "biz"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailability(t *testing.T) {
	h, _ := newAdminHandler(t)

	tests := []struct {
		name  string
		scope string
		query string
		want  int
		slots int
	}{
		{"limited", "biz", "service_id=cut&from=2026-03-02&limit=2", http.StatusOK, 2},
		{"full day", "biz", "service_id=cut&from=2026-03-02", http.StatusOK, 9},
		{"unknown service", "biz", "service_id=nope&from=2026-03-02", http.StatusNotFound, 0},
		{"inverted range", "biz", "service_id=cut&from=2026-03-05&to=2026-03-02", http.StatusBadRequest, 0},
		{"bad date", "biz", "service_id=cut&from=tomorrow", http.StatusBadRequest, 0},
		{"missing service", "biz", "from=2026-03-02", http.StatusBadRequest, 0},
		{"unknown business", "ghost", "service_id=cut&from=2026-03-02", http.StatusNotFound, 0},
		{"no scope", "", "service_id=cut&from=2026-03-02", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/availability?"+tt.query, nil)
			if tt.scope != "" {
				req = scoped(req, tt.scope)
			}
			rec := httptest.NewRecorder()
			h.Availability(rec, req)

			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want != http.StatusOK {
				return
			}
			var body struct {
				Timezone string         `json:"timezone"`
				Slots    []SlotResponse `json:"slots"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Asia/Tashkent", body.Timezone)
			require.Len(t, body.Slots, tt.slots)
			assert.Equal(t, "2026-03-02T09:00", body.Slots[0].LocalStart)
		})
	}
}

func TestHealth(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	Health(map[string]Pinger{"postgres": ok, "redis": ok})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Health(map[string]Pinger{"postgres": ok, "redis": down})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

type recordingInvalidator struct {
	ids []string
	err error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, businessID string) error {
	r.ids = append(r.ids, businessID)
	return r.err
}

func TestAdminCacheInvalidate(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewAdminCacheHandler(inv, nil)

	rec := httptest.NewRecorder()
	h.Invalidate(rec, scoped(httptest.NewRequest(http.MethodPost, "/admin/businesses/biz/cache/invalidate", nil), "biz"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"biz"}, inv.ids)

	inv.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.Invalidate(rec, scoped(httptest.NewRequest(http.MethodPost, "/admin/businesses/biz/cache/invalidate", nil), "biz"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "/admin/businesses/biz/cache/invalidate", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type recordingRegistrar struct {
	businessID, url, token string
	err                    error
}

func (r *recordingRegistrar) SetWebhook(_ context.Context, businessID, url, secretToken string) error {
	r.businessID, r.url, r.token = businessID, url, secretToken
	return r.err
}

func TestAdminWebhookRegister(t *testing.T) {
	reg := &recordingRegistrar{}
	h := NewAdminWebhookHandler(reg, "https://api.example.com/", "deploy-secret", nil)
	newReq := func() *http.Request {
		return scoped(httptest.NewRequest(http.MethodPost, "/admin/businesses/biz/telegram/webhook", nil), "biz")
	}

	rec := httptest.NewRecorder()
	h.Register(rec, newReq())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "biz", reg.businessID)
	assert.Equal(t, "https://api.example.com/webhooks/telegram/biz", reg.url)
	assert.Equal(t, telegram.WebhookSecretToken("deploy-secret", "biz"), reg.token)

	reg.err = messaging.ErrNotConfigured
	rec = httptest.NewRecorder()
	h.Register(rec, newReq())
	assert.Equal(t, http.StatusConflict, rec.Code)

	reg.err = errors.New("bad request")
	rec = httptest.NewRecorder()
	h.Register(rec, newReq())
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	NewAdminWebhookHandler(reg, "", "deploy-secret", nil).Register(rec, newReq())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
