package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
)

type recordingEmail struct {
	mu   sync.Mutex
	msgs []EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func newNotifyFixture(ownerEmail string) (*business.MemoryStore, *clients.MemoryRepository) {
	store := business.NewMemoryStore()
	store.PutBusiness(business.Business{ID: "biz", Name: "Barbershop Aziz", Timezone: "Asia/Tashkent", OwnerEmail: ownerEmail})
	store.AddService(business.Service{ID: "cut", BusinessID: "biz", Name: "Haircut", DurationMinutes: 60, Active: true})
	store.AddStaff(business.Staff{ID: "aziz", BusinessID: "biz", Name: "Aziz", Active: true})
	clientRepo := clients.NewMemoryRepository()
	clientRepo.Put(clients.Client{ID: "ali", BusinessID: "biz", ChannelID: "100", Name: "Ali", Phone: "+998901234567"})
	return store, clientRepo
}

func testBooking() bookings.Booking {
	start := time.Date(2026, time.March, 2, 5, 0, 0, 0, time.UTC)
	return bookings.Booking{ID: "b1", BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "ali", Start: start, End: start.Add(time.Hour)}
}

func TestBookingCreatedEmailsOwner(t *testing.T) {
	store, clientRepo := newNotifyFixture("owner@example.com")
	email := &recordingEmail{}
	svc := NewService(email, store, clientRepo, nil)

	svc.BookingCreated(context.Background(), testBooking())

	require.Len(t, email.msgs, 1)
	msg := email.msgs[0]
	assert.Equal(t, "owner@example.com", msg.To)
	assert.Contains(t, msg.Subject, "New booking: Haircut")
	assert.Contains(t, msg.Subject, "10:00")
	assert.Contains(t, msg.Body, "Client: Ali")
	assert.Contains(t, msg.Body, "Phone: +998901234567")
	assert.Contains(t, msg.Body, "Staff: Aziz")
	assert.Equal(t, "biz", msg.BusinessID)
	assert.Equal(t, CategoryBookingCreated, msg.Category)
}

func TestBookingCancelledEmailsOwner(t *testing.T) {
	store, clientRepo := newNotifyFixture("owner@example.com")
	email := &recordingEmail{}
	NewService(email, store, clientRepo, nil).BookingCancelled(context.Background(), testBooking())

	require.Len(t, email.msgs, 1)
	assert.Contains(t, email.msgs[0].Subject, "Booking cancelled")
	assert.Equal(t, CategoryBookingCancelled, email.msgs[0].Category)
}

func TestNotifySkipsWithoutOwnerEmail(t *testing.T) {
	store, clientRepo := newNotifyFixture("")
	email := &recordingEmail{}
	NewService(email, store, clientRepo, nil).BookingCreated(context.Background(), testBooking())
	assert.Empty(t, email.msgs)
}

func TestNotifySwallowsSendErrors(t *testing.T) {
	store, clientRepo := newNotifyFixture("owner@example.com")
	email := &recordingEmail{err: errors.New("smtp down")}
	svc := NewService(email, store, clientRepo, nil)

	assert.NotPanics(t, func() { svc.BookingCreated(context.Background(), testBooking()) })
	assert.Len(t, email.msgs, 1)
}

func TestNotifyUnknownBusiness(t *testing.T) {
	store, clientRepo := newNotifyFixture("owner@example.com")
	email := &recordingEmail{}
	b := testBooking()
	b.BusinessID = "missing"
	NewService(email, store, clientRepo, nil).BookingCreated(context.Background(), b)
	assert.Empty(t, email.msgs)
}
