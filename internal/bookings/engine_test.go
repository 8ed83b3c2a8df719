package bookings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/business"
)

// Sunday 2026-03-01 00:00 UTC; the following Monday is 2026-03-02.
var testNow = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

var monday = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store  *business.MemoryStore
	repo   *MemoryRepository
	engine *Engine
}

func newFixture(t *testing.T, bufferMinutes int, opts ...Option) *fixture {
	t.Helper()
	store := business.NewMemoryStore()
	day := &business.DayHours{Open: "09:00", Close: "18:00"}
	store.PutBusiness(business.Business{
		ID:            "biz",
		Name:          "Barbershop",
		Timezone:      "Asia/Tashkent",
		Language:      "ru",
		BufferMinutes: bufferMinutes,
		Hours:         business.BusinessHours{Monday: day, Tuesday: day, Wednesday: day, Thursday: day, Friday: day},
	})
	store.AddService(business.Service{ID: "cut", BusinessID: "biz", Name: "Haircut", DurationMinutes: 60, Active: true})
	store.AddService(business.Service{ID: "beard", BusinessID: "biz", Name: "Beard trim", DurationMinutes: 30, Active: true})
	store.AddStaff(business.Staff{ID: "aziz", BusinessID: "biz", Name: "Aziz", Active: true})
	store.AddStaff(business.Staff{ID: "bek", BusinessID: "biz", Name: "Bek", ServiceIDs: []string{"cut"}, Active: true})

	repo := NewMemoryRepository()
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithSlotStep(time.Hour)}, opts...)
	return &fixture{store: store, repo: repo, engine: NewEngine(store, repo, opts...)}
}

func (f *fixture) slots(t *testing.T, q AvailabilityQuery) []Slot {
	t.Helper()
	seq, err := f.engine.CheckAvailability(context.Background(), q)
	require.NoError(t, err)
	return Collect(seq, 0)
}

func TestAvailabilityConvertsLocalHoursWithFixedOffset(t *testing.T) {
	f := newFixture(t, 0)

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", From: monday, To: monday})

	require.Len(t, slots, 9)
	// 09:00 local at +300 is 04:00 UTC; last 60 minute slot starts 17:00 local.
	assert.Equal(t, time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), slots[8].Start)
	for i, s := range slots {
		assert.Equal(t, 9+i, s.Start.Add(5*time.Hour).Hour())
	}
}

func TestAvailabilityOrdersByStartThenStaffPosition(t *testing.T) {
	f := newFixture(t, 0)

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", From: monday, To: monday})

	require.Len(t, slots, 18)
	for i := 0; i < len(slots); i += 2 {
		assert.Equal(t, slots[i].Start, slots[i+1].Start)
		assert.Equal(t, "aziz", slots[i].StaffID)
		assert.Equal(t, "bek", slots[i+1].StaffID)
	}
	for i := 1; i < len(slots); i++ {
		assert.False(t, slots[i].Start.Before(slots[i-1].Start))
	}
}

func TestAvailabilitySkipsStaffWhoDoNotOfferService(t *testing.T) {
	f := newFixture(t, 0)

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "beard", From: monday, To: monday})
	for _, s := range slots {
		assert.Equal(t, "aziz", s.StaffID)
	}

	_, err := f.engine.CheckAvailability(context.Background(),
		AvailabilityQuery{BusinessID: "biz", ServiceID: "beard", StaffID: "bek", From: monday, To: monday})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAvailabilityExcludesBookingsWithBuffer(t *testing.T) {
	f := newFixture(t, 15)
	ctx := context.Background()

	_, err := f.engine.CreateBooking(ctx, CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c1",
		Start: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), // 11:00 local
	})
	require.NoError(t, err)

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", From: monday, To: monday})
	for _, s := range slots {
		local := s.Start.Add(5 * time.Hour).Hour()
		// 10:00 would end at 11:00 but needs 15 minutes of buffer; 11:00 is
		// taken; 12:00 starts inside the 15 minute buffer after 12:00.
		assert.NotContains(t, []int{10, 11, 12}, local)
	}
	assert.Len(t, slots, 6)
}

func TestAvailabilityExcludesTimeOff(t *testing.T) {
	f := newFixture(t, 0)
	f.store.AddTimeOff("biz", business.TimeOff{
		ID: "off", StaffID: "aziz",
		Start: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	})

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", From: monday, To: monday})
	require.NotEmpty(t, slots)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Len(t, slots, 5)

	_, err := f.engine.CreateBooking(context.Background(), CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c1",
		Start: time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestAvailabilityValidation(t *testing.T) {
	f := newFixture(t, 0, WithMaxRangeDays(7))
	ctx := context.Background()

	_, err := f.engine.CheckAvailability(ctx, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", From: monday, To: monday.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.CheckAvailability(ctx, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", From: monday, To: monday.AddDate(0, 0, 7)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.CheckAvailability(ctx, AvailabilityQuery{BusinessID: "biz", ServiceID: "nails", From: monday, To: monday})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.CheckAvailability(ctx, AvailabilityQuery{BusinessID: "other", ServiceID: "cut", From: monday, To: monday})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailabilityIsLazy(t *testing.T) {
	f := newFixture(t, 0)
	seq, err := f.engine.CheckAvailability(context.Background(),
		AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", From: monday, To: monday.AddDate(0, 0, 4)})
	require.NoError(t, err)

	first := Collect(seq, 3)
	assert.Len(t, first, 3)
	assert.Len(t, Collect(seq, 0), 90, "sequence can be re-ranged")
}

func TestAvailabilityHidesPastSlots(t *testing.T) {
	now := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC) // 12:30 local Monday
	f := newFixture(t, 0, WithClock(func() time.Time { return now }))

	slots := f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", From: monday, To: monday})
	require.NotEmpty(t, slots)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), slots[0].Start)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	base := CreateRequest{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c1"}

	tests := []struct {
		name  string
		edit  func(r *CreateRequest)
		error error
	}{
		{"before opening", func(r *CreateRequest) { r.Start = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) }, ErrValidation},
		{"runs past closing", func(r *CreateRequest) { r.Start = time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC) }, ErrValidation},
		{"closed day", func(r *CreateRequest) { r.Start = time.Date(2026, 3, 7, 6, 0, 0, 0, time.UTC) }, ErrValidation},
		{"in the past", func(r *CreateRequest) { r.Start = time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC) }, ErrValidation},
		{"unknown service", func(r *CreateRequest) { r.ServiceID = "nails"; r.Start = monday.Add(6 * time.Hour) }, ErrNotFound},
		{"unknown staff", func(r *CreateRequest) { r.StaffID = "ghost"; r.Start = monday.Add(6 * time.Hour) }, ErrNotFound},
		{"staff without service", func(r *CreateRequest) {
			r.StaffID = "bek"
			r.ServiceID = "beard"
			r.Start = monday.Add(6 * time.Hour)
		}, ErrValidation},
		{"missing client", func(r *CreateRequest) { r.ClientID = ""; r.Start = monday.Add(6 * time.Hour) }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.edit(&req)
			_, err := f.engine.CreateBooking(ctx, req)
			assert.ErrorIs(t, err, tt.error)
		})
	}
}

func TestConcurrentCreateBookingHasSingleWinner(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Overlapping but not identical starts for the same staff member.
			offset := time.Duration(i%3) * 15 * time.Minute
			_, err := f.engine.CreateBooking(ctx, CreateRequest{
				BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c",
				Start: start.Add(offset),
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrSlotConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(24), conflicts.Load())

	booked, err := f.repo.ListBlocking(ctx, "biz", []string{"aziz"}, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, booked, 1)
}

func TestListedSlotsAreBookable(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for _, s := range f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "beard", From: monday, To: monday.AddDate(0, 0, 1)}) {
		_, err := f.engine.CreateBooking(ctx, CreateRequest{
			BusinessID: "biz", ServiceID: "beard", StaffID: s.StaffID, ClientID: "c", Start: s.Start,
		})
		if err != nil {
			assert.ErrorIs(t, err, ErrSlotConflict)
			assert.NotErrorIs(t, err, ErrValidation)
		}
	}

	// Fresh listings after the writes are all still bookable.
	for _, s := range f.slots(t, AvailabilityQuery{BusinessID: "biz", ServiceID: "cut", From: monday, To: monday}) {
		_, err := f.engine.CreateBooking(ctx, CreateRequest{
			BusinessID: "biz", ServiceID: "cut", StaffID: s.StaffID, ClientID: "c", Start: s.Start,
		})
		if err != nil {
			assert.ErrorIs(t, err, ErrSlotConflict)
		}
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "owner",
		Start: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, _, err = f.engine.CancelBooking(ctx, "biz", b.ID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = f.engine.CancelBooking(ctx, "other-biz", b.ID, "owner")
	assert.ErrorIs(t, err, ErrNotFound)

	first, changed, err := f.engine.CancelBooking(ctx, "biz", b.ID, "owner")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCancelled, first.Status)

	second, changed, err := f.engine.CancelBooking(ctx, "biz", b.ID, "owner")
	require.NoError(t, err)
	assert.False(t, changed, "repeat cancel is a no-op")
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CancelledAt, second.CancelledAt)

	// The slot is free again.
	_, err = f.engine.CreateBooking(ctx, CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "other",
		Start: b.Start,
	})
	assert.NoError(t, err)
}

func TestCancelCompletedBookingIsRejected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	b, err := f.engine.CreateBooking(ctx, CreateRequest{
		BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c",
		Start: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.MarkCompleted(ctx, b.ID))

	_, _, err = f.engine.CancelBooking(ctx, "biz", b.ID, "c")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetClientBookingsOrderedByStart(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	for _, hour := range []int{10, 5, 7} {
		_, err := f.engine.CreateBooking(ctx, CreateRequest{
			BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c",
			Start: time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	list, err := f.engine.GetClientBookings(ctx, "biz", "c")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 5, list[0].Start.Hour())
	assert.Equal(t, 7, list[1].Start.Hour())
	assert.Equal(t, 10, list[2].Start.Hour())
}

func TestSuggestAlternatives(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	req := CreateRequest{BusinessID: "biz", ServiceID: "cut", StaffID: "aziz", ClientID: "c",
		Start: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)}
	_, err := f.engine.CreateBooking(ctx, req)
	require.NoError(t, err)

	alts, err := f.engine.SuggestAlternatives(ctx, req, 3)
	require.NoError(t, err)
	require.Len(t, alts, 3)
	for _, a := range alts {
		assert.Equal(t, "aziz", a.StaffID)
		assert.NotEqual(t, req.Start, a.Start)
	}
}
