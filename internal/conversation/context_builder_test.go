package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
)

func TestBuildClientContextDefaultsForUnknownClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, NewClientContext(), f.builder.BuildClientContext(ctx, "biz", ""))
	assert.Equal(t, NewClientContext(), f.builder.BuildClientContext(ctx, "biz", "missing"))

	f.clients.Put(clients.Client{ID: "foreign", BusinessID: "other", ChannelID: "1", Name: "Leak"})
	assert.Equal(t, NewClientContext(), f.builder.BuildClientContext(ctx, "biz", "foreign"),
		"clients of another business are invisible")
}

func TestBuildClientContextCountsVisits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clients.Put(clients.Client{ID: "c1", BusinessID: "biz", ChannelID: "1", Name: "Anvar", Phone: "+998901234567", Notes: "prefers Aziz", MessageCount: 4})

	// A past visit: book through the repository directly because the engine
	// refuses past slots.
	past := time.Date(2026, 2, 20, 5, 0, 0, 0, time.UTC)
	require.NoError(t, f.bookings.InsertIfFree(ctx, &bookings.Booking{
		BusinessID: "biz", StaffID: "aziz", ServiceID: "cut", ClientID: "c1",
		Start: past, End: past.Add(time.Hour), BlockedUntil: past.Add(time.Hour), Status: bookings.StatusCompleted,
	}))

	got := f.builder.BuildClientContext(ctx, "biz", "c1")
	assert.Equal(t, ClientContext{
		ClientID:   "c1",
		Name:       "Anvar",
		Phone:      "+998901234567",
		Notes:      "prefers Aziz",
		VisitCount: 1,
		IsNew:      false,
	}, got)
}

func TestBuildBusinessContext(t *testing.T) {
	f := newFixture(t)

	got, err := f.builder.BuildBusinessContext(context.Background(), "biz", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Barbershop Aziz", got.Name)
	assert.Equal(t, 300, got.OffsetMinutes)
	assert.Len(t, got.Services, 2, "inactive services are dropped")
	assert.Len(t, got.Staff, 2)
	assert.Len(t, got.FAQ, 1)
	assert.Equal(t, 5, got.Now.Hour(), "00:00 UTC is 05:00 in Tashkent")

	_, err = f.builder.BuildBusinessContext(context.Background(), "nope", testNow)
	assert.ErrorIs(t, err, business.ErrNotFound)
}

func TestUpdateClientAfterMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.clients.GetOrCreate(ctx, "biz", "100", "Anvar")
	require.NoError(t, err)

	at := testNow.Add(time.Hour)
	require.NoError(t, f.builder.UpdateClientAfterMessage(ctx, c.ID, ExtractedFields{Phone: "+998901234567"}, at))

	stored, err := f.clients.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anvar", stored.Name)
	assert.Equal(t, "+998901234567", stored.Phone)
	assert.Equal(t, 1, stored.MessageCount)
	require.NotNil(t, stored.LastInteractionAt)
	assert.True(t, stored.LastInteractionAt.Equal(at))

	assert.ErrorIs(t, f.builder.UpdateClientAfterMessage(ctx, "missing", ExtractedFields{}, at), clients.ErrNotFound)
}

func TestUpdateConversationMessageCountIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.clients.GetOrCreate(ctx, "biz", "100", "")
	require.NoError(t, err)
	conv, err := f.clients.GetOrCreateConversation(ctx, "biz", c.ID)
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		n, err := f.builder.UpdateConversationMessageCount(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}
