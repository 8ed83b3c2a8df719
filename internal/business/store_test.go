package business

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var businessCols = []string{"id", "name", "description", "timezone", "language", "hours", "buffer_minutes",
	"message_quota", "messages_used", "plan_expires_at", "owner_email", "bot_token", "created_at"}

func TestPostgresStoreGetBusiness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows(businessCols).AddRow(
			"biz-1", "Barber", "", "Asia/Tashkent", "ru",
			[]byte(`{"monday":{"open":"09:00","close":"18:00"}}`),
			10, 1000, 12, (*time.Time)(nil), "owner@example.com", "token", created,
		))

	b, err := store.GetBusiness(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Barber", b.Name)
	assert.Equal(t, 10, b.BufferMinutes)
	require.NotNil(t, b.Hours.Monday)
	assert.Equal(t, "09:00", b.Hours.Monday.Open)
	assert.Nil(t, b.Hours.Sunday)

	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetBusiness(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListStaffAndServices(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery("FROM staff").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "role", "service_ids", "position", "active"}).
			AddRow("st-1", "biz-1", "Aziz", "barber", []string{"svc-1"}, 1, true).
			AddRow("st-2", "biz-1", "Dilnoza", "stylist", []string{}, 2, true))
	staff, err := store.ListStaff(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "Aziz", staff[0].Name)
	assert.True(t, staff[1].Offers("anything"))

	mock.ExpectQuery("FROM services").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "description", "duration_minutes", "price_cents", "active"}).
			AddRow("svc-1", "biz-1", "Haircut", "", 45, int64(150000), true))
	services, err := store.ListServices(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, 45*time.Minute, services[0].Duration())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreIncrementMessagesUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectExec("UPDATE businesses SET messages_used").
		WithArgs("biz-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.IncrementMessagesUsed(context.Background(), "biz-1"))

	mock.ExpectExec("UPDATE businesses SET messages_used").
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.IncrementMessagesUsed(context.Background(), "gone"), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetUsage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT message_quota, messages_used, plan_expires_at FROM businesses").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"message_quota", "messages_used", "plan_expires_at"}).
			AddRow(1000, 999, &expires))
	u, err := store.GetUsage(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, u.MessageQuota)
	assert.Equal(t, 999, u.MessagesUsed)
	require.NotNil(t, u.PlanExpiresAt)
	assert.True(t, expires.Equal(*u.PlanExpiresAt))

	mock.ExpectQuery("SELECT message_quota, messages_used, plan_expires_at FROM businesses").
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetUsage(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
