package automation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRunStoreClaimAndRelease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresRunStore(mock)

	mock.ExpectExec("INSERT INTO automation_runs").WithArgs("review", "b1").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.Claim(context.Background(), "review", "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("INSERT INTO automation_runs").WithArgs("review", "b1").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.Claim(context.Background(), "review", "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec("DELETE FROM automation_runs").WithArgs("review", "b1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Release(context.Background(), "review", "b1"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRunStore(t *testing.T) {
	store := NewMemoryRunStore()
	ctx := context.Background()

	ok, _ := store.Claim(ctx, "review", "b1")
	assert.True(t, ok)
	ok, _ = store.Claim(ctx, "review", "b1")
	assert.False(t, ok)
	ok, _ = store.Claim(ctx, "reminder:2h", "b1")
	assert.True(t, ok)

	require.NoError(t, store.Release(ctx, "review", "b1"))
	assert.False(t, store.Claimed("review", "b1"))
}

type stubRunner struct {
	calls int
	at    time.Time
}

func (s *stubRunner) Run(_ context.Context, now time.Time) RunResult {
	s.calls++
	s.at = now
	return RunResult{StartedAt: now, Jobs: []JobSummary{{Job: kindReminder, Sent: 2}}}
}

func TestHandlerTriggerReturnsSummaries(t *testing.T) {
	runner := &stubRunner{}
	h := NewHandler(runner, nil)
	h.now = func() time.Time { return runNow }

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/internal/automation/run", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
	assert.True(t, runner.at.Equal(runNow))
	assert.Contains(t, rec.Body.String(), `"job":"reminder"`)
	assert.Contains(t, rec.Body.String(), `"sent":2`)
}
