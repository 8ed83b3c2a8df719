package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/automation"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

type stubRunner struct {
	calls  int
	ctxErr error
	result automation.RunResult
}

func (s *stubRunner) Run(ctx context.Context, _ time.Time) automation.RunResult {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		s.ctxErr = errors.New("missing deadline")
	}
	return s.result
}

func TestNewCronRejectsBadSchedule(t *testing.T) {
	_, err := newCron("every now and then", &stubRunner{}, logging.New("error"), context.Background)
	assert.Error(t, err)
}

func TestNewCronRegistersOneEntry(t *testing.T) {
	c, err := newCron("*/15 * * * *", &stubRunner{}, logging.New("error"), context.Background)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	assert.Equal(t, time.UTC, c.Location())
}

func TestRunOnceLogsJobSummaries(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info")
	runner := &stubRunner{result: automation.RunResult{Jobs: []automation.JobSummary{
		{Job: "reminder", Processed: 2, Sent: 2},
		{Job: "review", Processed: 1, Failed: 1, Error: "biz-1: send failed"},
	}}}

	runOnce(context.Background(), runner, logger)

	assert.Equal(t, 1, runner.calls)
	assert.NoError(t, runner.ctxErr)
	assert.Contains(t, buf.String(), `"job":"reminder"`)
	assert.Contains(t, buf.String(), "automation job finished with errors")
	assert.Contains(t, buf.String(), "biz-1: send failed")
}
