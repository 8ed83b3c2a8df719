package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/antonbillionaire/staffix/pkg/logging"
)

// Runner executes one automation trigger.
type Runner interface {
	Run(ctx context.Context, now time.Time) RunResult
}

// Handler exposes the scheduler over HTTP for external cron triggers. The
// route must sit behind the cron secret middleware.
type Handler struct {
	runner Runner
	now    func() time.Time
	logger *logging.Logger
}

func NewHandler(runner Runner, logger *logging.Logger) *Handler {
	if runner == nil {
		panic("automation: runner required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{runner: runner, now: time.Now, logger: logger}
}

// Trigger runs all jobs and answers with the per-job summaries.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	result := h.runner.Run(r.Context(), h.now())
	h.logger.Info("automation triggered over http", "jobs", len(result.Jobs))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Warn("encode automation result failed", "error", err)
	}
}
