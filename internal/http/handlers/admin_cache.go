package handlers

import (
	"context"
	"net/http"

	"github.com/antonbillionaire/staffix/internal/tenancy"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// SnapshotInvalidator drops cached tenant data so the next read reloads it.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, businessID string) error
}

// AdminCacheHandler lets the dashboard refresh a business after editing its
// staff, services or hours.
type AdminCacheHandler struct {
	cache  SnapshotInvalidator
	logger *logging.Logger
}

func NewAdminCacheHandler(cache SnapshotInvalidator, logger *logging.Logger) *AdminCacheHandler {
	if cache == nil {
		panic("handlers: snapshot invalidator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminCacheHandler{cache: cache, logger: logger}
}

// Invalidate answers 204 once both cache tiers dropped the snapshot.
func (h *AdminCacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing business scope", http.StatusBadRequest)
		return
	}
	if err := h.cache.Invalidate(r.Context(), businessID); err != nil {
		h.logger.Error("admin: cache invalidate failed", "business_id", businessID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("business snapshot invalidated", "business_id", businessID)
	w.WriteHeader(http.StatusNoContent)
}
