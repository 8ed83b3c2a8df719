package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/messaging/telegram"
	"github.com/antonbillionaire/staffix/internal/tenancy"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// WebhookRegistrar points a business bot at our webhook.
type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, businessID, url, secretToken string) error
}

// AdminWebhookHandler registers the Telegram webhook of a business with the
// secret token the inbound route checks.
type AdminWebhookHandler struct {
	registrar WebhookRegistrar
	baseURL   string
	secret    string
	logger    *logging.Logger
}

func NewAdminWebhookHandler(registrar WebhookRegistrar, publicBaseURL, secret string, logger *logging.Logger) *AdminWebhookHandler {
	if registrar == nil {
		panic("handlers: webhook registrar required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminWebhookHandler{
		registrar: registrar,
		baseURL:   strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		secret:    secret,
		logger:    logger,
	}
}

// Register answers 204 once Telegram accepted the webhook.
func (h *AdminWebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing business scope", http.StatusBadRequest)
		return
	}
	if h.baseURL == "" || h.secret == "" {
		http.Error(w, "webhook registration not configured", http.StatusServiceUnavailable)
		return
	}
	hook := h.baseURL + "/webhooks/telegram/" + url.PathEscape(businessID)
	err := h.registrar.SetWebhook(r.Context(), businessID, hook, telegram.WebhookSecretToken(h.secret, businessID))
	switch {
	case errors.Is(err, messaging.ErrNotConfigured):
		http.Error(w, "business has no bot token", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("admin: telegram webhook registration failed", "business_id", businessID, "error", err)
		http.Error(w, "telegram rejected webhook", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
