package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/observability/metrics"
	"github.com/antonbillionaire/staffix/internal/tenancy"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// MessageHandler runs a conversation turn.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) (*Reply, error)
}

// Handler wires Telegram webhook updates to the conversation service.
type Handler struct {
	service MessageHandler
	sender  messaging.Sender
	logger  *logging.Logger
	metrics *metrics.MessagingMetrics
	updates UpdateClaimer
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithWebhookMetrics records inbound outcomes and latency.
func WithWebhookMetrics(m *metrics.MessagingMetrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithUpdateDedup drops updates whose update_id was already claimed.
func WithUpdateDedup(claims UpdateClaimer) HandlerOption {
	return func(h *Handler) {
		h.updates = claims
	}
}

// NewHandler creates a conversation handler.
func NewHandler(service MessageHandler, sender messaging.Sender, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if service == nil || sender == nil {
		panic("conversation: handler dependencies missing")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service: service,
		sender:  sender,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

const channelTelegram = "telegram"

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	From      struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Username  string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// TelegramWebhook handles POST /webhooks/telegram/{businessID}. Parsed
// updates are always acknowledged with 200 so Telegram does not redeliver.
func (h *Handler) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "replied"
	defer func() {
		h.metrics.ObserveInbound(channelTelegram, status)
		h.metrics.ObserveWebhookLatency(channelTelegram, time.Since(start).Seconds())
	}()

	businessID := strings.TrimSpace(chi.URLParam(r, "businessID"))
	if businessID == "" {
		status = "bad_request"
		http.Error(w, "business id required", http.StatusBadRequest)
		return
	}

	var update telegramUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		h.logger.Warn("failed to decode telegram update", "business_id", businessID, "error", err)
		status = "bad_request"
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		status = "ignored"
		h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if h.updates != nil && update.UpdateID != 0 {
		fresh, err := h.updates.ClaimUpdate(r.Context(), businessID, update.UpdateID)
		switch {
		case err != nil:
			h.logger.Warn("update dedup unavailable, processing anyway", "business_id", businessID, "error", err)
		case !fresh:
			h.logger.Info("duplicate telegram update ignored", "business_id", businessID, "update_id", update.UpdateID)
			status = "duplicate"
			h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
	}

	ctx := tenancy.WithBusinessID(r.Context(), businessID)
	msg := update.Message
	channelID := strconv.FormatInt(msg.Chat.ID, 10)
	received := time.Now().UTC()
	if msg.Date > 0 {
		received = time.Unix(msg.Date, 0).UTC()
	}

	reply, err := h.service.HandleMessage(ctx, InboundMessage{
		BusinessID: businessID,
		ChannelID:  channelID,
		SenderName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		Text:       msg.Text,
		ReceivedAt: received,
	})
	switch {
	case errors.Is(err, business.ErrNotFound):
		h.logger.Warn("telegram update for unknown business", "business_id", businessID)
		status = "unknown_business"
		h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	case err != nil && reply == nil:
		h.logger.Error("failed to process message", "business_id", businessID, "error", err)
		status = "error"
		h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	case err != nil:
		h.logger.Warn("sending fallback reply", "business_id", businessID, "error", err)
		status = "fallback"
	}

	if reply != nil && strings.TrimSpace(reply.Text) != "" {
		res := h.sender.Send(ctx, messaging.Outbound{BusinessID: businessID, ChannelID: channelID, Text: reply.Text})
		if !res.Success {
			h.logger.Error("failed to send reply", "business_id", businessID, "conversation_id", reply.ConversationID, "error", res.Err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
