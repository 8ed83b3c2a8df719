package conversation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/messaging"
	"github.com/antonbillionaire/staffix/internal/tenancy"
)

type stubTurns struct {
	reply *Reply
	err   error
	got   []InboundMessage
	ctxID string
}

func (s *stubTurns) HandleMessage(ctx context.Context, msg InboundMessage) (*Reply, error) {
	s.got = append(s.got, msg)
	s.ctxID, _ = tenancy.BusinessIDFromContext(ctx)
	return s.reply, s.err
}

type captureSender struct {
	mu   sync.Mutex
	sent []messaging.Outbound
}

func (c *captureSender) Send(_ context.Context, msg messaging.Outbound) messaging.SendResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return messaging.SendResult{Success: true}
}

func serveWebhook(h *Handler, businessID, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/webhooks/telegram/{businessID}", h.TelegramWebhook)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+businessID, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const updateBody = `{"update_id":1,"message":{"message_id":9,"date":1772323200,"text":"Привет","from":{"id":42,"first_name":"Anvar","last_name":"K"},"chat":{"id":42}}}`

func TestTelegramWebhookRepliesThroughSender(t *testing.T) {
	turns := &stubTurns{reply: &Reply{Text: "Здравствуйте!"}}
	sender := &captureSender{}
	h := NewHandler(turns, sender, nil)

	rec := serveWebhook(h, "biz", updateBody)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, turns.got, 1)
	assert.Equal(t, "biz", turns.got[0].BusinessID)
	assert.Equal(t, "42", turns.got[0].ChannelID)
	assert.Equal(t, "Anvar K", turns.got[0].SenderName)
	assert.Equal(t, "biz", turns.ctxID)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, messaging.Outbound{BusinessID: "biz", ChannelID: "42", Text: "Здравствуйте!"}, sender.sent[0])
}

func TestTelegramWebhookSendsFallbackOnFailure(t *testing.T) {
	turns := &stubTurns{reply: &Reply{Text: RepliesFor("ru").Error}, err: ErrExternalService}
	sender := &captureSender{}
	rec := serveWebhook(NewHandler(turns, sender, nil), "biz", updateBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, RepliesFor("ru").Error, sender.sent[0].Text)
}

func TestTelegramWebhookIgnoresNonText(t *testing.T) {
	turns := &stubTurns{}
	sender := &captureSender{}
	rec := serveWebhook(NewHandler(turns, sender, nil), "biz", `{"update_id":2,"edited_message":{}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, turns.got)
	assert.Empty(t, sender.sent)
}

func TestTelegramWebhookRejectsGarbage(t *testing.T) {
	rec := serveWebhook(NewHandler(&stubTurns{}, &captureSender{}, nil), "biz", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramWebhookUnknownBusiness(t *testing.T) {
	turns := &stubTurns{err: business.ErrNotFound}
	sender := &captureSender{}
	rec := serveWebhook(NewHandler(turns, sender, nil), "ghost", updateBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.sent)
}

type brokenClaims struct{}

func (brokenClaims) ClaimUpdate(context.Context, string, int64) (bool, error) {
	return false, errors.New("redis down")
}

func TestTelegramWebhookDropsRedeliveredUpdates(t *testing.T) {
	f := newFixture(t)
	turns := &stubTurns{reply: &Reply{Text: "Здравствуйте!"}}
	sender := &captureSender{}
	h := NewHandler(turns, sender, nil, WithUpdateDedup(NewRedisUpdateLog(f.redis, time.Hour)))

	for i := 0; i < 3; i++ {
		rec := serveWebhook(h, "biz", updateBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, turns.got, 1)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, time.Hour, f.mini.TTL("telegram:update:biz:1"))

	// The same update id under another business is a different update.
	rec := serveWebhook(h, "other", updateBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, turns.got, 2)
}

func TestTelegramWebhookProcessesWhenDedupFails(t *testing.T) {
	turns := &stubTurns{reply: &Reply{Text: "ok"}}
	h := NewHandler(turns, &captureSender{}, nil, WithUpdateDedup(brokenClaims{}))

	rec := serveWebhook(h, "biz", updateBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, turns.got, 1)
}
