package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// ErrQuotaExceeded means the business used up its message quota.
var ErrQuotaExceeded = errors.New("conversation: message quota exceeded")

// InboundMessage is one client message from a channel.
type InboundMessage struct {
	BusinessID string
	ChannelID  string
	SenderName string
	Text       string
	ReceivedAt time.Time
}

// Reply is the text to send back to the client.
type Reply struct {
	Text           string
	ClientID       string
	ConversationID string
	Fallback       bool
}

// History persists the rolling conversation window. Append must be atomic
// per conversation across processes.
type History interface {
	Load(ctx context.Context, conversationID string) ([]ChatMessage, error)
	Append(ctx context.Context, conversationID string, messages ...ChatMessage) error
}

// Service handles one inbound message end to end.
type Service struct {
	businesses business.Reader
	usage      business.UsageRecorder
	clients    clients.Repository
	builder    *ContextBuilder
	dispatcher *Dispatcher
	history    History
	logger     *logging.Logger
	now        func() time.Time
}

// ServiceDeps groups the collaborators of Service.
type ServiceDeps struct {
	Businesses business.Reader
	Usage      business.UsageRecorder
	Clients    clients.Repository
	Builder    *ContextBuilder
	Dispatcher *Dispatcher
	History    History
	Logger     *logging.Logger
}

// NewService wires the turn service. Usage may be nil.
func NewService(deps ServiceDeps) *Service {
	if deps.Businesses == nil || deps.Clients == nil || deps.Builder == nil || deps.Dispatcher == nil || deps.History == nil {
		panic("conversation: service dependencies missing")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		businesses: deps.Businesses,
		usage:      deps.Usage,
		clients:    deps.Clients,
		builder:    deps.Builder,
		dispatcher: deps.Dispatcher,
		history:    deps.History,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleMessage runs one conversation turn. When it returns ErrQuotaExceeded
// or ErrExternalService the Reply is still non-nil and carries the localized
// text to send instead.
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) (*Reply, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, errors.New("conversation: empty message")
	}
	at := msg.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}

	biz, err := s.businesses.GetBusiness(ctx, msg.BusinessID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.GetOrCreate(ctx, biz.ID, msg.ChannelID, msg.SenderName)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve client: %w", err)
	}
	conv, err := s.clients.GetOrCreateConversation(ctx, biz.ID, client.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve conversation: %w", err)
	}
	logger := s.logger.With("business_id", biz.ID, "conversation_id", conv.ID)
	replies := RepliesFor(biz.Language)
	reply := &Reply{ClientID: client.ID, ConversationID: conv.ID}

	if biz.QuotaExhausted() {
		logger.Warn("message quota exhausted", "quota", biz.MessageQuota, "used", biz.MessagesUsed)
		reply.Text = replies.Unavailable
		reply.Fallback = true
		return reply, ErrQuotaExceeded
	}

	fields := ExtractFields(text)
	clientCtx := s.builder.BuildClientContext(ctx, biz.ID, client.ID).WithExtracted(fields)
	bizCtx, err := s.builder.BuildBusinessContext(ctx, biz.ID, at)
	if err != nil {
		return nil, err
	}
	prompt := BuildSystemPrompt(clientCtx, bizCtx, biz.Language)

	history, err := s.history.Load(ctx, conv.ID)
	if err != nil {
		logger.Warn("history unavailable, continuing without it", "error", err)
		history = nil
	}

	logger.Debug("dispatching turn", "message_length", len(text), "history", len(history))
	result, err := s.dispatcher.Run(ctx, TurnInput{
		Scope: Scope{
			BusinessID: biz.ID,
			ClientID:   client.ID,
			Timezone:   biz.Timezone,
			Language:   biz.Language,
		},
		SystemPrompt: prompt,
		History:      history,
		UserText:     text,
	})
	if err != nil {
		logger.Error("conversation turn failed", "error", err)
		reply.Text = replies.Error
		reply.Fallback = true
		return reply, err
	}
	reply.Text = result.Text
	reply.Fallback = result.Fallback

	s.persist(ctx, logger, biz.ID, client.ID, conv.ID, text, result.Text, fields, at)
	return reply, nil
}

// persist writes the turn after the model answered.
func (s *Service) persist(ctx context.Context, logger *logging.Logger, businessID, clientID, conversationID, userText, assistantText string, fields ExtractedFields, at time.Time) {
	if err := s.history.Append(ctx, conversationID,
		ChatMessage{Role: ChatRoleUser, Content: userText},
		ChatMessage{Role: ChatRoleAssistant, Content: assistantText},
	); err != nil {
		logger.Error("save history failed", "error", err)
	}
	if err := s.builder.UpdateClientAfterMessage(ctx, clientID, fields, at); err != nil {
		logger.Error("update client failed", "client_id", clientID, "error", err)
	}
	if _, err := s.builder.UpdateConversationMessageCount(ctx, conversationID); err != nil {
		logger.Error("update conversation count failed", "error", err)
	}
	if s.usage != nil {
		if err := s.usage.IncrementMessagesUsed(ctx, businessID); err != nil {
			logger.Error("increment message usage failed", "error", err)
		}
	}
}

