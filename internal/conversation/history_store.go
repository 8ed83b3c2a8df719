package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHistoryTTL    = 7 * 24 * time.Hour
	defaultHistoryWindow = 20
)

// HistoryStore keeps a rolling window of conversation turns in a Redis list,
// one JSON message per element.
type HistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
	window int
}

// NewHistoryStore creates a store. Non-positive ttl or window use defaults.
func NewHistoryStore(rdb *redis.Client, ttl time.Duration, window int) *HistoryStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &HistoryStore{
		redis:  rdb,
		tracer: otel.Tracer("staffix.internal.conversation.history"),
		ttl:    ttl,
		window: window,
	}
}

// Save replaces the stored window with history.
func (s *HistoryStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	values, err := encodeMessages(trimHistory(history, s.window))
	if err != nil {
		span.RecordError(err)
		return err
	}
	key := conversationKey(conversationID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Append pushes messages and trims the window in one MULTI/EXEC, so turns
// finishing concurrently on any instance never overwrite each other.
func (s *HistoryStore) Append(ctx context.Context, conversationID string, messages ...ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	values, err := encodeMessages(messages)
	if err != nil {
		span.RecordError(err)
		return err
	}
	key := conversationKey(conversationID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.window), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to append history: %w", err)
	}
	return nil
}

// Load returns the stored window; a missing key is an empty history.
func (s *HistoryStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	history := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		history = append(history, msg)
	}
	return trimHistory(history, s.window), nil
}

func encodeMessages(messages []ChatMessage) ([]any, error) {
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to marshal history: %w", err)
		}
		values = append(values, data)
	}
	return values, nil
}

// trimHistory keeps the newest window messages, never starting on an
// assistant turn.
func trimHistory(history []ChatMessage, window int) []ChatMessage {
	if len(history) > window {
		history = history[len(history)-window:]
	}
	for len(history) > 0 && history[0].Role != ChatRoleUser {
		history = history[1:]
	}
	return history
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}
