package clients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu            sync.Mutex
	clients       map[string]*Client
	byChannel     map[string]string // business|channel -> client id
	conversations map[string]*Conversation
	byClient      map[string]string // client id -> conversation id
	now           func() time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients:       make(map[string]*Client),
		byChannel:     make(map[string]string),
		conversations: make(map[string]*Conversation),
		byClient:      make(map[string]string),
		now:           time.Now,
	}
}

// Put inserts or replaces a client as-is.
func (m *MemoryRepository) Put(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.clients[c.ID] = &c
	m.byChannel[channelKey(c.BusinessID, c.ChannelID)] = c.ID
}

func (m *MemoryRepository) GetOrCreate(_ context.Context, businessID, channelID, displayName string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byChannel[channelKey(businessID, channelID)]; ok {
		cp := *m.clients[id]
		return &cp, nil
	}
	c := &Client{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		ChannelID:  channelID,
		Name:       strings.TrimSpace(displayName),
		CreatedAt:  m.now().UTC(),
	}
	m.clients[c.ID] = c
	m.byChannel[channelKey(businessID, channelID)] = c.ID
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) Get(_ context.Context, clientID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) RecordInteraction(_ context.Context, clientID string, facts Facts, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	c.Name = facts.Name
	c.Phone = facts.Phone
	stamp := at
	c.LastInteractionAt = &stamp
	c.MessageCount++
	return nil
}

func (m *MemoryRepository) AppendNote(_ context.Context, clientID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	note = strings.TrimSpace(note)
	switch {
	case note == "":
	case c.Notes == "":
		c.Notes = note
	default:
		c.Notes += "\n" + note
	}
	return nil
}

func (m *MemoryRepository) GetOrCreateConversation(_ context.Context, businessID, clientID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byClient[clientID]; ok {
		cp := *m.conversations[id]
		return &cp, nil
	}
	if _, ok := m.clients[clientID]; !ok {
		return nil, ErrNotFound
	}
	conv := &Conversation{ID: uuid.NewString(), BusinessID: businessID, ClientID: clientID, CreatedAt: m.now().UTC()}
	m.conversations[conv.ID] = conv
	m.byClient[clientID] = conv.ID
	cp := *conv
	return &cp, nil
}

func (m *MemoryRepository) IncrementConversation(_ context.Context, conversationID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	conv.MessageCount++
	stamp := at
	conv.LastMessageAt = &stamp
	return conv.MessageCount, nil
}

func (m *MemoryRepository) ListIdle(_ context.Context, businessID string, idleBefore, cooldownBefore time.Time) ([]Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Client
	for _, c := range m.clients {
		if c.BusinessID != businessID || c.LastInteractionAt == nil || c.LastInteractionAt.After(idleBefore) {
			continue
		}
		if c.LastReactivationAt != nil && c.LastReactivationAt.After(cooldownBefore) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastInteractionAt.Before(*out[j].LastInteractionAt) })
	return out, nil
}

func (m *MemoryRepository) ClaimReactivation(_ context.Context, clientID string, at, cooldownBefore time.Time) (*time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if c.LastReactivationAt != nil && c.LastReactivationAt.After(cooldownBefore) {
		return nil, false, nil
	}
	prev := c.LastReactivationAt
	stamp := at
	c.LastReactivationAt = &stamp
	return prev, true, nil
}

func (m *MemoryRepository) ReleaseReactivation(_ context.Context, clientID string, at time.Time, prev *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	if c.LastReactivationAt != nil && c.LastReactivationAt.Equal(at) {
		c.LastReactivationAt = prev
	}
	return nil
}

func channelKey(businessID, channelID string) string {
	return businessID + "|" + channelID
}
