package clients

import (
	"context"
	"time"
)

// Repository persists clients and conversation counters.
type Repository interface {
	// GetOrCreate returns the client for (businessID, channelID), creating it
	// on first contact. displayName seeds Name for new clients only.
	GetOrCreate(ctx context.Context, businessID, channelID, displayName string) (*Client, error)
	Get(ctx context.Context, clientID string) (*Client, error)
	// RecordInteraction writes name and phone, stamps the interaction time
	// and bumps the client message count.
	RecordInteraction(ctx context.Context, clientID string, facts Facts, at time.Time) error
	AppendNote(ctx context.Context, clientID, note string) error

	GetOrCreateConversation(ctx context.Context, businessID, clientID string) (*Conversation, error)
	IncrementConversation(ctx context.Context, conversationID string, at time.Time) (int, error)

	// ListIdle returns clients last seen at or before idleBefore whose last
	// reactivation is unset or at or before cooldownBefore.
	ListIdle(ctx context.Context, businessID string, idleBefore, cooldownBefore time.Time) ([]Client, error)
	// ClaimReactivation stamps LastReactivationAt=at only if the cool-down
	// still allows it. It returns the previous stamp and whether it won.
	ClaimReactivation(ctx context.Context, clientID string, at, cooldownBefore time.Time) (prev *time.Time, claimed bool, err error)
	// ReleaseReactivation restores prev if the stamp is still at.
	ReleaseReactivation(ctx context.Context, clientID string, at time.Time, prev *time.Time) error
}
