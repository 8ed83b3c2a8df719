package clients

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a client or conversation is absent.
var ErrNotFound = errors.New("clients: not found")

// Client is a customer of one business, identified by their channel id.
type Client struct {
	ID                 string     `json:"id"`
	BusinessID         string     `json:"business_id"`
	ChannelID          string     `json:"channel_id"`
	Name               string     `json:"name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	LastInteractionAt  *time.Time `json:"last_interaction_at,omitempty"`
	MessageCount       int        `json:"message_count"`
	LastReactivationAt *time.Time `json:"last_reactivation_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Conversation tracks turn counts for one client. Turn text lives in the
// rolling history window, not here.
type Conversation struct {
	ID            string     `json:"id"`
	BusinessID    string     `json:"business_id"`
	ClientID      string     `json:"client_id"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Facts are the client fields that can be learned from chat text.
type Facts struct {
	Name  string
	Phone string
}
