package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores clients and conversations in Postgres.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a clients repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("clients: db required")
	}
	return &PostgresRepository{db: db}
}

const clientColumns = `id::text, business_id::text, channel_id, name, phone, notes,
	last_interaction_at, message_count, last_reactivation_at, created_at`

func (r *PostgresRepository) GetOrCreate(ctx context.Context, businessID, channelID, displayName string) (*Client, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := r.db.QueryRow(ctx, `
		INSERT INTO clients (business_id, channel_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, channel_id) DO UPDATE SET channel_id = EXCLUDED.channel_id
		RETURNING `+clientColumns, businessID, channelID, displayName)
	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("clients: get or create: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, clientID string) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clients: get: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) RecordInteraction(ctx context.Context, clientID string, facts Facts, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE clients
		SET name = $2, phone = $3, last_interaction_at = $4, message_count = message_count + 1
		WHERE id = $1`, clientID, facts.Name, facts.Phone, at)
	if err != nil {
		return fmt.Errorf("clients: record interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendNote(ctx context.Context, clientID, note string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE clients
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		WHERE id = $1`, clientID, note)
	if err != nil {
		return fmt.Errorf("clients: append note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetOrCreateConversation(ctx context.Context, businessID, clientID string) (*Conversation, error) {
	var conv Conversation
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (business_id, client_id)
		VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET client_id = EXCLUDED.client_id
		RETURNING id::text, business_id::text, client_id::text, message_count, last_message_at, created_at`,
		businessID, clientID,
	).Scan(&conv.ID, &conv.BusinessID, &conv.ClientID, &conv.MessageCount, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("clients: get or create conversation: %w", err)
	}
	return &conv, nil
}

func (r *PostgresRepository) IncrementConversation(ctx context.Context, conversationID string, at time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE conversations SET message_count = message_count + 1, last_message_at = $2
		WHERE id = $1
		RETURNING message_count`, conversationID, at).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("clients: increment conversation: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListIdle(ctx context.Context, businessID string, idleBefore, cooldownBefore time.Time) ([]Client, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clientColumns+` FROM clients
		WHERE business_id = $1
		  AND last_interaction_at <= $2
		  AND (last_reactivation_at IS NULL OR last_reactivation_at <= $3)
		ORDER BY last_interaction_at`, businessID, idleBefore, cooldownBefore)
	if err != nil {
		return nil, fmt.Errorf("clients: list idle: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("clients: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ClaimReactivation(ctx context.Context, clientID string, at, cooldownBefore time.Time) (*time.Time, bool, error) {
	var prev *time.Time
	err := r.db.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, last_reactivation_at FROM clients WHERE id = $1 FOR UPDATE
		)
		UPDATE clients c SET last_reactivation_at = $2
		FROM prev
		WHERE c.id = prev.id
		  AND (prev.last_reactivation_at IS NULL OR prev.last_reactivation_at <= $3)
		RETURNING prev.last_reactivation_at`, clientID, at, cooldownBefore).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("clients: claim reactivation: %w", err)
	}
	return prev, true, nil
}

func (r *PostgresRepository) ReleaseReactivation(ctx context.Context, clientID string, at time.Time, prev *time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE clients SET last_reactivation_at = $3
		WHERE id = $1 AND last_reactivation_at = $2`, clientID, at, prev); err != nil {
		return fmt.Errorf("clients: release reactivation: %w", err)
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	if err := row.Scan(&c.ID, &c.BusinessID, &c.ChannelID, &c.Name, &c.Phone, &c.Notes,
		&c.LastInteractionAt, &c.MessageCount, &c.LastReactivationAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
