package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Reader is the read-only tenant data the booking and conversation layers need.
type Reader interface {
	GetBusiness(ctx context.Context, businessID string) (*Business, error)
	ListBusinesses(ctx context.Context) ([]Business, error)
	ListServices(ctx context.Context, businessID string) ([]Service, error)
	ListStaff(ctx context.Context, businessID string) ([]Staff, error)
	ListTimeOff(ctx context.Context, businessID string, from, to time.Time) ([]TimeOff, error)
	ListFAQ(ctx context.Context, businessID string) ([]FAQEntry, error)
}

// UsageRecorder counts conversational turns against the plan quota.
type UsageRecorder interface {
	IncrementMessagesUsed(ctx context.Context, businessID string) error
	// GetUsage reads the counters from the source of truth, never a cache.
	GetUsage(ctx context.Context, businessID string) (Usage, error)
}

// Store is the full tenant data contract.
type Store interface {
	Reader
	UsageRecorder
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads tenant data written by the dashboard CRUD endpoints.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new business store.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("business: db required")
	}
	return &PostgresStore{db: db}
}

const businessColumns = `id::text, name, description, timezone, language, hours, buffer_minutes,
	message_quota, messages_used, plan_expires_at, owner_email, bot_token, created_at`

func (s *PostgresStore) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	row := s.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, businessID)
	b, err := scanBusiness(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("business: get: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context) ([]Business, error) {
	rows, err := s.db.Query(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("business: list: %w", err)
	}
	defer rows.Close()

	var out []Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("business: scan: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, business_id::text, name, description, duration_minutes, price_cents, active
		FROM services
		WHERE business_id = $1 AND active
		ORDER BY name, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("business: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.Description,
			&svc.DurationMinutes, &svc.PriceCents, &svc.Active); err != nil {
			return nil, fmt.Errorf("business: scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListStaff(ctx context.Context, businessID string) ([]Staff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, business_id::text, name, role, service_ids::text[], position, active
		FROM staff
		WHERE business_id = $1 AND active
		ORDER BY position, created_at`, businessID)
	if err != nil {
		return nil, fmt.Errorf("business: list staff: %w", err)
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var st Staff
		if err := rows.Scan(&st.ID, &st.BusinessID, &st.Name, &st.Role,
			&st.ServiceIDs, &st.Position, &st.Active); err != nil {
			return nil, fmt.Errorf("business: scan staff: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListTimeOff(ctx context.Context, businessID string, from, to time.Time) ([]TimeOff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id::text, t.staff_id::text, t.start_at, t.end_at, t.reason
		FROM staff_time_off t
		JOIN staff s ON s.id = t.staff_id
		WHERE s.business_id = $1 AND t.start_at < $3 AND t.end_at > $2
		ORDER BY t.start_at`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("business: list time off: %w", err)
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var off TimeOff
		if err := rows.Scan(&off.ID, &off.StaffID, &off.Start, &off.End, &off.Reason); err != nil {
			return nil, fmt.Errorf("business: scan time off: %w", err)
		}
		out = append(out, off)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFAQ(ctx context.Context, businessID string) ([]FAQEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT question, answer FROM faq_entries
		WHERE business_id = $1
		ORDER BY position, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("business: list faq: %w", err)
	}
	defer rows.Close()

	var out []FAQEntry
	for rows.Next() {
		var entry FAQEntry
		if err := rows.Scan(&entry.Question, &entry.Answer); err != nil {
			return nil, fmt.Errorf("business: scan faq: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// IncrementMessagesUsed bumps the per-business turn counter.
func (s *PostgresStore) IncrementMessagesUsed(ctx context.Context, businessID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE businesses SET messages_used = messages_used + 1 WHERE id = $1`, businessID)
	if err != nil {
		return fmt.Errorf("business: increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUsage reads the quota columns alone.
func (s *PostgresStore) GetUsage(ctx context.Context, businessID string) (Usage, error) {
	var u Usage
	err := s.db.QueryRow(ctx, `SELECT message_quota, messages_used, plan_expires_at FROM businesses WHERE id = $1`, businessID).
		Scan(&u.MessageQuota, &u.MessagesUsed, &u.PlanExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Usage{}, ErrNotFound
	}
	if err != nil {
		return Usage{}, fmt.Errorf("business: get usage: %w", err)
	}
	return u, nil
}

func scanBusiness(row pgx.Row) (*Business, error) {
	var (
		b     Business
		hours []byte
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Timezone, &b.Language, &hours,
		&b.BufferMinutes, &b.MessageQuota, &b.MessagesUsed, &b.PlanExpiresAt,
		&b.OwnerEmail, &b.BotToken, &b.CreatedAt); err != nil {
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &b.Hours); err != nil {
			return nil, fmt.Errorf("decode hours: %w", err)
		}
	}
	return &b, nil
}
