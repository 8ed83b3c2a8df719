package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExclusionViolation is raised by the bookings_no_overlap constraint.
const pgExclusionViolation = "23P01"

// DB abstracts the pgx pool for testing.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores bookings in Postgres. Overlap safety comes from
// a staff row lock inside the insert transaction, backed by an exclusion
// constraint on (staff_id, tstzrange(start_at, blocked_until)).
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a bookings repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

const bookingColumns = `id::text, business_id::text, staff_id::text, service_id::text, client_id::text,
	start_at, end_at, blocked_until, status, notes, created_at, cancelled_at, completed_at`

func (r *PostgresRepository) InsertIfFree(ctx context.Context, b *Booking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	var staffID string
	err = tx.QueryRow(ctx, `SELECT id::text FROM staff WHERE id = $1 AND business_id = $2 FOR UPDATE`,
		b.StaffID, b.BusinessID).Scan(&staffID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("bookings: lock staff: %w", err)
	}

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE staff_id = $1 AND status <> 'cancelled'
			  AND start_at < $3 AND blocked_until > $2
		) OR EXISTS (
			SELECT 1 FROM staff_time_off
			WHERE staff_id = $1 AND start_at < $4 AND end_at > $2
		)`, b.StaffID, b.Start, b.BlockedUntil, b.End).Scan(&taken)
	if err != nil {
		return fmt.Errorf("bookings: check overlap: %w", err)
	}
	if taken {
		return ErrSlotConflict
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (business_id, staff_id, service_id, client_id, start_at, end_at, blocked_until, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at`,
		b.BusinessID, b.StaffID, b.ServiceID, b.ClientID, b.Start, b.End, b.BlockedUntil, string(b.Status), b.Notes,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("bookings: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("bookings: commit insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListBlocking(ctx context.Context, businessID string, staffIDs []string, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE business_id = $1 AND staff_id::text = ANY($2) AND status <> 'cancelled'
		  AND start_at < $4 AND blocked_until > $3
		ORDER BY start_at`, businessID, staffIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list blocking: %w", err)
	}
	return scanBookings(rows)
}

func (r *PostgresRepository) Get(ctx context.Context, businessID, bookingID string) (*Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND business_id = $2`,
		bookingID, businessID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) ListByClient(ctx context.Context, businessID, clientID string) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE business_id = $1 AND client_id = $2
		ORDER BY start_at`, businessID, clientID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list by client: %w", err)
	}
	return scanBookings(rows)
}

func (r *PostgresRepository) Cancel(ctx context.Context, businessID, bookingID, clientID string, at time.Time) (*Booking, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("bookings: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND business_id = $2 FOR UPDATE`,
		bookingID, businessID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("bookings: load for cancel: %w", err)
	}

	changed, err := cancelTransition(b, clientID)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return b, false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET status = 'cancelled', cancelled_at = $2 WHERE id = $1`, b.ID, at); err != nil {
		return nil, false, fmt.Errorf("bookings: cancel: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("bookings: commit cancel: %w", err)
	}
	b.Status = StatusCancelled
	cancelledAt := at
	b.CancelledAt = &cancelledAt
	return b, true, nil
}

func (r *PostgresRepository) ListStartingBetween(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE business_id = $1 AND status = 'confirmed' AND start_at > $2 AND start_at <= $3
		ORDER BY start_at`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list upcoming: %w", err)
	}
	return scanBookings(rows)
}

func (r *PostgresRepository) ListEndedBetween(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE business_id = $1 AND status IN ('confirmed', 'completed') AND end_at >= $2 AND end_at <= $3
		ORDER BY start_at`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list ended: %w", err)
	}
	return scanBookings(rows)
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, bookingID string, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE bookings SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'confirmed'`, bookingID, at); err != nil {
		return fmt.Errorf("bookings: mark completed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendNote(ctx context.Context, bookingID, note string) error {
	tag, err := r.db.Exec(ctx, `UPDATE bookings
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		WHERE id = $1`, bookingID, note)
	if err != nil {
		return fmt.Errorf("bookings: append note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountVisits(ctx context.Context, businessID, clientID string, before time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings
		WHERE business_id = $1 AND client_id = $2 AND status <> 'cancelled' AND start_at < $3`,
		businessID, clientID, before).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bookings: count visits: %w", err)
	}
	return n, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b      Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.BusinessID, &b.StaffID, &b.ServiceID, &b.ClientID,
		&b.Start, &b.End, &b.BlockedUntil, &status, &b.Notes, &b.CreatedAt,
		&b.CancelledAt, &b.CompletedAt); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
