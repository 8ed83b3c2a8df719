package bookings

import (
	"context"
	"time"
)

// Repository persists bookings. InsertIfFree and Cancel must be atomic with
// respect to concurrent callers, including callers in other processes.
type Repository interface {
	// InsertIfFree stores b unless a blocking booking for the same staff
	// overlaps [b.Start, b.BlockedUntil); then it returns ErrSlotConflict.
	InsertIfFree(ctx context.Context, b *Booking) error
	// ListBlocking returns non-cancelled bookings of the given staff whose
	// blocked range intersects [from, to).
	ListBlocking(ctx context.Context, businessID string, staffIDs []string, from, to time.Time) ([]Booking, error)
	Get(ctx context.Context, businessID, bookingID string) (*Booking, error)
	ListByClient(ctx context.Context, businessID, clientID string) ([]Booking, error)
	// Cancel reports changed=false when the booking was already cancelled.
	Cancel(ctx context.Context, businessID, bookingID, clientID string, at time.Time) (b *Booking, changed bool, err error)

	// ListStartingBetween returns confirmed bookings with Start in (from, to].
	ListStartingBetween(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error)
	// ListEndedBetween returns confirmed or completed bookings with End in [from, to].
	ListEndedBetween(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error)
	MarkCompleted(ctx context.Context, bookingID string, at time.Time) error
	AppendNote(ctx context.Context, bookingID, note string) error
	CountVisits(ctx context.Context, businessID, clientID string, before time.Time) (int, error)
}
