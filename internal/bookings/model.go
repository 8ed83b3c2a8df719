package bookings

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a booking, service or staff member is
	// absent from the business.
	ErrNotFound = errors.New("bookings: not found")
	// ErrSlotConflict is returned when the requested slot is taken.
	ErrSlotConflict = errors.New("bookings: slot conflict")
	// ErrForbidden is returned when a booking belongs to another client.
	ErrForbidden = errors.New("bookings: forbidden")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("bookings: validation error")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bookings: invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Status is the booking lifecycle state.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Booking is a reserved staff interval. BlockedUntil is End plus the
// business buffer; the staff member is unavailable for [Start, BlockedUntil).
type Booking struct {
	ID           string     `json:"id"`
	BusinessID   string     `json:"business_id"`
	StaffID      string     `json:"staff_id"`
	ServiceID    string     `json:"service_id"`
	ClientID     string     `json:"client_id"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	BlockedUntil time.Time  `json:"blocked_until"`
	Status       Status     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Blocks reports whether the booking still occupies its staff member.
func (b Booking) Blocks() bool {
	return b.Status != StatusCancelled
}

// Slot is a free start time for one staff member.
type Slot struct {
	StaffID   string    `json:"staff_id"`
	StaffName string    `json:"staff_name"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// cancelTransition decides what cancelling b on behalf of clientID does.
// changed is false when the booking is already cancelled.
func cancelTransition(b *Booking, clientID string) (changed bool, err error) {
	if b.ClientID != clientID {
		return false, ErrForbidden
	}
	switch b.Status {
	case StatusCancelled:
		return false, nil
	case StatusCompleted:
		return false, invalid("status", "completed bookings cannot be cancelled")
	default:
		return true, nil
	}
}
