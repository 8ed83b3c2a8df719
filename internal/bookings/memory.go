package bookings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps bookings in process. A single mutex makes the
// check-and-insert atomic, which is only sufficient for one process.
type MemoryRepository struct {
	mu       sync.Mutex
	bookings map[string]*Booking
	order    []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[string]*Booking)}
}

func (m *MemoryRepository) InsertIfFree(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		existing := m.bookings[id]
		if existing.StaffID != b.StaffID || !existing.Blocks() {
			continue
		}
		if overlaps(existing.Start, existing.BlockedUntil, b.Start, b.BlockedUntil) {
			return ErrSlotConflict
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	stored := *b
	m.bookings[b.ID] = &stored
	m.order = append(m.order, b.ID)
	return nil
}

func (m *MemoryRepository) ListBlocking(_ context.Context, businessID string, staffIDs []string, from, to time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(staffIDs))
	for _, id := range staffIDs {
		wanted[id] = true
	}
	var out []Booking
	for _, id := range m.order {
		b := m.bookings[id]
		if b.BusinessID != businessID || !b.Blocks() || !wanted[b.StaffID] {
			continue
		}
		if overlaps(b.Start, b.BlockedUntil, from, to) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, businessID, bookingID string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.BusinessID != businessID {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryRepository) ListByClient(_ context.Context, businessID, clientID string) ([]Booking, error) {
	return m.filter(func(b *Booking) bool {
		return b.BusinessID == businessID && b.ClientID == clientID
	}, byStart), nil
}

func (m *MemoryRepository) Cancel(_ context.Context, businessID, bookingID, clientID string, at time.Time) (*Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.BusinessID != businessID {
		return nil, false, ErrNotFound
	}
	changed, err := cancelTransition(b, clientID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		b.Status = StatusCancelled
		cancelledAt := at
		b.CancelledAt = &cancelledAt
	}
	cp := *b
	return &cp, changed, nil
}

func (m *MemoryRepository) ListStartingBetween(_ context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	return m.filter(func(b *Booking) bool {
		return b.BusinessID == businessID && b.Status == StatusConfirmed &&
			b.Start.After(from) && !b.Start.After(to)
	}, byStart), nil
}

func (m *MemoryRepository) ListEndedBetween(_ context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	return m.filter(func(b *Booking) bool {
		return b.BusinessID == businessID && b.Status != StatusCancelled &&
			!b.End.Before(from) && !b.End.After(to)
	}, byStart), nil
}

func (m *MemoryRepository) MarkCompleted(_ context.Context, bookingID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if b.Status == StatusConfirmed {
		b.Status = StatusCompleted
		completedAt := at
		b.CompletedAt = &completedAt
	}
	return nil
}

func (m *MemoryRepository) AppendNote(_ context.Context, bookingID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.Notes = joinNote(b.Notes, note)
	return nil
}

func (m *MemoryRepository) CountVisits(_ context.Context, businessID, clientID string, before time.Time) (int, error) {
	return len(m.filter(func(b *Booking) bool {
		return b.BusinessID == businessID && b.ClientID == clientID &&
			b.Status != StatusCancelled && b.Start.Before(before)
	}, nil)), nil
}

func (m *MemoryRepository) filter(keep func(*Booking) bool, less func(a, b Booking) bool) []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, id := range m.order {
		if b := m.bookings[id]; keep(b) {
			out = append(out, *b)
		}
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func byStart(a, b Booking) bool { return a.Start.Before(b.Start) }

func joinNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return note
	}
	return existing + "\n" + note
}
