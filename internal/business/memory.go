package business

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]Business
	order      []string
	services   map[string][]Service
	staff      map[string][]Staff
	timeOff    map[string][]TimeOff // keyed by business id
	faq        map[string][]FAQEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]Business),
		services:   make(map[string][]Service),
		staff:      make(map[string][]Staff),
		timeOff:    make(map[string][]TimeOff),
		faq:        make(map[string][]FAQEntry),
	}
}

// PutBusiness inserts or replaces a business.
func (m *MemoryStore) PutBusiness(b Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[b.ID]; !ok {
		m.order = append(m.order, b.ID)
	}
	m.businesses[b.ID] = b
}

// AddService appends a service to its business.
func (m *MemoryStore) AddService(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.BusinessID] = append(m.services[svc.BusinessID], svc)
}

// AddStaff appends a staff member; insertion order becomes the position
// when none is set.
func (m *MemoryStore) AddStaff(st Staff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.Position == 0 {
		st.Position = len(m.staff[st.BusinessID]) + 1
	}
	m.staff[st.BusinessID] = append(m.staff[st.BusinessID], st)
}

// AddTimeOff records a time-off interval for a staff member of businessID.
func (m *MemoryStore) AddTimeOff(businessID string, off TimeOff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeOff[businessID] = append(m.timeOff[businessID], off)
}

// AddFAQ appends a FAQ entry.
func (m *MemoryStore) AddFAQ(businessID string, entry FAQEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faq[businessID] = append(m.faq[businessID], entry)
}

func (m *MemoryStore) GetBusiness(_ context.Context, businessID string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) ListBusinesses(context.Context) ([]Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Business, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.businesses[id])
	}
	return out, nil
}

func (m *MemoryStore) ListServices(_ context.Context, businessID string) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Service
	for _, svc := range m.services[businessID] {
		if svc.Active {
			out = append(out, svc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListStaff(_ context.Context, businessID string) ([]Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Staff
	for _, st := range m.staff[businessID] {
		if st.Active {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) ListTimeOff(_ context.Context, businessID string, from, to time.Time) ([]TimeOff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TimeOff
	for _, off := range m.timeOff[businessID] {
		if off.Start.Before(to) && off.End.After(from) {
			out = append(out, off)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListFAQ(_ context.Context, businessID string) ([]FAQEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FAQEntry(nil), m.faq[businessID]...), nil
}

func (m *MemoryStore) GetUsage(_ context.Context, businessID string) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	return Usage{MessageQuota: b.MessageQuota, MessagesUsed: b.MessagesUsed, PlanExpiresAt: b.PlanExpiresAt}, nil
}

func (m *MemoryStore) IncrementMessagesUsed(_ context.Context, businessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	b.MessagesUsed++
	m.businesses[businessID] = b
	return nil
}
