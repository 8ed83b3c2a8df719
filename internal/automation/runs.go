package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// RunStore records which automated messages were already claimed. A claim is
// taken before sending and released when the send fails.
type RunStore interface {
	// Claim returns false when (kind, targetID) is already claimed.
	Claim(ctx context.Context, kind, targetID string) (bool, error)
	Release(ctx context.Context, kind, targetID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRunStore keeps claims in the automation_runs table.
type PostgresRunStore struct {
	db execer
}

func NewPostgresRunStore(db execer) *PostgresRunStore {
	if db == nil {
		panic("automation: db required")
	}
	return &PostgresRunStore{db: db}
}

func (s *PostgresRunStore) Claim(ctx context.Context, kind, targetID string) (bool, error) {
	query := `
		INSERT INTO automation_runs (kind, target_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, kind, targetID)
	if err != nil {
		return false, fmt.Errorf("automation: claim %s: %w", kind, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PostgresRunStore) Release(ctx context.Context, kind, targetID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM automation_runs WHERE kind = $1 AND target_id = $2`, kind, targetID); err != nil {
		return fmt.Errorf("automation: release %s: %w", kind, err)
	}
	return nil
}

// MemoryRunStore is an in-process RunStore for development and tests.
type MemoryRunStore struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{claims: make(map[string]struct{})}
}

func (m *MemoryRunStore) Claim(_ context.Context, kind, targetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := kind + "|" + targetID
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = struct{}{}
	return true, nil
}

func (m *MemoryRunStore) Release(_ context.Context, kind, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, kind+"|"+targetID)
	return nil
}

// Claimed reports whether (kind, targetID) is currently claimed.
func (m *MemoryRunStore) Claimed(kind, targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[kind+"|"+targetID]
	return ok
}
