package ledger

import (
	"context"
	"sync"

	"github.com/ozerovd/linemart/internal/idgen"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	balances map[int64]int64
	entries  []*Entry
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[int64]int64),
		entries:  make([]*Entry, 0),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[userID], nil
}

func (m *MemoryStore) ApplyDelta(ctx context.Context, entry *Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.balances[entry.UserID] + entry.Delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	m.balances[entry.UserID] = next

	cp := *entry
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("le_")
	}
	m.entries = append(m.entries, &cp)

	return next, nil
}

func (m *MemoryStore) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].UserID == userID {
			result = append(result, m.entries[i])
		}
	}
	return result, nil
}

func (m *MemoryStore) TotalByOrigin(ctx context.Context, userID int64, origin Origin) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, e := range m.entries {
		if e.UserID == userID && e.Origin == origin {
			total += e.Delta
		}
	}
	return total, nil
}

func (m *MemoryStore) HasReference(ctx context.Context, reference string, origin Origin) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.Reference == reference && e.Origin == origin {
			return true, nil
		}
	}
	return false, nil
}
