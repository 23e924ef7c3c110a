package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory operation store for demo/development mode.
// Terminal operations are kept so Get can report "already processed".
type MemoryStore struct {
	ops map[string]*Operation
	mu  sync.Mutex
}

// NewMemoryStore creates a new in-memory operation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*Operation)}
}

func (m *MemoryStore) Create(ctx context.Context, op *Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.ops[op.InvoiceID]; ok && existing.Status == StatusPending {
		return ErrDuplicateInvoice
	}
	cp := *op
	m.ops[op.InvoiceID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, invoiceID string) (*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[invoiceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) Transition(ctx context.Context, invoiceID string, to Status) (*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[invoiceID]
	if !ok || op.Status != StatusPending {
		return nil, ErrNotFound
	}
	op.Status = to
	op.ResolvedAt = time.Now()
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Operation
	for _, op := range m.ops {
		if op.Status == StatusPending {
			cp := *op
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListResolved(ctx context.Context, before time.Time, limit int) ([]*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Operation
	for _, op := range m.ops {
		if op.Status != StatusResolved {
			continue
		}
		if !before.IsZero() && !op.ResolvedAt.Before(before) {
			continue
		}
		cp := *op
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ResolvedAt.After(result[j].ResolvedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
