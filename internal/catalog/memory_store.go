package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory catalog for demo/development mode.
type MemoryStore struct {
	items map[string]*Item
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

func (m *MemoryStore) Get(ctx context.Context, name string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[name]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStore) ListCategories(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, item := range m.items {
		if !seen[item.Category] {
			seen[item.Category] = true
			categories = append(categories, item.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (m *MemoryStore) ListByCategory(ctx context.Context, category string) ([]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*Item
	for _, item := range m.items {
		if item.Category == category {
			cp := *item
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MemoryStore) Put(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *item
	m.items[item.Name] = &cp
	return nil
}
