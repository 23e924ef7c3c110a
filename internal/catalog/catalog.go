// Package catalog holds the storefront's purchasable items.
package catalog

import (
	"context"
	"errors"
)

// ErrItemNotFound indicates the requested item does not exist.
var ErrItemNotFound = errors.New("catalog: item not found")

// Item is a purchasable product. Price is in cents. Unlimited items serve
// the same deliverable to every buyer and never go out of stock.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	Unlimited   bool   `json:"unlimited"`
}

// Store persists catalog items.
type Store interface {
	Get(ctx context.Context, name string) (*Item, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListByCategory(ctx context.Context, category string) ([]*Item, error)
	Put(ctx context.Context, item *Item) error
}

// Catalog provides read access to the item catalog.
type Catalog struct {
	store Store
}

// New creates a catalog backed by the given store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Get returns the item by name.
func (c *Catalog) Get(ctx context.Context, name string) (*Item, error) {
	return c.store.Get(ctx, name)
}

// ListCategories returns the distinct categories in display order.
func (c *Catalog) ListCategories(ctx context.Context) ([]string, error) {
	return c.store.ListCategories(ctx)
}

// ListByCategory returns all items in a category.
func (c *Catalog) ListByCategory(ctx context.Context, category string) ([]*Item, error) {
	return c.store.ListByCategory(ctx, category)
}

// Put creates or replaces an item. Admin provisioning path.
func (c *Catalog) Put(ctx context.Context, item *Item) error {
	return c.store.Put(ctx, item)
}
