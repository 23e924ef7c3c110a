// Package receipts records completed purchases and the payloads delivered.
package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/ozerovd/linemart/internal/idgen"
)

// ErrNotFound indicates no receipt exists for the given ID.
var ErrNotFound = errors.New("receipts: not found")

// Receipt is the permanent record of one delivered unit. Payload is the
// exact line handed to the buyer, kept so support can re-send it.
type Receipt struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Item      string    `json:"item"`
	Payload   string    `json:"payload"`
	Price     int64     `json:"price"` // cents
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists receipts.
type Store interface {
	Create(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	ListByUser(ctx context.Context, userID int64) ([]*Receipt, error)
}

// Service issues and looks up receipts.
type Service struct {
	store Store
}

// New creates a receipt service.
func New(store Store) *Service {
	return &Service{store: store}
}

// Issue writes a receipt for a delivered unit and returns it.
func (s *Service) Issue(ctx context.Context, userID int64, item, payload string, price int64) (*Receipt, error) {
	r := &Receipt{
		ID:        idgen.WithPrefix("rcpt_"),
		UserID:    userID,
		Item:      item,
		Payload:   payload,
		Price:     price,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a receipt by ID.
func (s *Service) Get(ctx context.Context, id string) (*Receipt, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns a user's receipts, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*Receipt, error) {
	return s.store.ListByUser(ctx, userID)
}
