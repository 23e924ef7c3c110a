// Package users tracks registered buyers and their referral relationships.
package users

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the user has never registered.
var ErrNotFound = errors.New("users: not found")

// User is a registered buyer keyed by messenger account ID. ReferrerID is
// zero when the user joined without a referral link.
type User struct {
	ID           int64     `json:"id"`
	ReferrerID   int64     `json:"referrerId,omitempty"`
	Language     string    `json:"language"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	SetLanguage(ctx context.Context, id int64, lang string) error
	CountReferrals(ctx context.Context, referrerID int64) (int, error)
}

// Service manages user registration.
type Service struct {
	store Store
}

// New creates a user service.
func New(store Store) *Service {
	return &Service{store: store}
}

// Register records a first-time user. Idempotent: an already registered
// user is returned unchanged, and the referrer of a returning user is never
// rewritten. A self-referral is silently dropped.
func (s *Service) Register(ctx context.Context, id, referrerID int64, lang string) (*User, error) {
	if existing, err := s.store.Get(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if referrerID == id {
		referrerID = 0
	}
	if referrerID != 0 {
		// Referrer must itself be registered, otherwise the link is bogus.
		if _, err := s.store.Get(ctx, referrerID); errors.Is(err, ErrNotFound) {
			referrerID = 0
		} else if err != nil {
			return nil, err
		}
	}

	u := &User{
		ID:           id,
		ReferrerID:   referrerID,
		Language:     lang,
		RegisteredAt: time.Now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns a registered user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.Get(ctx, id)
}

// SetLanguage updates the user's preferred language.
func (s *Service) SetLanguage(ctx context.Context, id int64, lang string) error {
	return s.store.SetLanguage(ctx, id, lang)
}

// CountReferrals returns how many users joined through this user's link.
func (s *Service) CountReferrals(ctx context.Context, id int64) (int, error) {
	return s.store.CountReferrals(ctx, id)
}
