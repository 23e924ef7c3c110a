// Package ledger tracks user balances in the shop.
//
// Flow:
//  1. A confirmed topup invoice credits the user's balance
//  2. Referral bonuses credit the referrer's balance
//  3. Purchases debit the balance against inventory fulfillment
//
// Every mutation is delta-based and recorded as an Entry, so the sum of a
// user's entries always equals the current balance.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ozerovd/linemart/internal/syncutil"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
)

// Origin tags a ledger entry with the operation that produced it.
type Origin string

const (
	OriginTopup         Origin = "topup"
	OriginReferralBonus Origin = "referral_bonus"
	OriginPurchaseDebit Origin = "purchase_debit"
)

// Entry represents one balance delta applied to a user.
type Entry struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Delta     int64     `json:"delta"` // signed cents
	Origin    Origin    `json:"origin"`
	Reference string    `json:"reference,omitempty"` // invoice ID or receipt ID
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists balances and entries. ApplyDelta must be atomic: the
// balance update and the entry record happen together or not at all, and a
// negative resulting balance is rejected with ErrInsufficientFunds.
type Store interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	ApplyDelta(ctx context.Context, entry *Entry) (int64, error)
	History(ctx context.Context, userID int64, limit int) ([]*Entry, error)
	TotalByOrigin(ctx context.Context, userID int64, origin Origin) (int64, error)
	HasReference(ctx context.Context, reference string, origin Origin) (bool, error)
}

// Ledger manages user balances. Mutations for the same user are serialized
// through a sharded per-user lock; different users never block each other.
type Ledger struct {
	store Store
	locks syncutil.ShardedMutex
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns the user's current balance in cents.
func (l *Ledger) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return l.store.GetBalance(ctx, userID)
}

// Credit adds amount cents to the user's balance and records an entry.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, origin Origin, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	unlock := l.locks.Lock(userKey(userID))
	defer unlock()

	return l.store.ApplyDelta(ctx, &Entry{
		UserID:    userID,
		Delta:     amount,
		Origin:    origin,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}

// Debit removes amount cents from the user's balance. Returns
// ErrInsufficientFunds without mutating anything if the balance would go
// negative.
func (l *Ledger) Debit(ctx context.Context, userID, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	unlock := l.locks.Lock(userKey(userID))
	defer unlock()

	return l.store.ApplyDelta(ctx, &Entry{
		UserID:    userID,
		Delta:     -amount,
		Origin:    OriginPurchaseDebit,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}

// History returns the most recent entries for a user.
func (l *Ledger) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, userID, limit)
}

// TotalToppedUp returns the lifetime sum of topup credits for a user.
func (l *Ledger) TotalToppedUp(ctx context.Context, userID int64) (int64, error) {
	return l.store.TotalByOrigin(ctx, userID, OriginTopup)
}

// WasCredited reports whether a topup entry exists for the given invoice.
// Used by the startup audit to detect resolved-but-uncredited invoices.
func (l *Ledger) WasCredited(ctx context.Context, invoiceID string) (bool, error) {
	return l.store.HasReference(ctx, invoiceID, OriginTopup)
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
