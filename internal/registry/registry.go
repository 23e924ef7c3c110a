// Package registry tracks in-flight payment operations keyed by invoice ID.
//
// It is the single source of truth for "has this invoice been resolved yet".
// The timeout sweep, the user-driven payment check, and the on-chain watcher
// all race toward Resolve; the store's atomic pending->terminal transition
// guarantees exactly one of them wins. The losers observe ErrNotFound, which
// is the expected benign outcome of the race, not a failure.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("registry: no pending operation for invoice")
	ErrDuplicateInvoice = errors.New("registry: invoice already registered")
)

// Status represents an operation's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Operation represents one in-flight payment attempt.
type Operation struct {
	InvoiceID       string    `json:"invoiceId"`
	UserID          int64     `json:"userId"`
	Amount          int64     `json:"amount"` // cents
	AnchorMessageID int       `json:"anchorMessageId"`
	Method          string    `json:"method"` // "fiat" or crypto currency code
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	ResolvedAt      time.Time `json:"resolvedAt,omitempty"`
}

// Store persists operations. Transition must atomically move a pending
// operation to the given terminal status and return it; when no pending
// operation exists for the invoice it returns ErrNotFound without mutating
// anything. Operations are never moved out of a terminal status.
type Store interface {
	Create(ctx context.Context, op *Operation) error
	Get(ctx context.Context, invoiceID string) (*Operation, error)
	Transition(ctx context.Context, invoiceID string, to Status) (*Operation, error)
	ListPending(ctx context.Context) ([]*Operation, error)
	// ListResolved returns resolved operations newest first. A non-zero
	// before restricts the page to operations resolved strictly earlier.
	ListResolved(ctx context.Context, before time.Time, limit int) ([]*Operation, error)
}

// Registry coordinates operation lifecycle transitions.
type Registry struct {
	store Store
}

// New creates a new operation registry.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Register records a new pending operation for an issued invoice.
// Fails with ErrDuplicateInvoice if a pending operation already exists.
// Invoice IDs are provider-assigned and globally unique, so a duplicate
// is an invariant violation, not a user error.
func (r *Registry) Register(ctx context.Context, invoiceID string, userID, amount int64, anchorMessageID int, method string) (*Operation, error) {
	op := &Operation{
		InvoiceID:       invoiceID,
		UserID:          userID,
		Amount:          amount,
		AnchorMessageID: anchorMessageID,
		Method:          method,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
	}
	if err := r.store.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Peek returns the operation for an invoice without mutating it.
// Returns ErrNotFound if the invoice has no pending operation.
func (r *Registry) Peek(ctx context.Context, invoiceID string) (*Operation, error) {
	op, err := r.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if op.Status != StatusPending {
		return nil, ErrNotFound
	}
	return op, nil
}

// Lookup returns the operation for an invoice regardless of status, so
// callers can tell "already resolved" apart from "never existed".
func (r *Registry) Lookup(ctx context.Context, invoiceID string) (*Operation, error) {
	return r.store.Get(ctx, invoiceID)
}

// Resolve atomically transitions PENDING -> RESOLVED and returns the
// operation. Exactly one caller per invoice ever receives the operation;
// everyone else gets ErrNotFound. This is the serialization point that
// prevents double credits.
func (r *Registry) Resolve(ctx context.Context, invoiceID string) (*Operation, error) {
	return r.store.Transition(ctx, invoiceID, StatusResolved)
}

// Expire transitions PENDING -> EXPIRED. Reports false, not an error, when
// the operation was already resolved or expired, so callers can tell a real
// transition apart from a repeat request.
func (r *Registry) Expire(ctx context.Context, invoiceID string) (bool, error) {
	_, err := r.store.Transition(ctx, invoiceID, StatusExpired)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPending returns all pending operations, used to re-arm expiry timers
// after a restart.
func (r *Registry) ListPending(ctx context.Context) ([]*Operation, error) {
	return r.store.ListPending(ctx)
}

// ListResolved returns recently resolved operations for the startup audit.
func (r *Registry) ListResolved(ctx context.Context, limit int) ([]*Operation, error) {
	return r.ListResolvedBefore(ctx, time.Time{}, limit)
}

// ListResolvedBefore returns a page of resolved operations older than the
// given cursor timestamp, newest first. A zero before starts at the latest.
func (r *Registry) ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]*Operation, error) {
	if limit <= 0 {
		limit = 500
	}
	return r.store.ListResolved(ctx, before, limit)
}
