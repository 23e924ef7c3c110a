// Package checkout executes purchases against the balance ledger and the
// inventory pools.
//
// Flow:
//  1. Look up the item and verify the buyer's balance covers the price
//  2. Pop one deliverable unit from the item's pool
//  3. Debit the price and issue a receipt carrying the unit
//
// Purchases for the same buyer are serialized through a context-aware
// per-user lock, so a basket of items drains the balance one debit at a
// time with no interleaving.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/idgen"
	"github.com/ozerovd/linemart/internal/inventory"
	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/receipts"
	"github.com/ozerovd/linemart/internal/syncutil"
	"github.com/ozerovd/linemart/internal/traces"
)

var (
	ErrItemNotFound      = errors.New("checkout: item not found")
	ErrOutOfStock        = errors.New("checkout: item out of stock")
	ErrInsufficientFunds = errors.New("checkout: insufficient funds")
)

// Service coordinates a purchase across catalog, inventory, ledger and
// receipts.
type Service struct {
	catalog   *catalog.Catalog
	pool      *inventory.Pool
	ledger    *ledger.Ledger
	receipts  *receipts.Service
	userLocks *syncutil.ContextShardedMutex
	logger    *slog.Logger
}

// New creates a checkout service.
func New(cat *catalog.Catalog, pool *inventory.Pool, led *ledger.Ledger, rcpt *receipts.Service, logger *slog.Logger) *Service {
	return &Service{
		catalog:   cat,
		pool:      pool,
		ledger:    led,
		receipts:  rcpt,
		userLocks: syncutil.NewContextShardedMutex(),
		logger:    logger.With("component", "checkout"),
	}
}

// Purchase buys one unit of the named item for the user and returns the
// receipt carrying the delivered payload.
func (s *Service) Purchase(ctx context.Context, userID int64, itemName string) (*receipts.Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "checkout.purchase",
		traces.UserID(userID), traces.Item(itemName))
	defer span.End()

	unlock, err := s.userLocks.LockContext(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.purchaseLocked(ctx, userID, itemName)
}

// BasketResult is the outcome of one item in a basket checkout.
type BasketResult struct {
	Item    string
	Receipt *receipts.Receipt
	Err     error
}

// CheckoutBasket buys the listed items one by one under a single user lock,
// stopping at the first failed line. The results report every attempted
// item, and the balance only pays for the units actually delivered.
func (s *Service) CheckoutBasket(ctx context.Context, userID int64, itemNames []string) ([]BasketResult, error) {
	unlock, err := s.userLocks.LockContext(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	defer unlock()

	results := make([]BasketResult, 0, len(itemNames))
	for _, name := range itemNames {
		r, err := s.purchaseLocked(ctx, userID, name)
		results = append(results, BasketResult{Item: name, Receipt: r, Err: err})
		if err != nil {
			break
		}
	}
	return results, nil
}

func (s *Service) purchaseLocked(ctx context.Context, userID int64, itemName string) (*receipts.Receipt, error) {
	item, err := s.catalog.Get(ctx, itemName)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	// Cheap pre-check so an underfunded buyer never consumes a unit. The
	// authoritative check is the debit below.
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < item.Price {
		return nil, ErrInsufficientFunds
	}

	unit, err := s.pool.Pop(item.Name, item.Unlimited)
	if errors.Is(err, inventory.ErrOutOfStock) {
		return nil, ErrOutOfStock
	}
	if err != nil {
		return nil, err
	}

	purchaseID := idgen.WithPrefix("pur_")
	if _, err := s.ledger.Debit(ctx, userID, item.Price, purchaseID); err != nil {
		// The popped unit is never returned to the pool. Logged so an
		// operator can re-provision it.
		s.logger.Error("debit failed after unit pop, unit lost",
			"user_id", userID, "item", item.Name, "purchase_id", purchaseID, "error", err)
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	receipt, err := s.receipts.Issue(ctx, userID, item.Name, unit, item.Price)
	if err != nil {
		// Paid and popped but unrecorded. The ledger entry under
		// purchaseID is the trail for support to re-send the unit.
		s.logger.Error("receipt write failed",
			"user_id", userID, "item", item.Name, "purchase_id", purchaseID, "error", err)
		return nil, err
	}

	s.logger.Info("purchase completed",
		"user_id", userID, "item", item.Name, "price", item.Price, "receipt_id", receipt.ID)
	return receipt, nil
}
