// Package payments drives the topup invoice lifecycle from creation to
// balance credit.
//
// Flow:
//  1. StartInvoice validates the amount, asks the provider for an invoice,
//     presents it to the user and registers a pending operation
//  2. Three sources race to finish the operation: the expiry sweep, the
//     user-driven Check, and the on-chain watcher
//  3. Whoever wins the registry's atomic resolve credits the balance once,
//     pays the referral bonus and updates the anchor message
//
// Expiry is fail-closed: when the payment window lapses the provider is
// queried one last time, and anything short of a definite confirmation
// expires the invoice. A provider outage at the deadline never credits.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/money"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/traces"
	"github.com/ozerovd/linemart/internal/users"
)

var (
	ErrAmountOutOfBounds = errors.New("payments: amount out of bounds")
	ErrUnknownMethod     = errors.New("payments: unknown payment method")
)

// CheckOutcome is what a user-driven payment check found.
type CheckOutcome string

const (
	OutcomeCredited CheckOutcome = "credited"  // this check won the race
	OutcomePending  CheckOutcome = "pending"   // not paid yet, keep waiting
	OutcomeExpired  CheckOutcome = "expired"   // window lapsed or provider failed it
	OutcomeNotFound CheckOutcome = "not_found" // no such invoice
)

// Presenter is the messaging surface the engine talks back through. The
// bot implements it; tests fake it.
type Presenter interface {
	// PresentInvoice shows the payment request to the user and returns the
	// ID of the message that anchors later status edits.
	PresentInvoice(ctx context.Context, userID int64, inv *provider.Invoice, amount int64, expiresAt time.Time) (int, error)

	// AnnounceResolved rewrites the anchor message after a credit.
	AnnounceResolved(ctx context.Context, op *registry.Operation, balance int64) error

	// AnnounceExpired rewrites the anchor message after expiry.
	AnnounceExpired(ctx context.Context, op *registry.Operation) error

	// NotifyReferralBonus tells a referrer they earned a bonus.
	NotifyReferralBonus(ctx context.Context, referrerID, bonus int64) error
}

// Config bounds and times the invoice lifecycle. Amounts are cents.
type Config struct {
	MinTopup      int64
	MaxTopup      int64
	Window        time.Duration
	ReferralPct   int64
	SweepInterval time.Duration
}

// Engine coordinates invoice resolution across the registry, the ledger and
// the payment providers.
type Engine struct {
	registry  *registry.Registry
	ledger    *ledger.Ledger
	users     *users.Service
	fiat      provider.Provider
	crypto    provider.Provider
	presenter Presenter
	cfg       Config
	logger    *slog.Logger
}

// New creates a payment engine.
func New(reg *registry.Registry, led *ledger.Ledger, usr *users.Service, fiat, crypto provider.Provider, presenter Presenter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Second
	}
	return &Engine{
		registry:  reg,
		ledger:    led,
		users:     usr,
		fiat:      fiat,
		crypto:    crypto,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger.With("component", "payments"),
	}
}

// StartInvoice opens a topup operation: creates the provider invoice,
// presents it and registers it as pending. The returned operation expires
// after the configured window unless resolved first.
func (e *Engine) StartInvoice(ctx context.Context, userID, amount int64, method string) (*registry.Operation, error) {
	ctx, span := traces.StartSpan(ctx, "payments.start_invoice",
		traces.UserID(userID), traces.Amount(amount), traces.Method(method))
	defer span.End()

	if amount < e.cfg.MinTopup || amount > e.cfg.MaxTopup {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfBounds,
			money.Format(amount), money.Format(e.cfg.MinTopup), money.Format(e.cfg.MaxTopup))
	}

	prov, currency, err := e.route(method)
	if err != nil {
		return nil, err
	}

	inv, err := prov.CreateInvoice(ctx, amount, currency)
	if err != nil {
		return nil, err
	}

	anchorID, err := e.presenter.PresentInvoice(ctx, userID, inv, amount, time.Now().Add(e.cfg.Window))
	if err != nil {
		e.logger.Error("invoice presentation failed", "invoice_id", inv.ID, "error", err)
		return nil, err
	}

	op, err := e.registry.Register(ctx, inv.ID, userID, amount, anchorID, method)
	if err != nil {
		e.logger.Error("invoice registration failed", "invoice_id", inv.ID, "error", err)
		return nil, err
	}

	invoicesCreated.WithLabelValues(method).Inc()
	topupAmount.Observe(float64(amount) / 100)
	e.logger.Info("invoice started",
		"invoice_id", op.InvoiceID, "user_id", userID, "amount", amount, "method", method)
	return op, nil
}

// Check is the user-driven payment verification. Safe to call any number
// of times; at most one call ever credits. Another user's invoice answers
// not_found, so crafted callback data learns nothing about foreign operations.
func (e *Engine) Check(ctx context.Context, userID int64, invoiceID string) (CheckOutcome, error) {
	op, err := e.registry.Lookup(ctx, invoiceID)
	if errors.Is(err, registry.ErrNotFound) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if op.UserID != userID {
		return OutcomeNotFound, nil
	}

	switch op.Status {
	case registry.StatusResolved:
		return OutcomeCredited, nil
	case registry.StatusExpired:
		return OutcomeExpired, nil
	}

	prov, _, err := e.route(op.Method)
	if err != nil {
		return "", err
	}

	state, err := prov.QueryStatus(ctx, invoiceID)
	if err != nil {
		// A manual check failing is retryable; only the deadline path
		// turns provider trouble into expiry.
		return "", err
	}

	switch state {
	case provider.StateConfirmed:
		// Losing the race here is fine: another source already credited.
		e.resolve(ctx, invoiceID, "check")
		return OutcomeCredited, nil
	case provider.StateFailed:
		e.expireNow(ctx, invoiceID, "provider_failed")
		return OutcomeExpired, nil
	default:
		return OutcomePending, nil
	}
}

// Cancel expires an invoice at its owner's request and reports whether it
// was still cancellable. A no-op for another user's invoice or one already
// in a terminal status.
func (e *Engine) Cancel(ctx context.Context, userID int64, invoiceID string) bool {
	op, err := e.registry.Lookup(ctx, invoiceID)
	if err != nil || op.UserID != userID || op.Status != registry.StatusPending {
		return false
	}
	e.expireNow(ctx, invoiceID, "cancelled")
	return true
}

// ConfirmExternal handles an out-of-band payment signal, such as the
// on-chain watcher seeing a transfer land on the deposit address. The
// signal only prompts a status query; the provider stays the authority on
// whether the invoice is paid in full, so a partial or dust transfer to a
// displayed address never credits.
func (e *Engine) ConfirmExternal(ctx context.Context, invoiceID string) {
	op, err := e.registry.Lookup(ctx, invoiceID)
	if err != nil || op.Status != registry.StatusPending {
		return
	}

	prov, _, err := e.route(op.Method)
	if err != nil {
		return
	}
	state, err := prov.QueryStatus(ctx, invoiceID)
	if err != nil {
		e.logger.Warn("external confirmation could not be verified",
			"invoice_id", invoiceID, "error", err)
		return
	}
	if state != provider.StateConfirmed {
		e.logger.Warn("external confirmation not backed by provider",
			"invoice_id", invoiceID, "state", string(state))
		return
	}
	e.resolve(ctx, invoiceID, "watcher")
}

// resolve attempts the atomic pending->resolved transition and performs the
// winner's side effects. Reports whether this call won.
func (e *Engine) resolve(ctx context.Context, invoiceID, source string) bool {
	ctx, span := traces.StartSpan(ctx, "payments.resolve", traces.InvoiceID(invoiceID))
	defer span.End()

	op, err := e.registry.Resolve(ctx, invoiceID)
	if errors.Is(err, registry.ErrNotFound) {
		// Another source already finished it. Expected.
		return false
	}
	if err != nil {
		e.logger.Error("resolve transition failed", "invoice_id", invoiceID, "error", err)
		return false
	}

	balance, err := e.ledger.Credit(ctx, op.UserID, op.Amount, ledger.OriginTopup, op.InvoiceID)
	if err != nil {
		// Resolved but uncredited. The startup audit reports these.
		e.logger.Error("credit failed for resolved invoice",
			"invoice_id", op.InvoiceID, "user_id", op.UserID, "amount", op.Amount, "error", err)
		return true
	}

	invoicesResolved.WithLabelValues(source).Inc()
	e.logger.Info("invoice resolved",
		"invoice_id", op.InvoiceID, "user_id", op.UserID, "amount", op.Amount, "source", source)

	e.payReferralBonus(ctx, op)

	if err := e.presenter.AnnounceResolved(ctx, op, balance); err != nil {
		e.logger.Warn("resolved announcement failed", "invoice_id", op.InvoiceID, "error", err)
	}
	return true
}

// payReferralBonus credits the referrer their cut of the topup, if any.
func (e *Engine) payReferralBonus(ctx context.Context, op *registry.Operation) {
	if e.cfg.ReferralPct <= 0 {
		return
	}
	u, err := e.users.Get(ctx, op.UserID)
	if err != nil || u.ReferrerID == 0 {
		return
	}

	bonus := money.Percent(op.Amount, e.cfg.ReferralPct)
	if bonus <= 0 {
		return
	}
	if _, err := e.ledger.Credit(ctx, u.ReferrerID, bonus, ledger.OriginReferralBonus, op.InvoiceID); err != nil {
		e.logger.Error("referral bonus credit failed",
			"invoice_id", op.InvoiceID, "referrer_id", u.ReferrerID, "bonus", bonus, "error", err)
		return
	}

	referralBonuses.Inc()
	e.logger.Info("referral bonus paid",
		"invoice_id", op.InvoiceID, "referrer_id", u.ReferrerID, "bonus", bonus)

	if err := e.presenter.NotifyReferralBonus(ctx, u.ReferrerID, bonus); err != nil {
		e.logger.Warn("referral notification failed", "referrer_id", u.ReferrerID, "error", err)
	}
}

// expireDue runs the fail-closed deadline path for one overdue invoice:
// one last provider query, then expiry unless definitely confirmed.
func (e *Engine) expireDue(ctx context.Context, op *registry.Operation) {
	prov, _, err := e.route(op.Method)
	if err != nil {
		e.expireNow(ctx, op.InvoiceID, "bad_method")
		return
	}

	state, err := prov.QueryStatus(ctx, op.InvoiceID)
	if err == nil && state == provider.StateConfirmed {
		e.resolve(ctx, op.InvoiceID, "expiry")
		return
	}
	if err != nil {
		e.logger.Warn("provider unreachable at deadline, expiring",
			"invoice_id", op.InvoiceID, "error", err)
	}
	e.expireNow(ctx, op.InvoiceID, "deadline")
}

// expireNow transitions the invoice to expired and updates the anchor.
// A no-op when the invoice already reached a terminal status: only the call
// that actually performs the transition announces and counts it.
func (e *Engine) expireNow(ctx context.Context, invoiceID, reason string) {
	moved, err := e.registry.Expire(ctx, invoiceID)
	if err != nil {
		e.logger.Error("expire transition failed", "invoice_id", invoiceID, "error", err)
		return
	}
	if !moved {
		return
	}

	op, err := e.registry.Lookup(ctx, invoiceID)
	if err != nil {
		return
	}

	invoicesExpired.WithLabelValues(reason).Inc()
	e.logger.Info("invoice expired",
		"invoice_id", op.InvoiceID, "user_id", op.UserID, "reason", reason)

	if err := e.presenter.AnnounceExpired(ctx, op); err != nil {
		e.logger.Warn("expiry announcement failed", "invoice_id", op.InvoiceID, "error", err)
	}
}

func (e *Engine) route(method string) (provider.Provider, string, error) {
	switch {
	case method == provider.MethodFiat:
		return e.fiat, "eur", nil
	case provider.IsCryptoCurrency(method):
		return e.crypto, method, nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
}
