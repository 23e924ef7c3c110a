package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/users"
)

// fakeProvider returns canned invoices and statuses.
type fakeProvider struct {
	mu        sync.Mutex
	state     provider.State
	stateErr  error
	createErr error
	nextID    string
	queries   int
}

func (f *fakeProvider) CreateInvoice(ctx context.Context, amount int64, currency string) (*provider.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.nextID
	if id == "" {
		id = "inv_fake"
	}
	return &provider.Invoice{ID: id, PayAddress: "0xpay", PayAmount: "1.0", Currency: currency}, nil
}

func (f *fakeProvider) QueryStatus(ctx context.Context, invoiceID string) (provider.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.state, f.stateErr
}

func (f *fakeProvider) setState(s provider.State, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.stateErr = err
}

// fakePresenter records announcements.
type fakePresenter struct {
	mu        sync.Mutex
	presented int
	resolved  []string
	expired   []string
	bonuses   []int64
}

func (f *fakePresenter) PresentInvoice(ctx context.Context, userID int64, inv *provider.Invoice, amount int64, expiresAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented++
	return f.presented, nil
}

func (f *fakePresenter) AnnounceResolved(ctx context.Context, op *registry.Operation, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, op.InvoiceID)
	return nil
}

func (f *fakePresenter) AnnounceExpired(ctx context.Context, op *registry.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, op.InvoiceID)
	return nil
}

func (f *fakePresenter) NotifyReferralBonus(ctx context.Context, referrerID, bonus int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bonuses = append(f.bonuses, bonus)
	return nil
}

type engineFixture struct {
	engine    *Engine
	registry  *registry.Registry
	ledger    *ledger.Ledger
	users     *users.Service
	crypto    *fakeProvider
	fiat      *fakeProvider
	presenter *fakePresenter
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		registry:  registry.New(registry.NewMemoryStore()),
		ledger:    ledger.New(ledger.NewMemoryStore()),
		users:     users.New(users.NewMemoryStore()),
		crypto:    &fakeProvider{state: provider.StatePending},
		fiat:      &fakeProvider{state: provider.StatePending},
		presenter: &fakePresenter{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = New(f.registry, f.ledger, f.users, f.fiat, f.crypto, f.presenter, Config{
		MinTopup:    500,
		MaxTopup:    1000000,
		Window:      30 * time.Minute,
		ReferralPct: 10,
	}, logger)
	return f
}

func TestStartInvoice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, err := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	if err != nil {
		t.Fatalf("StartInvoice failed: %v", err)
	}
	if op.Status != registry.StatusPending || op.Amount != 5000 || op.Method != "eth" {
		t.Errorf("unexpected operation: %+v", op)
	}
	if op.AnchorMessageID != 1 {
		t.Errorf("anchor message not recorded: %d", op.AnchorMessageID)
	}
}

func TestStartInvoice_AmountBounds(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	for _, amount := range []int64{0, 499, 1000001} {
		if _, err := f.engine.StartInvoice(ctx, 100, amount, "fiat"); !errors.Is(err, ErrAmountOutOfBounds) {
			t.Errorf("amount %d: expected ErrAmountOutOfBounds, got %v", amount, err)
		}
	}

	// Boundary values are accepted.
	f.fiat.nextID = "inv_min"
	if _, err := f.engine.StartInvoice(ctx, 100, 500, "fiat"); err != nil {
		t.Errorf("min amount rejected: %v", err)
	}
	f.fiat.nextID = "inv_max"
	if _, err := f.engine.StartInvoice(ctx, 100, 1000000, "fiat"); err != nil {
		t.Errorf("max amount rejected: %v", err)
	}
}

func TestStartInvoice_UnknownMethod(t *testing.T) {
	f := newEngineFixture(t)
	if _, err := f.engine.StartInvoice(context.Background(), 100, 5000, "doge"); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestCheck_CreditsOnConfirmation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "btc")
	f.crypto.setState(provider.StateConfirmed, nil)

	outcome, err := f.engine.Check(ctx, 100, op.InvoiceID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if outcome != OutcomeCredited {
		t.Fatalf("expected credited, got %s", outcome)
	}

	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Errorf("expected balance 5000, got %d", balance)
	}
}

func TestCheck_SecondCheckIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "btc")
	f.crypto.setState(provider.StateConfirmed, nil)

	f.engine.Check(ctx, 100, op.InvoiceID)
	outcome, err := f.engine.Check(ctx, 100, op.InvoiceID)
	if err != nil {
		t.Fatalf("second Check failed: %v", err)
	}
	if outcome != OutcomeCredited {
		t.Fatalf("expected credited on second check, got %s", outcome)
	}

	// Exactly one credit despite two confirming checks.
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Errorf("double credit: balance %d", balance)
	}
}

func TestCheck_PendingAndNotFound(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")

	outcome, err := f.engine.Check(ctx, 100, op.InvoiceID)
	if err != nil || outcome != OutcomePending {
		t.Errorf("expected pending, got %s (%v)", outcome, err)
	}

	outcome, err = f.engine.Check(ctx, 100, "inv_ghost")
	if err != nil || outcome != OutcomeNotFound {
		t.Errorf("expected not_found, got %s (%v)", outcome, err)
	}
}

func TestCheck_ProviderErrorIsRetryable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateUnknown, provider.ErrUnavailable)

	if _, err := f.engine.Check(ctx, 100, op.InvoiceID); !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// The invoice stays pending; nothing was credited or expired.
	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusPending {
		t.Errorf("status changed to %s", got.Status)
	}
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 0 {
		t.Errorf("unexpected credit: %d", balance)
	}
}

func TestExpiry_FailClosedOnProviderOutage(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateUnknown, provider.ErrUnavailable)

	f.engine.expireDue(ctx, op)

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 0 {
		t.Errorf("credited despite provider outage: %d", balance)
	}
	if len(f.presenter.expired) != 1 {
		t.Errorf("expiry not announced: %v", f.presenter.expired)
	}
}

func TestExpiry_LastLookConfirms(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "ltc")
	f.crypto.setState(provider.StateConfirmed, nil)

	f.engine.expireDue(ctx, op)

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusResolved {
		t.Fatalf("expected resolved at deadline, got %s", got.Status)
	}
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Errorf("expected balance 5000, got %d", balance)
	}
}

func TestResolveRace_SingleCredit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "btc")
	f.crypto.setState(provider.StateConfirmed, nil)

	// Manual check, deadline last-look and watcher all fire together.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); f.engine.Check(ctx, 100, op.InvoiceID) }()
	go func() { defer wg.Done(); f.engine.expireDue(ctx, op) }()
	go func() { defer wg.Done(); f.engine.ConfirmExternal(ctx, op.InvoiceID) }()
	wg.Wait()

	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Fatalf("expected exactly one credit of 5000, got balance %d", balance)
	}
	if len(f.presenter.resolved) != 1 {
		t.Errorf("expected 1 resolved announcement, got %d", len(f.presenter.resolved))
	}
}

func TestReferralBonus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.users.Register(ctx, 200, 0, "en")
	f.users.Register(ctx, 100, 200, "en")

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateConfirmed, nil)
	f.engine.Check(ctx, 100, op.InvoiceID)

	// 10% of 50.00 EUR.
	referrerBalance, _ := f.ledger.GetBalance(ctx, 200)
	if referrerBalance != 500 {
		t.Errorf("expected referral bonus 500, got %d", referrerBalance)
	}
	if len(f.presenter.bonuses) != 1 || f.presenter.bonuses[0] != 500 {
		t.Errorf("bonus notification wrong: %v", f.presenter.bonuses)
	}

	// The buyer's own balance is untouched by the bonus.
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Errorf("expected balance 5000, got %d", balance)
	}
}

func TestReferralBonus_NoReferrer(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.users.Register(ctx, 100, 0, "en")
	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateConfirmed, nil)
	f.engine.Check(ctx, 100, op.InvoiceID)

	if len(f.presenter.bonuses) != 0 {
		t.Errorf("bonus paid with no referrer: %v", f.presenter.bonuses)
	}
}

func TestConfirmExternal_ProviderIsAuthority(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")

	// A transfer was observed on-chain, but the provider still reports the
	// invoice pending (dust or partial payment). Nothing may be credited.
	f.crypto.setState(provider.StatePending, nil)
	f.engine.ConfirmExternal(ctx, op.InvoiceID)

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusPending {
		t.Fatalf("status changed to %s on unverified confirmation", got.Status)
	}
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 0 {
		t.Fatalf("credited %d without provider confirmation", balance)
	}

	// Once the provider agrees, the same signal resolves and credits.
	f.crypto.setState(provider.StateConfirmed, nil)
	f.engine.ConfirmExternal(ctx, op.InvoiceID)

	got, _ = f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusResolved {
		t.Fatalf("expected resolved, got %s", got.Status)
	}
	balance, _ = f.ledger.GetBalance(ctx, 100)
	if balance != 5000 {
		t.Errorf("expected balance 5000, got %d", balance)
	}
}

func TestConfirmExternal_ProviderErrorDoesNotCredit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateUnknown, provider.ErrUnavailable)

	f.engine.ConfirmExternal(ctx, op.InvoiceID)

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusPending {
		t.Fatalf("status changed to %s during provider outage", got.Status)
	}
}

func TestCancel_ExpiresOwnInvoice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	if !f.engine.Cancel(ctx, 100, op.InvoiceID) {
		t.Fatal("Cancel refused the owner's pending invoice")
	}

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if len(f.presenter.expired) != 1 {
		t.Errorf("expected 1 expiry announcement, got %d", len(f.presenter.expired))
	}
}

func TestCancel_RepeatAnnouncesOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	if !f.engine.Cancel(ctx, 100, op.InvoiceID) {
		t.Fatal("first Cancel refused")
	}
	if f.engine.Cancel(ctx, 100, op.InvoiceID) {
		t.Error("second Cancel reported a cancellation")
	}
	f.engine.Cancel(ctx, 100, op.InvoiceID)

	// Only the tap that performed the transition edits the anchor.
	if len(f.presenter.expired) != 1 {
		t.Fatalf("expected 1 expiry announcement, got %d", len(f.presenter.expired))
	}
}

func TestCancel_ForeignInvoiceIgnored(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	if f.engine.Cancel(ctx, 200, op.InvoiceID) {
		t.Error("Cancel accepted a foreign invoice")
	}

	got, _ := f.registry.Lookup(ctx, op.InvoiceID)
	if got.Status != registry.StatusPending {
		t.Fatalf("another user cancelled the invoice: %s", got.Status)
	}
}

func TestCheck_ForeignInvoiceNotFound(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateConfirmed, nil)

	outcome, err := f.engine.Check(ctx, 200, op.InvoiceID)
	if err != nil || outcome != OutcomeNotFound {
		t.Fatalf("expected not_found for foreign invoice, got %s (%v)", outcome, err)
	}

	// The foreign check neither credited nor leaked the operation's state.
	balance, _ := f.ledger.GetBalance(ctx, 100)
	if balance != 0 {
		t.Errorf("foreign check credited: %d", balance)
	}
}

func TestTimer_RunsUntilStopped(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.cfg.SweepInterval = 10 * time.Millisecond

	timer := NewTimer(f.engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan struct{})
	go func() {
		timer.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !timer.Running() {
		if time.Now().After(deadline) {
			t.Fatal("timer never reported running")
		}
		time.Sleep(time.Millisecond)
	}

	timer.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop")
	}
	if timer.Running() {
		t.Error("stopped timer still reports running")
	}
}

func TestTimerSweep_ExpiresOverdueOnly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.cfg.Window = 50 * time.Millisecond

	f.crypto.nextID = "inv_overdue"
	f.engine.StartInvoice(ctx, 100, 5000, "eth")
	time.Sleep(80 * time.Millisecond)
	f.crypto.nextID = "inv_fresh"
	f.engine.StartInvoice(ctx, 200, 1000, "eth")

	timer := NewTimer(f.engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	timer.safeSweep(ctx)

	overdue, _ := f.registry.Lookup(ctx, "inv_overdue")
	fresh, _ := f.registry.Lookup(ctx, "inv_fresh")
	if overdue.Status != registry.StatusExpired {
		t.Errorf("overdue invoice not expired: %s", overdue.Status)
	}
	if fresh.Status != registry.StatusPending {
		t.Errorf("fresh invoice touched by sweep: %s", fresh.Status)
	}
}

func TestAudit_ReportsUncredited(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// A normally resolved invoice: credited.
	op, _ := f.engine.StartInvoice(ctx, 100, 5000, "eth")
	f.crypto.setState(provider.StateConfirmed, nil)
	f.engine.Check(ctx, 100, op.InvoiceID)

	// A resolved-but-uncredited invoice, as after a crash mid-resolve.
	f.registry.Register(ctx, "inv_crashed", 200, 1000, 2, "eth")
	f.registry.Resolve(ctx, "inv_crashed")

	f.engine.Audit(ctx, 100)
	// Audit only logs and gauges; the assertion is that it neither panics
	// nor credits retroactively.
	balance, _ := f.ledger.GetBalance(ctx, 200)
	if balance != 0 {
		t.Errorf("audit credited retroactively: %d", balance)
	}
}
