package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCreditAndBalance(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	bal, err := l.Credit(ctx, 100, 5000, OriginTopup, "inv_1")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if bal != 5000 {
		t.Errorf("expected balance 5000, got %d", bal)
	}

	got, err := l.GetBalance(ctx, 100)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if got != 5000 {
		t.Errorf("expected balance 5000, got %d", got)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if _, err := l.Credit(ctx, 100, 1000, OriginTopup, "inv_1"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	if _, err := l.Debit(ctx, 100, 1500, "rcpt_1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Balance unchanged after the failed debit.
	bal, _ := l.GetBalance(ctx, 100)
	if bal != 1000 {
		t.Errorf("expected balance 1000, got %d", bal)
	}
}

func TestInvalidAmounts(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if _, err := l.Credit(ctx, 100, 0, OriginTopup, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero credit, got %v", err)
	}
	if _, err := l.Debit(ctx, 100, -5, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative debit, got %v", err)
	}
}

func TestEntriesSumToBalance(t *testing.T) {
	store := NewMemoryStore()
	l := New(store)
	ctx := context.Background()

	l.Credit(ctx, 7, 5000, OriginTopup, "inv_a")
	l.Credit(ctx, 7, 500, OriginReferralBonus, "inv_b")
	l.Debit(ctx, 7, 1200, "rcpt_1")

	entries, err := l.History(ctx, 7, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}

	bal, _ := l.GetBalance(ctx, 7)
	if sum != bal {
		t.Errorf("entries sum %d != balance %d", sum, bal)
	}
	if bal != 4300 {
		t.Errorf("expected balance 4300, got %d", bal)
	}
}

func TestTotalToppedUp(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	l.Credit(ctx, 9, 2000, OriginTopup, "inv_a")
	l.Credit(ctx, 9, 3000, OriginTopup, "inv_b")
	l.Credit(ctx, 9, 300, OriginReferralBonus, "inv_c")
	l.Debit(ctx, 9, 1000, "rcpt_1")

	total, err := l.TotalToppedUp(ctx, 9)
	if err != nil {
		t.Fatalf("TotalToppedUp failed: %v", err)
	}
	if total != 5000 {
		t.Errorf("expected 5000, got %d", total)
	}
}

func TestWasCredited(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	l.Credit(ctx, 9, 2000, OriginTopup, "inv_a")

	ok, err := l.WasCredited(ctx, "inv_a")
	if err != nil || !ok {
		t.Errorf("expected inv_a credited, got ok=%v err=%v", ok, err)
	}
	ok, err = l.WasCredited(ctx, "inv_missing")
	if err != nil || ok {
		t.Errorf("expected inv_missing not credited, got ok=%v err=%v", ok, err)
	}
}

func TestConcurrentDebits_NeverOverdraw(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	l.Credit(ctx, 42, 1000, OriginTopup, "inv_seed")

	// 20 goroutines race to debit 100 each; only 10 can succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, 42, 100, "rcpt_race"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected 10 successful debits, got %d", succeeded)
	}
	bal, _ := l.GetBalance(ctx, 42)
	if bal != 0 {
		t.Errorf("expected balance 0, got %d", bal)
	}
}
