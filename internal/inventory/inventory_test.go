package inventory

import (
	"errors"
	"sync"
	"testing"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(t.TempDir())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}

func TestPop_ConsumesInOrder(t *testing.T) {
	p := newTestPool(t)
	if err := p.Provision("Steam Key", []string{"AAAA-1111", "BBBB-2222", "CCCC-3333"}); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	for i, want := range []string{"AAAA-1111", "BBBB-2222", "CCCC-3333"} {
		got, err := p.Pop("Steam Key", false)
		if err != nil {
			t.Fatalf("Pop %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("Pop %d: got %q, want %q", i, got, want)
		}
	}

	if _, err := p.Pop("Steam Key", false); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestPop_EmptyAndMissingPool(t *testing.T) {
	p := newTestPool(t)

	if _, err := p.Pop("never-provisioned", false); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for missing pool, got %v", err)
	}

	n, err := p.Count("never-provisioned")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 units, got %d", n)
	}
}

func TestPop_Unlimited(t *testing.T) {
	p := newTestPool(t)
	if err := p.Provision("ebook", []string{"https://cdn.example/ebook.pdf"}); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := p.Pop("ebook", true)
		if err != nil {
			t.Fatalf("Pop %d failed: %v", i, err)
		}
		if got != "https://cdn.example/ebook.pdf" {
			t.Errorf("Pop %d: got %q", i, got)
		}
	}

	n, _ := p.Count("ebook")
	if n != 1 {
		t.Errorf("unlimited pool consumed: %d units left", n)
	}
}

func TestPop_UnlimitedWithoutTemplateServesSentinel(t *testing.T) {
	p := newTestPool(t)

	got, err := p.Pop("ebook", true)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if got != DefaultSentinel {
		t.Errorf("expected sentinel payload, got %q", got)
	}

	p.Sentinel = "ask @support for your copy"
	got, err = p.Pop("ebook", true)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if got != "ask @support for your copy" {
		t.Errorf("configured sentinel not served: %q", got)
	}
}

func TestPop_ConcurrentNoDuplicates(t *testing.T) {
	p := newTestPool(t)
	units := make([]string, 20)
	for i := range units {
		units[i] = string(rune('a'+i)) + "-unit"
	}
	if err := p.Provision("item", units); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)
	outOfStock := 0

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unit, err := p.Pop("item", false)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrOutOfStock) {
				outOfStock++
				return
			}
			if err != nil {
				t.Errorf("Pop failed: %v", err)
				return
			}
			seen[unit]++
		}()
	}
	wg.Wait()

	if len(seen) != 20 || outOfStock != 10 {
		t.Fatalf("expected 20 unique units and 10 out-of-stock, got %d/%d", len(seen), outOfStock)
	}
	for unit, n := range seen {
		if n != 1 {
			t.Errorf("unit %q delivered %d times", unit, n)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Steam Key", "steam_key"},
		{"item-42", "item-42"},
		{"  spaced out  ", "spaced_out"},
		{"../../etc/passwd", "etcpasswd"},
		{"///", ""},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProvision_SkipsBlankUnits(t *testing.T) {
	p := newTestPool(t)
	if err := p.Provision("item", []string{"one", "  ", "", "two"}); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	n, err := p.Count("item")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 units, got %d", n)
	}
}

func TestPoolPath_RejectsEmptyName(t *testing.T) {
	p := newTestPool(t)
	if _, err := p.Pop("!!!", false); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}
