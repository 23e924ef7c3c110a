package money

import "testing"

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"whole", "50", 5000},
		{"decimal", "12.50", 1250},
		{"single frac digit", "1.5", 150},
		{"extra frac truncated", "1.999", 199},
		{"empty", "", 0},
		{"zero", "0", 0},
		{"max topup", "10000", 1000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_InvalidAmounts(t *testing.T) {
	for _, in := range []string{"-5", "1.2.3", "abc", "1e3"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{5000, "50.00"},
		{1250, "12.50"},
		{5, "0.05"},
		{0, "0.00"},
		{-150, "-1.50"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	// 10% of 50.00 EUR is 5.00 EUR
	if got := Percent(5000, 10); got != 500 {
		t.Errorf("Percent(5000, 10) = %d, want 500", got)
	}
	// Rounds half-up: 10% of 0.05 EUR = 0.005 -> 0.01
	if got := Percent(5, 10); got != 1 {
		t.Errorf("Percent(5, 10) = %d, want 1", got)
	}
	if got := Percent(5000, 0); got != 0 {
		t.Errorf("Percent with zero rate = %d, want 0", got)
	}
	// Accepts the same int64 rate the config carries.
	var pct int64 = 15
	if got := Percent(1000, pct); got != 150 {
		t.Errorf("Percent(1000, 15) = %d, want 150", got)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"50.00", "0.05", "9999.99"} {
		cents, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := Format(cents); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
