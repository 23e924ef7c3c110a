// Package money provides shared EUR amount parsing and formatting.
//
// All balances and prices are tracked in a single reference currency (EUR)
// with 2 decimal places. Amounts are stored as int64 cents
// (1 EUR = 100 cents) to keep ledger arithmetic exact.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const Decimals = 2

var ErrInvalidAmount = errors.New("money: invalid amount")

// Parse converts a decimal string (e.g. "50", "12.50") to cents.
//
// Rules:
//   - Empty string parses to 0
//   - Negative amounts are rejected
//   - More than one decimal point is rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Format converts cents to a human-readable decimal string with exactly
// two decimal places (e.g. 1250 -> "12.50").
func Format(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		s = "-" + s
	}
	return s
}

// Percent returns pct percent of cents, rounded half-up.
// Used to derive referral bonuses from topup amounts.
func Percent(cents, pct int64) int64 {
	if pct <= 0 || cents <= 0 {
		return 0
	}
	return (cents*pct + 50) / 100
}
